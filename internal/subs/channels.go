// Package subs validates client control messages against the known
// operations, channels, and the market registry. Validation is pure: it
// reads nothing but its inputs and touches no connection state.
package subs

import "github.com/altonen7/dexstream/internal/feed"

const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
)

// DefaultMaxMarkets bounds how many markets one control message may name.
const DefaultMaxMarkets = 40

// channelTypes is the static table mapping a client-facing channel to the
// ordered data types actually published under it. Not client-controlled.
var channelTypes = map[string][]feed.DataType{
	"trades": {feed.TypeTrade},
	"level2": {feed.TypeL2Snapshot, feed.TypeL2Update},
	"level3": {feed.TypeL3Snapshot, feed.TypeL3Update},
	"quotes": {feed.TypeQuote},
	"ticker": {feed.TypeQuote},
}

// channelNames lists the channels in a stable order for error messages.
var channelNames = []string{"trades", "level2", "level3", "quotes", "ticker"}

var opNames = []string{OpSubscribe, OpUnsubscribe}

// ChannelTypes returns the data types a channel unpacks into, or nil for an
// unknown channel.
func ChannelTypes(channel string) []feed.DataType {
	return channelTypes[channel]
}

// Channels returns all recognized channel names.
func Channels() []string {
	out := make([]string, len(channelNames))
	copy(out, channelNames)
	return out
}

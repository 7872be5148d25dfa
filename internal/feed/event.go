// Package feed defines the normalized data events produced upstream and the
// fan-out machinery that delivers the identical event stream to every
// distribution worker replica.
package feed

import "time"

// DataType identifies the kind of payload carried by an event. It is also
// the first component of the topic a payload is published under.
type DataType string

const (
	TypeTrade      DataType = "trade"
	TypeQuote      DataType = "quote"
	TypeL2Snapshot DataType = "l2snapshot"
	TypeL2Update   DataType = "l2update"
	TypeL3Snapshot DataType = "l3snapshot"
	TypeL3Update   DataType = "l3update"
)

// Cacheable reports whether the latest payload of this type is kept in the
// single-slot snapshot cache.
func Cacheable(t DataType) bool {
	switch t {
	case TypeQuote, TypeL2Snapshot, TypeL3Snapshot:
		return true
	}
	return false
}

// Replayable reports whether a cached payload of this type is pushed to a
// client immediately after a successful subscribe. Trades are never
// replayed; their history is served over HTTP only.
func Replayable(t DataType) bool {
	return Cacheable(t)
}

// Topic builds the fan-out unit identifier for a type/symbol pair.
func Topic(t DataType, symbol string) string {
	return string(t) + "/" + symbol
}

// Event is one normalized upstream update. Payload is pre-serialized JSON
// and is delivered to clients verbatim, never re-encoded. Publish=false
// means cache only, no fan-out.
type Event struct {
	Type      DataType  `json:"type"`
	Symbol    string    `json:"symbol"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	Publish   bool      `json:"publish"`
}

// Topic returns the topic this event would be published under.
func (e Event) Topic() string {
	return Topic(e.Type, e.Symbol)
}

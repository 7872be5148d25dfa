package subs

import (
	"encoding/json"

	"github.com/altonen7/dexstream/internal/registry"
)

// Request is a parsed, validated control message.
type Request struct {
	Op      string   `json:"op"`
	Channel string   `json:"channel"`
	Markets []string `json:"markets"`
}

// rawRequest defers markets decoding so a non-array value is reported as
// InvalidMarketsArray, not as a payload parse failure.
type rawRequest struct {
	Op      string          `json:"op"`
	Channel string          `json:"channel"`
	Markets json.RawMessage `json:"markets"`
}

type Validator struct {
	reg        *registry.Registry
	maxMarkets int
}

func NewValidator(reg *registry.Registry, maxMarkets int) *Validator {
	if maxMarkets <= 0 {
		maxMarkets = DefaultMaxMarkets
	}
	return &Validator{reg: reg, maxMarkets: maxMarkets}
}

// Validate checks raw against the recognized operations, channels, and the
// market registry, short-circuiting on the first failure.
func (v *Validator) Validate(raw []byte) (*Request, *Error) {
	var r rawRequest
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, newError(CodeInvalidPayload, "Invalid message payload: not a valid subscription request.")
	}

	if r.Op != OpSubscribe && r.Op != OpUnsubscribe {
		return nil, enumError(CodeInvalidOp, "op", r.Op, opNames)
	}

	if _, ok := channelTypes[r.Channel]; !ok {
		return nil, enumError(CodeInvalidChannel, "channel", r.Channel, channelNames)
	}

	var markets []string
	if len(r.Markets) > 0 {
		if err := json.Unmarshal(r.Markets, &markets); err != nil {
			return nil, newError(CodeInvalidMarketsArray, "Invalid markets: expected a non-empty array of market symbols.")
		}
	}
	if len(markets) == 0 {
		return nil, newError(CodeInvalidMarketsArray, "Invalid markets: expected a non-empty array of market symbols.")
	}
	if len(markets) > v.maxMarkets {
		return nil, newError(CodeTooManyMarkets, "Too many markets: %d requested, at most %d allowed per request.", len(markets), v.maxMarkets)
	}

	for _, m := range markets {
		if !v.reg.Has(m) {
			return nil, enumError(CodeInvalidMarket, "market", m, v.reg.Symbols())
		}
	}

	return &Request{Op: r.Op, Channel: r.Channel, Markets: markets}, nil
}

// ValidateMarket checks a single market name with the same error shape the
// control-message path uses. Shared with the HTTP recent-trades endpoint.
func (v *Validator) ValidateMarket(symbol string) *Error {
	if !v.reg.Has(symbol) {
		return enumError(CodeInvalidMarket, "market", symbol, v.reg.Symbols())
	}
	return nil
}

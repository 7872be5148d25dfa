package subs

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Code classifies a validation failure.
type Code string

const (
	CodeInvalidPayload      Code = "invalid_payload"
	CodeInvalidOp           Code = "invalid_op"
	CodeInvalidChannel      Code = "invalid_channel"
	CodeInvalidMarketsArray Code = "invalid_markets_array"
	CodeTooManyMarkets      Code = "too_many_markets"
	CodeInvalidMarket       Code = "invalid_market"
)

// Error is a recoverable validation failure. It is surfaced to the client
// as a structured error frame; the connection stays open.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// enumError builds the message for an unrecognized enum-like value: a
// "did you mean" hint when a close candidate exists, always followed by the
// full allowed-value list.
func enumError(code Code, kind, value string, allowed []string) *Error {
	var b strings.Builder
	fmt.Fprintf(&b, "Invalid %s: %q.", kind, value)
	if hint := closest(value, allowed); hint != "" {
		fmt.Fprintf(&b, " Did you mean %q?", hint)
	}
	fmt.Fprintf(&b, " Allowed values: %s.", strings.Join(allowed, ", "))
	return &Error{Code: code, Message: b.String()}
}

// closest returns the allowed value nearest to value by edit distance, or
// "" when nothing is close enough to be a plausible typo. The cutoff scales
// with the candidate's length so short values don't suggest wild guesses.
func closest(value string, allowed []string) string {
	best := ""
	bestDist := -1
	for _, candidate := range allowed {
		d := levenshtein.ComputeDistance(value, candidate)
		if bestDist < 0 || d < bestDist {
			best, bestDist = candidate, d
		}
	}
	if best == "" {
		return ""
	}
	limit := len(best) / 2
	if limit < 2 {
		limit = 2
	}
	if bestDist > limit {
		return ""
	}
	return best
}

package worker

import "time"

// confirmation acknowledges an accepted subscribe/unsubscribe request.
type confirmation struct {
	Type      string    `json:"type"` // "subscribed" or "unsubscribed"
	Channel   string    `json:"channel"`
	Markets   []string  `json:"markets"`
	Timestamp time.Time `json:"timestamp"`
}

// errorFrame reports a recoverable failure to the client; the connection
// stays open.
type errorFrame struct {
	Type      string    `json:"type"` // always "error"
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

package client

import "time"

// CommandRequest is one chat line sent on behalf of Caller.
type CommandRequest struct {
	Caller string `json:"caller"`
	Text   string `json:"text"`
}

// Reply is the daemon's answer to a command.
type Reply struct {
	Verb string `json:"verb"`
	Text string `json:"reply"`
}

// State mirrors the daemon's lifecycle snapshot.
type State struct {
	ServiceActive   bool      `json:"service_active"`
	WatchdogHealthy bool      `json:"watchdog_healthy"`
	IdleStrike      bool      `json:"idle_strike"`
	PermanentlyOn   bool      `json:"permanently_on"`
	PendingSoftStop time.Time `json:"pending_soft_stop"`
	PendingHardStop time.Time `json:"pending_hard_stop"`
}

type Notification struct {
	Channel string    `json:"channel"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// APIError is returned for non-200 responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return "API error: " + e.Message
}

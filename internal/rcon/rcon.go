// Package rcon runs single administrative commands against the managed
// server over its remote-control port. Every call opens its own
// authenticated session and closes it before returning.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorcon/rcon"

	"github.com/loykin/mcwarden/internal/props"
)

var (
	// ErrNotRunning means there is no server process to talk to.
	ErrNotRunning = errors.New("server is not running")
	// ErrRconDisabled means server.properties has enable-rcon=false.
	ErrRconDisabled = errors.New("RCON is not enabled")
)

// CommandFailedError wraps a transport or authentication failure for one
// command. It is not retried here.
type CommandFailedError struct {
	Command string
	Err     error
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("rcon command %q failed: %v", e.Command, e.Err)
}

func (e *CommandFailedError) Unwrap() error { return e.Err }

// Target supplies the credential snapshot of the running server.
type Target interface {
	Credentials() (props.RconCredentials, bool)
}

// DefaultTimeout bounds dialing and each read/write of a session.
const DefaultTimeout = 5 * time.Second

type Client struct {
	target  Target
	timeout time.Duration
}

func New(target Target, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{target: target, timeout: timeout}
}

// SendCommand executes cmd and returns the server's reply.
func (c *Client) SendCommand(ctx context.Context, cmd string) (string, error) {
	creds, ok := c.target.Credentials()
	if !ok {
		return "", ErrNotRunning
	}
	if !creds.Enabled {
		return "", ErrRconDisabled
	}
	if err := ctx.Err(); err != nil {
		return "", &CommandFailedError{Command: cmd, Err: err}
	}
	timeout := c.timeout
	if d, ok := ctx.Deadline(); ok {
		if left := time.Until(d); left < timeout {
			timeout = left
		}
	}

	conn, err := rcon.Dial(creds.Address(), creds.Password,
		rcon.SetDialTimeout(timeout),
		rcon.SetDeadline(timeout),
	)
	if err != nil {
		return "", &CommandFailedError{Command: cmd, Err: err}
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			slog.Debug("Closing RCON session failed", "address", creds.Address(), "error", cerr)
		}
	}()

	resp, err := conn.Execute(cmd)
	if err != nil {
		return "", &CommandFailedError{Command: cmd, Err: err}
	}
	slog.Debug("RCON command executed", "command", cmd, "response", resp)
	return resp, nil
}

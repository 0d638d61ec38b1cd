package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/mcwarden/internal/history"
	"github.com/loykin/mcwarden/internal/notify"
	"github.com/loykin/mcwarden/internal/process"
)

type StartOutcome int

const (
	// StartLaunched means a new server process was spawned.
	StartLaunched StartOutcome = iota
	// StartAlreadyOnline means the status endpoint already answered.
	StartAlreadyOnline
	// StartAlreadyRunning means the supervisor already holds a process.
	StartAlreadyRunning
)

type StartResult struct {
	Outcome StartOutcome
	Players int
}

// Start launches the server unless it already answers status queries or
// the supervisor already holds a process.
func (c *Controller) Start(ctx context.Context) (StartResult, error) {
	if res := c.probe(ctx, "start"); res.Reachable {
		return StartResult{Outcome: StartAlreadyOnline, Players: res.Online}, nil
	}
	r, err := c.sup.Start()
	if err != nil {
		return StartResult{}, err
	}
	if r == process.AlreadyRunning {
		return StartResult{Outcome: StartAlreadyRunning}, nil
	}
	c.markLaunched()
	c.record(ctx, history.EventStart, 0, "")
	return StartResult{Outcome: StartLaunched}, nil
}

// Strength selects how a manual stop treats connected players.
type Strength int

const (
	// Soft refuses to stop while anyone is connected.
	Soft Strength = iota
	// Hard stops regardless of players.
	Hard
)

func (s Strength) String() string {
	if s == Hard {
		return "hard"
	}
	return "soft"
}

type StopDecision int

const (
	// StopRefused means players are connected and a soft stop was requested.
	StopRefused StopDecision = iota
	// StopAwaitingConfirmation means the request was recorded and must be repeated.
	StopAwaitingConfirmation
	// StopExecuted means the supervisor stop path ran.
	StopExecuted
)

type StopResult struct {
	Decision StopDecision
	Players  int
	Outcome  process.StopOutcome
}

// Stop handles one manual stop request. The first request of a strength
// records a pending confirmation; a second request of the same strength
// within ConfirmWindow runs the stop. Soft stops refuse outright while
// players are connected.
func (c *Controller) Stop(ctx context.Context, s Strength) (StopResult, error) {
	players := 0
	if s == Soft {
		// An unreachable server counts as empty.
		if res := c.probe(ctx, "stop"); res.Reachable {
			players = res.Online
		}
		if players > 0 {
			return StopResult{Decision: StopRefused, Players: players}, nil
		}
	}

	now := c.now()
	c.mu.Lock()
	pending := &c.st.PendingSoftStop
	if s == Hard {
		pending = &c.st.PendingHardStop
	}
	if pending.IsZero() || now.Sub(*pending) > c.cfg.ConfirmWindow {
		*pending = now
		c.mu.Unlock()
		return StopResult{Decision: StopAwaitingConfirmation, Players: players}, nil
	}
	*pending = time.Time{}
	c.markStoppedLocked()
	c.mu.Unlock()

	slog.Info("Manual stop confirmed", "strength", s.String())
	outcome, err := c.stopServer(ctx, s.String()+" stop")
	return StopResult{Decision: StopExecuted, Players: players, Outcome: outcome}, err
}

// ToggleLatch flips permanentlyOn and returns the new value.
func (c *Controller) ToggleLatch(ctx context.Context) bool {
	c.mu.Lock()
	c.st.PermanentlyOn = !c.st.PermanentlyOn
	on := c.st.PermanentlyOn
	c.mu.Unlock()

	slog.Info("Server latch toggled", "permanently_on", on)
	c.notify(ctx, notify.ChannelStatus, fmt.Sprintf("Server latch state is now %t.", on))
	c.record(ctx, history.EventLatch, 0, fmt.Sprintf("permanently_on=%t", on))
	return on
}

// Status is a point-in-time view rendered by the status command.
type Status struct {
	Active    bool
	Reachable bool
	Since     string
	Players   int
	Latched   bool
	RSSBytes  uint64
}

// Status probes the server when it is believed active.
func (c *Controller) Status(ctx context.Context) Status {
	snap := c.Snapshot()
	st := Status{Active: snap.ServiceActive, Latched: snap.PermanentlyOn}
	if !st.Active {
		return st
	}
	res := c.probe(ctx, "status")
	if !res.Reachable {
		return st
	}
	st.Reachable = true
	st.Players = res.Online
	st.Since = c.sup.UptimeAsString()
	if u, err := c.sup.Usage(); err == nil {
		st.RSSBytes = u.RSSBytes
	}
	return st
}

// Say broadcasts text in the server chat.
func (c *Controller) Say(ctx context.Context, text string) (string, error) {
	return c.rcon.SendCommand(ctx, "say Minecraft Bot says: "+text)
}

func (c *Controller) WhitelistAdd(ctx context.Context, name string) (string, error) {
	return c.rcon.SendCommand(ctx, "whitelist add "+name)
}

func (c *Controller) Save(ctx context.Context) (string, error) {
	return c.rcon.SendCommand(ctx, "save-all")
}

// Package lifecycle ties the supervisor, the RCON client and the liveness
// prober together: it owns the shared lifecycle state, runs the watchdog and
// idle-shutdown loops and gates manual stops behind a confirmation window.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/mcwarden/internal/history"
	"github.com/loykin/mcwarden/internal/metrics"
	"github.com/loykin/mcwarden/internal/notify"
	"github.com/loykin/mcwarden/internal/probe"
	"github.com/loykin/mcwarden/internal/process"
)

const (
	DefaultWatchdogInterval = 60 * time.Second
	DefaultIdlePollInterval = time.Second
	DefaultIdleCountdown    = 10 * time.Minute
	DefaultConfirmWindow    = 10 * time.Second
)

// Supervisor is the part of process.Supervisor the controller drives.
type Supervisor interface {
	Start() (process.StartResult, error)
	Stop() (process.StopOutcome, error)
	PID() int
	StartedAt() (time.Time, bool)
	UptimeAsString() string
	Usage() (process.Usage, error)
}

// Commander sends one administrative command to the running server.
type Commander interface {
	SendCommand(ctx context.Context, cmd string) (string, error)
}

type Config struct {
	Name             string        `mapstructure:"name"`
	StatusAddress    string        `mapstructure:"status_address"`
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval"`
	IdlePollInterval time.Duration `mapstructure:"idle_poll_interval"`
	IdleCountdown    time.Duration `mapstructure:"idle_countdown"`
	ConfirmWindow    time.Duration `mapstructure:"confirm_window"`
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "server"
	}
	if c.StatusAddress == "" {
		c.StatusAddress = probe.DefaultAddress
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = DefaultWatchdogInterval
	}
	if c.IdlePollInterval <= 0 {
		c.IdlePollInterval = DefaultIdlePollInterval
	}
	if c.IdleCountdown <= 0 {
		c.IdleCountdown = DefaultIdleCountdown
	}
	if c.ConfirmWindow <= 0 {
		c.ConfirmWindow = DefaultConfirmWindow
	}
	return c
}

// State is the lifecycle state shared by the loops and command handlers.
// Pending confirmation timestamps are kept per stop strength; a zero time
// means no request is pending.
type State struct {
	ServiceActive   bool      `json:"service_active"`
	WatchdogHealthy bool      `json:"watchdog_healthy"`
	IdleStrike      bool      `json:"idle_strike"`
	PermanentlyOn   bool      `json:"permanently_on"`
	PendingSoftStop time.Time `json:"pending_soft_stop"`
	PendingHardStop time.Time `json:"pending_hard_stop"`
}

// Controller owns State. All mutations happen under mu; supervisor and
// network calls are made without holding it.
type Controller struct {
	cfg      Config
	sup      Supervisor
	rcon     Commander
	prober   probe.Prober
	notifier notify.Notifier
	sink     history.Sink

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	st       State
	epoch    uint64 // bumped around every stop and launch so in-flight probes can detect them
	stopping int    // stop paths between markStoppedLocked and finishStop
}

type Option func(*Controller)

func WithNotifier(n notify.Notifier) Option { return func(c *Controller) { c.notifier = n } }

func WithHistory(s history.Sink) Option { return func(c *Controller) { c.sink = s } }

// WithClock replaces the wall clock used for confirmation windows.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// WithSleep replaces the context-aware sleep used by both loops.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.sleep = sleep }
}

func New(cfg Config, sup Supervisor, rcon Commander, prober probe.Prober, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg.withDefaults(),
		sup:      sup,
		rcon:     rcon,
		prober:   prober,
		notifier: notify.Log{},
		now:      time.Now,
		sleep:    sleepCtx,
		st:       State{WatchdogHealthy: true},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) Config() Config { return c.cfg }

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// Greet announces the daemon on the status channel.
func (c *Controller) Greet(ctx context.Context) {
	c.notify(ctx, notify.ChannelStatus, "Hello! Use the command !start to start the server, or !help to see what else I can do.")
}

func (c *Controller) probe(ctx context.Context, loop string) probe.Result {
	res := c.prober.Probe(ctx, c.cfg.StatusAddress)
	metrics.ObserveProbe(loop, res.Reachable, res.Online)
	return res
}

// markStoppedLocked clears serviceActive ahead of a stop and invalidates
// in-flight watchdog probes. The watchdog stays quiet until finishStop.
// Callers hold mu.
func (c *Controller) markStoppedLocked() {
	c.st.ServiceActive = false
	c.epoch++
	c.stopping++
	metrics.SetServiceActive(false)
}

// finishStop ends a stop window opened by markStoppedLocked. Probes that
// started while the server was still shutting down are discarded.
func (c *Controller) finishStop() {
	c.mu.Lock()
	c.stopping--
	c.epoch++
	c.mu.Unlock()
}

// markLaunched forgets the previous run so the next answering probe raises
// the availability edge and re-arms the watchdog.
func (c *Controller) markLaunched() {
	c.mu.Lock()
	c.st.ServiceActive = false
	c.epoch++
	c.mu.Unlock()
	metrics.SetServiceActive(false)
}

func (c *Controller) notify(ctx context.Context, ch notify.Channel, msg string) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(ctx, notify.Notification{Channel: ch, Message: msg, At: c.now()})
}

func (c *Controller) snapshot(players int, detail string) history.Record {
	rec := history.Record{Name: c.cfg.Name, PID: c.sup.PID(), Players: players, Detail: detail}
	if at, ok := c.sup.StartedAt(); ok {
		rec.StartedAt = at
	}
	return rec
}

func (c *Controller) record(ctx context.Context, t history.EventType, players int, detail string) {
	c.send(ctx, t, c.snapshot(players, detail))
}

func (c *Controller) send(ctx context.Context, t history.EventType, rec history.Record) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Send(ctx, history.NewEvent(t, rec)); err != nil {
		slog.Warn("Failed to record lifecycle event", "event", string(t), "error", err)
	}
}

// stopServer runs the supervisor stop path and records its outcome. The
// caller has already called markStoppedLocked.
func (c *Controller) stopServer(ctx context.Context, reason string) (process.StopOutcome, error) {
	rec := c.snapshot(0, reason)
	outcome, err := c.sup.Stop()
	c.finishStop()
	if err != nil {
		slog.Error("Supervisor stop failed", "reason", reason, "error", err)
		return outcome, err
	}
	switch outcome {
	case process.StopClosedNicely:
		c.send(ctx, history.EventStop, rec)
	case process.StopTerminatedForcefully:
		slog.Warn("Server had to be terminated forcefully", "reason", reason)
		c.send(ctx, history.EventForcedStop, rec)
	}
	return outcome, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// countdownText renders a countdown the way players read it.
func countdownText(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		if m := int(d / time.Minute); m != 1 {
			return fmt.Sprintf("%d minutes", m)
		}
		return "1 minute"
	}
	return d.String()
}

package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/loykin/mcwarden/internal/history"
	"github.com/loykin/mcwarden/internal/metrics"
	"github.com/loykin/mcwarden/internal/notify"
	"github.com/loykin/mcwarden/internal/process"
)

const (
	loopWatchdog = "watchdog"
	loopIdle     = "idle"
)

// RunWatchdog probes once per WatchdogInterval until ctx is done. It raises
// the availability edge when the server first answers and a single alert
// when an active server stops answering.
func (c *Controller) RunWatchdog(ctx context.Context) error {
	slog.Info("Watchdog loop started", "interval", c.cfg.WatchdogInterval)
	for {
		c.guard(loopWatchdog, func() { c.watchdogTick(ctx) })
		if err := c.sleep(ctx, c.cfg.WatchdogInterval); err != nil {
			return err
		}
	}
}

// RunIdle polls the player count until ctx is done and shuts the server
// down after two consecutive empty readings and a countdown.
func (c *Controller) RunIdle(ctx context.Context) error {
	slog.Info("Idle-shutdown loop started", "poll", c.cfg.IdlePollInterval, "countdown", c.cfg.IdleCountdown)
	for {
		var err error
		c.guard(loopIdle, func() { err = c.idleTick(ctx) })
		if err != nil {
			return err
		}
		if err := c.sleep(ctx, c.cfg.IdlePollInterval); err != nil {
			return err
		}
	}
}

// guard keeps a panicking iteration from taking the loop down.
func (c *Controller) guard(loop string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered panic in lifecycle loop", "loop", loop, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (c *Controller) watchdogTick(ctx context.Context) {
	c.mu.Lock()
	active, epoch := c.st.ServiceActive, c.epoch
	c.mu.Unlock()

	res := c.probe(ctx, loopWatchdog)

	c.mu.Lock()
	if c.epoch != epoch || c.stopping > 0 {
		// A stop or launch landed while the probe was in flight, or the
		// server is still shutting down.
		c.mu.Unlock()
		return
	}
	if !active {
		if !res.Reachable || c.st.ServiceActive {
			c.mu.Unlock()
			return
		}
		c.st.ServiceActive = true
		c.st.WatchdogHealthy = true
		c.mu.Unlock()
		metrics.SetServiceActive(true)
		slog.Info("Server became available", "players", res.Online, "version", res.Version)
		c.notify(ctx, notify.ChannelStatus, "The server is now available!")
		c.record(ctx, history.EventAvailable, res.Online, res.Version)
		return
	}
	if res.Reachable || !c.st.WatchdogHealthy {
		c.mu.Unlock()
		return
	}
	c.st.WatchdogHealthy = false
	c.mu.Unlock()

	metrics.IncWatchdogAlert()
	slog.Warn("Watchdog alert: active server stopped answering", "address", c.cfg.StatusAddress)
	c.notify(ctx, notify.ChannelDev, "Watchdog wasn't patted! Something went wrong.")
	c.record(ctx, history.EventWatchdogAlert, 0, "status probe failed")
}

// idleTick performs one idle-loop iteration. It only returns an error when
// ctx ends during the countdown.
func (c *Controller) idleTick(ctx context.Context) error {
	res := c.probe(ctx, loopIdle)
	if !res.Reachable {
		return nil
	}

	c.mu.Lock()
	if res.Online > 0 || c.st.PermanentlyOn {
		c.st.IdleStrike = false
		c.mu.Unlock()
		return nil
	}
	if !c.st.IdleStrike {
		c.st.IdleStrike = true
		c.mu.Unlock()
		slog.Debug("Idle strike registered")
		return nil
	}
	c.mu.Unlock()

	if c.sup.PID() == 0 {
		// Answering but not ours to stop.
		c.mu.Lock()
		c.st.IdleStrike = false
		c.mu.Unlock()
		slog.Debug("Idle server has no supervised process; not counting down")
		return nil
	}

	slog.Info("Idle countdown started", "countdown", c.cfg.IdleCountdown)
	c.notify(ctx, notify.ChannelStatus, fmt.Sprintf("No one is playing! Shutting down in %s.", countdownText(c.cfg.IdleCountdown)))
	c.record(ctx, history.EventIdleCountdown, 0, c.cfg.IdleCountdown.String())
	if err := c.sleep(ctx, c.cfg.IdleCountdown); err != nil {
		return err
	}

	res = c.probe(ctx, loopIdle)

	c.mu.Lock()
	c.st.IdleStrike = false
	switch {
	case !res.Reachable:
		c.mu.Unlock()
		slog.Info("Idle shutdown skipped: server no longer answering")
		return nil
	case res.Online > 0:
		c.mu.Unlock()
		slog.Info("Idle shutdown cancelled: players joined", "players", res.Online)
		return nil
	case c.st.PermanentlyOn:
		c.mu.Unlock()
		slog.Info("Idle shutdown cancelled: server latched")
		return nil
	}
	c.markStoppedLocked()
	c.mu.Unlock()

	c.notify(ctx, notify.ChannelStatus, "No one is playing! Shutting down now.")
	rec := c.snapshot(0, "idle")
	outcome, err := c.stopServer(ctx, "idle")
	if err != nil || outcome == process.StopNotRunning {
		return nil
	}
	metrics.IncIdleShutdown()
	c.send(ctx, history.EventIdleShutdown, rec)
	slog.Info("Idle shutdown complete", "outcome", outcome.String())
	return nil
}

package lifecycle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/loykin/mcwarden/internal/history"
	"github.com/loykin/mcwarden/internal/notify"
	"github.com/loykin/mcwarden/internal/probe"
	"github.com/loykin/mcwarden/internal/process"
)

func TestStopOnStoppedServerIsIdempotent(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if r, err := h.c.Stop(ctx, Hard); err != nil || r.Decision != StopAwaitingConfirmation {
			t.Fatalf("first request: %+v %v", r, err)
		}
		r, err := h.c.Stop(ctx, Hard)
		if err != nil {
			t.Fatalf("confirmed stop: %v", err)
		}
		if r.Decision != StopExecuted || r.Outcome != process.StopNotRunning {
			t.Fatalf("unexpected result %+v", r)
		}
	}
	if starts, _, effective := h.sup.counts(); starts != 0 || effective != 0 {
		t.Fatalf("no process must be spawned or stopped: starts=%d stops=%d", starts, effective)
	}
}

func TestSoftStopRefusedWithPlayers(t *testing.T) {
	h := newHarness(true)
	h.prober.set(online(3))
	for i := 0; i < 2; i++ {
		r, err := h.c.Stop(context.Background(), Soft)
		if err != nil {
			t.Fatalf("stop: %v", err)
		}
		if r.Decision != StopRefused || r.Players != 3 {
			t.Fatalf("expected refusal, got %+v", r)
		}
	}
	if !h.c.Snapshot().PendingSoftStop.IsZero() {
		t.Fatalf("refused stop must not record a confirmation")
	}
	if _, calls, _ := h.sup.counts(); calls != 0 {
		t.Fatalf("supervisor stop called %d times", calls)
	}
}

func TestSoftStopConfirmationWindow(t *testing.T) {
	tests := []struct {
		name     string
		gap      time.Duration
		executed bool
	}{
		{"within window", 5 * time.Second, true},
		{"at window edge", 10 * time.Second, true},
		{"expired", 11 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(true)
			h.prober.set(online(0))
			ctx := context.Background()

			r, _ := h.c.Stop(ctx, Soft)
			if r.Decision != StopAwaitingConfirmation {
				t.Fatalf("first request: %+v", r)
			}
			h.clock.Advance(tt.gap)
			r, err := h.c.Stop(ctx, Soft)
			if err != nil {
				t.Fatalf("second request: %v", err)
			}
			_, _, effective := h.sup.counts()
			if tt.executed {
				if r.Decision != StopExecuted || r.Outcome != process.StopClosedNicely || effective != 1 {
					t.Fatalf("expected one stop, got %+v (stops=%d)", r, effective)
				}
				if !h.c.Snapshot().PendingSoftStop.IsZero() {
					t.Fatalf("confirmed stop must clear the pending timestamp")
				}
				return
			}
			if r.Decision != StopAwaitingConfirmation || effective != 0 {
				t.Fatalf("expired confirmation must not stop: %+v (stops=%d)", r, effective)
			}
			if got := h.c.Snapshot().PendingSoftStop; !got.Equal(h.clock.Now()) {
				t.Fatalf("expired request should re-arm the window, got %v", got)
			}
		})
	}
}

func TestStopStrengthsDoNotShareConfirmation(t *testing.T) {
	h := newHarness(true)
	h.prober.set(online(0))
	ctx := context.Background()

	if r, _ := h.c.Stop(ctx, Soft); r.Decision != StopAwaitingConfirmation {
		t.Fatalf("soft: %+v", r)
	}
	h.clock.Advance(2 * time.Second)
	if r, _ := h.c.Stop(ctx, Hard); r.Decision != StopAwaitingConfirmation {
		t.Fatalf("hard after soft must ask for its own confirmation: %+v", r)
	}
	h.clock.Advance(2 * time.Second)
	r, _ := h.c.Stop(ctx, Hard)
	if r.Decision != StopExecuted {
		t.Fatalf("hard confirmation: %+v", r)
	}
	if _, _, effective := h.sup.counts(); effective != 1 {
		t.Fatalf("expected one stop, got %d", effective)
	}
}

func TestHardStopIgnoresPlayers(t *testing.T) {
	h := newHarness(true)
	h.prober.set(online(5))
	h.setActive(true)
	h.sup.forceful = true
	ctx := context.Background()

	_, _ = h.c.Stop(ctx, Hard)
	r, err := h.c.Stop(ctx, Hard)
	if err != nil || r.Decision != StopExecuted || r.Outcome != process.StopTerminatedForcefully {
		t.Fatalf("unexpected %+v %v", r, err)
	}
	if h.c.Snapshot().ServiceActive {
		t.Fatalf("serviceActive must be cleared by a stop")
	}
	e, ok := h.sink.find(history.EventForcedStop)
	if !ok {
		t.Fatalf("forced stop not recorded: %v", h.sink.types())
	}
	if e.Record.PID != 4242 || e.Record.StartedAt.IsZero() {
		t.Fatalf("record should snapshot the process before it stopped: %+v", e.Record)
	}
}

func TestStart(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()

	h.prober.set(online(2))
	r, err := h.c.Start(ctx)
	if err != nil || r.Outcome != StartAlreadyOnline || r.Players != 2 {
		t.Fatalf("expected already online, got %+v %v", r, err)
	}
	if starts, _, _ := h.sup.counts(); starts != 0 {
		t.Fatalf("must not spawn when the server already answers")
	}

	h.prober.set(probe.Unreachable)
	if r, err := h.c.Start(ctx); err != nil || r.Outcome != StartLaunched {
		t.Fatalf("expected launch, got %+v %v", r, err)
	}
	if r, err := h.c.Start(ctx); err != nil || r.Outcome != StartAlreadyRunning {
		t.Fatalf("expected already running, got %+v %v", r, err)
	}
	if _, ok := h.sink.find(history.EventStart); !ok {
		t.Fatalf("start not recorded")
	}

	boom := errors.New("no java")
	h2 := newHarness(false)
	h2.sup.startErr = boom
	if _, err := h2.c.Start(ctx); !errors.Is(err, boom) {
		t.Fatalf("launch error must propagate, got %v", err)
	}
}

func TestToggleLatch(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()
	if !h.c.ToggleLatch(ctx) || !h.c.Snapshot().PermanentlyOn {
		t.Fatalf("first toggle should latch")
	}
	if h.c.ToggleLatch(ctx) || h.c.Snapshot().PermanentlyOn {
		t.Fatalf("second toggle should release")
	}
	if got := h.notes.on(notify.ChannelStatus); len(got) != 2 {
		t.Fatalf("expected two latch notifications, got %v", got)
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(true)
	ctx := context.Background()

	if st := h.c.Status(ctx); st.Active {
		t.Fatalf("inactive service reported active: %+v", st)
	}
	if h.prober.calls != 0 {
		t.Fatalf("inactive status must not probe")
	}

	h.setActive(true)
	h.prober.set(online(4))
	st := h.c.Status(ctx)
	if !st.Active || !st.Reachable || st.Players != 4 || st.RSSBytes != 1<<30 {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.Since != "Mar 01 2024 12:00:00" {
		t.Fatalf("unexpected since %q", st.Since)
	}

	h.prober.set(probe.Unreachable)
	if st := h.c.Status(ctx); !st.Active || st.Reachable {
		t.Fatalf("expected active but unreachable, got %+v", st)
	}
}

func TestRemoteCommands(t *testing.T) {
	h := newHarness(true)
	ctx := context.Background()
	if _, err := h.c.Say(ctx, "hello there"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.c.WhitelistAdd(ctx, "Steve"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.c.Save(ctx); err != nil {
		t.Fatal(err)
	}
	want := []string{"say Minecraft Bot says: hello there", "whitelist add Steve", "save-all"}
	if strings.Join(h.cmd.sent, "|") != strings.Join(want, "|") {
		t.Fatalf("sent %q", h.cmd.sent)
	}

	h.cmd.err = errors.New("rcon down")
	if _, err := h.c.Save(ctx); err == nil {
		t.Fatalf("expected error to propagate")
	}
}

func TestCountdownText(t *testing.T) {
	tests := map[time.Duration]string{
		10 * time.Minute: "10 minutes",
		time.Minute:      "1 minute",
		90 * time.Second: "1m30s",
		5 * time.Second:  "5s",
	}
	for d, want := range tests {
		if got := countdownText(d); got != want {
			t.Errorf("countdownText(%v) = %q, want %q", d, got, want)
		}
	}
}

package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/loykin/mcwarden/internal/history"
	"github.com/loykin/mcwarden/internal/notify"
	"github.com/loykin/mcwarden/internal/probe"
	"github.com/loykin/mcwarden/internal/process"
)

type fakeSupervisor struct {
	mu             sync.Mutex
	running        bool
	startedAt      time.Time
	starts         int
	stopCalls      int
	effectiveStops int
	forceful       bool
	startErr       error

	// When stopGate is set, Stop signals stopEntered and then blocks on it.
	stopGate    chan struct{}
	stopEntered chan struct{}
}

func (f *fakeSupervisor) Start() (process.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return process.Started, f.startErr
	}
	if f.running {
		return process.AlreadyRunning, nil
	}
	f.running = true
	f.startedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f.starts++
	return process.Started, nil
}

func (f *fakeSupervisor) Stop() (process.StopOutcome, error) {
	f.mu.Lock()
	gate, entered := f.stopGate, f.stopEntered
	f.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if !f.running {
		return process.StopNotRunning, nil
	}
	f.running = false
	f.effectiveStops++
	if f.forceful {
		return process.StopTerminatedForcefully, nil
	}
	return process.StopClosedNicely, nil
}

// crash drops the process as if it had exited on its own.
func (f *fakeSupervisor) crash() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
}

// blockStops makes the next Stop calls wait until the returned func runs.
func (f *fakeSupervisor) blockStops() (entered <-chan struct{}, release func()) {
	gate, in := make(chan struct{}), make(chan struct{}, 1)
	f.mu.Lock()
	f.stopGate, f.stopEntered = gate, in
	f.mu.Unlock()
	return in, func() {
		f.mu.Lock()
		f.stopGate, f.stopEntered = nil, nil
		f.mu.Unlock()
		close(gate)
	}
}

func (f *fakeSupervisor) PID() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return 4242
	}
	return 0
}

func (f *fakeSupervisor) StartedAt() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startedAt, f.running
}

func (f *fakeSupervisor) UptimeAsString() string {
	if at, ok := f.StartedAt(); ok {
		return at.Format(process.UptimeLayout)
	}
	return process.NotRunningText
}

func (f *fakeSupervisor) Usage() (process.Usage, error) {
	if _, ok := f.StartedAt(); !ok {
		return process.Usage{}, errors.New("not running")
	}
	return process.Usage{RSSBytes: 1 << 30}, nil
}

func (f *fakeSupervisor) counts() (starts, stopCalls, effective int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stopCalls, f.effectiveStops
}

// scriptProber returns queued results in order, then repeats the last one.
type scriptProber struct {
	mu      sync.Mutex
	queue   []probe.Result
	last    probe.Result
	calls   int
	onProbe func()
}

func (p *scriptProber) Probe(context.Context, string) probe.Result {
	p.mu.Lock()
	p.calls++
	if len(p.queue) > 0 {
		p.last, p.queue = p.queue[0], p.queue[1:]
	}
	res, hook := p.last, p.onProbe
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	return res
}

func (p *scriptProber) set(rs ...probe.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue[:0], rs...)
}

func online(n int) probe.Result { return probe.Result{Reachable: true, Online: n, Max: 20} }

type fakeCommander struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeCommander) SendCommand(_ context.Context, cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	if f.err != nil {
		return "", f.err
	}
	return "ok", nil
}

type recorder struct {
	mu   sync.Mutex
	msgs []notify.Notification
}

func (r *recorder) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, n)
}

func (r *recorder) on(ch notify.Channel) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.msgs {
		if n.Channel == ch {
			out = append(out, n.Message)
		}
	}
	return out
}

type memSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (m *memSink) Send(_ context.Context, e history.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) types() []history.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]history.EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

func (m *memSink) find(t history.EventType) (history.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.Type == t {
			return e, true
		}
	}
	return history.Event{}, false
}

// manualClock is advanced explicitly by tests.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	c      *Controller
	sup    *fakeSupervisor
	prober *scriptProber
	cmd    *fakeCommander
	notes  *recorder
	sink   *memSink
	clock  *manualClock
	slept  []time.Duration
	onWait func(d time.Duration) error
}

func newHarness(running bool) *harness {
	h := &harness{
		sup:    &fakeSupervisor{},
		prober: &scriptProber{},
		cmd:    &fakeCommander{},
		notes:  &recorder{},
		sink:   &memSink{},
		clock:  &manualClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	if running {
		_, _ = h.sup.Start()
	}
	sleep := func(ctx context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		if h.onWait != nil {
			return h.onWait(d)
		}
		return ctx.Err()
	}
	h.c = New(Config{}, h.sup, h.cmd, h.prober,
		WithNotifier(h.notes), WithHistory(h.sink), WithClock(h.clock.Now), WithSleep(sleep))
	return h
}

func (h *harness) setActive(v bool) {
	h.c.mu.Lock()
	h.c.st.ServiceActive = v
	h.c.mu.Unlock()
}

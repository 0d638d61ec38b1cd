package process

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/mcwarden/internal/env"
	"github.com/loykin/mcwarden/internal/metrics"
	"github.com/loykin/mcwarden/internal/props"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// UptimeLayout is the fixed UTC format returned by UptimeAsString.
const UptimeLayout = "Jan 02 2006 15:04:05"

// NotRunningText is returned by UptimeAsString when there is no process.
const NotRunningText = "(server process isn't running)"

// StartResult reports what Start did.
type StartResult int

const (
	Started StartResult = iota
	AlreadyRunning
)

func (r StartResult) String() string {
	if r == AlreadyRunning {
		return "already_running"
	}
	return "started"
}

// StopOutcome reports how Stop ended.
type StopOutcome int

const (
	StopNotRunning StopOutcome = iota
	StopClosedNicely
	StopTerminatedForcefully
)

func (o StopOutcome) String() string {
	switch o {
	case StopClosedNicely:
		return "closed_nicely"
	case StopTerminatedForcefully:
		return "terminated_forcefully"
	default:
		return "not_running"
	}
}

// KillError means the forced kill itself failed; the supervisor can no longer
// vouch for the process state.
type KillError struct {
	PID int
	Err error
}

func (e *KillError) Error() string {
	return fmt.Sprintf("kill server process %d: %v", e.PID, e.Err)
}

func (e *KillError) Unwrap() error { return e.Err }

// reapTimeout bounds the wait for the exit status after SIGKILL.
const reapTimeout = 5 * time.Second

// Supervisor owns the single managed server process.
//
// Lock order: opMu before mu. opMu serializes Start and Stop so that a stop
// racing another stop degrades to a no-op; mu guards the fields below and is
// never held across blocking operations.
type Supervisor struct {
	spec Spec
	opMu sync.Mutex

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	startedAt time.Time
	props     props.Properties
	done      chan struct{} // closed once cmd.Wait returns
	exitErr   error
}

func New(spec Spec) *Supervisor { return &Supervisor{spec: spec.withDefaults()} }

// Spec returns the effective spec.
func (s *Supervisor) Spec() Spec { return s.spec }

// Start launches the server unless a handle already exists. A handle whose
// process has already exited is released through the stop path first.
func (s *Supervisor) Start() (StartResult, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.Running() && s.Exited() {
		if _, err := s.stopLocked(); err != nil {
			return Started, err
		}
	}
	if s.Running() {
		return AlreadyRunning, nil
	}

	p, err := props.Load(s.spec.PropertiesPath())
	if err != nil {
		return Started, fmt.Errorf("load server properties: %w", err)
	}

	cmd, err := s.spec.BuildCommand()
	if err != nil {
		return Started, err
	}
	cmd.Dir = s.spec.WorkDir
	if len(s.spec.Env) > 0 {
		cmd.Env = env.Merge(os.Environ(), s.spec.Env)
	}
	configureSysProcAttr(cmd)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Started, fmt.Errorf("stdin pipe: %w", err)
	}
	outW, errW := s.spec.Log.Writers(s.spec.Name)
	if outW != nil {
		cmd.Stdout = outW
	}
	if errW != nil {
		cmd.Stderr = errW
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		closeWriters(outW, errW)
		return Started, fmt.Errorf("launch %q: %w", s.spec.Command, err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.startedAt = time.Now()
	s.props = p
	s.done = done
	s.exitErr = nil
	s.mu.Unlock()

	go func() {
		err := cmd.Wait()
		closeWriters(outW, errW)
		s.mu.Lock()
		if s.cmd == cmd {
			s.exitErr = err
		}
		s.mu.Unlock()
		close(done)
	}()

	slog.Info("Server process started", "name", s.spec.Name, "pid", cmd.Process.Pid, "workdir", s.spec.WorkDir)
	metrics.IncStart()
	return Started, nil
}

// Stop shuts the server down: first by writing the stop directive to its
// stdin and waiting up to NiceCloseWindow, then by killing its process group.
// Stopping a stopped supervisor is a no-op.
func (s *Supervisor) Stop() (StopOutcome, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopLocked()
}

func (s *Supervisor) stopLocked() (StopOutcome, error) {
	s.mu.Lock()
	cmd, stdin, done := s.cmd, s.stdin, s.done
	s.mu.Unlock()
	if cmd == nil {
		return StopNotRunning, nil
	}
	pid := cmd.Process.Pid

	if !isClosed(done) {
		if _, err := io.WriteString(stdin, s.spec.StopDirective+"\n"); err != nil {
			slog.Debug("Writing stop directive failed", "pid", pid, "error", err)
		}
		_ = stdin.Close()
		if s.spec.GraceDelay > 0 {
			time.Sleep(s.spec.GraceDelay)
		}
	}

	t := time.NewTimer(s.spec.NiceCloseWindow)
	defer t.Stop()
	select {
	case <-done:
		s.release(cmd)
		slog.Info("Server process closed nicely", "pid", pid)
		metrics.IncStop(StopClosedNicely.String())
		return StopClosedNicely, nil
	case <-t.C:
	}

	slog.Warn("Server process still running after nice-close window, killing", "pid", pid, "window", s.spec.NiceCloseWindow)
	if err := killGroup(cmd); err != nil {
		slog.Error("Killing server process failed", "pid", pid, "error", err)
		return StopTerminatedForcefully, &KillError{PID: pid, Err: err}
	}
	select {
	case <-done:
	case <-time.After(reapTimeout):
		slog.Warn("Server process not reaped after kill", "pid", pid)
	}
	s.release(cmd)
	metrics.IncStop(StopTerminatedForcefully.String())
	return StopTerminatedForcefully, nil
}

// release clears the handle if it still refers to cmd.
func (s *Supervisor) release(cmd *exec.Cmd) {
	s.mu.Lock()
	if s.cmd == cmd {
		s.cmd = nil
		s.stdin = nil
		s.startedAt = time.Time{}
		s.done = nil
	}
	s.mu.Unlock()
}

// Running reports whether a process handle exists. The process itself may
// have exited; see Exited.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// Exited reports whether the handle's process has terminated on its own.
func (s *Supervisor) Exited() bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	return done != nil && isClosed(done)
}

// ExitErr returns the wait error of the current handle's process, if it exited.
func (s *Supervisor) ExitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// StartedAt returns the recorded start time while a handle exists.
func (s *Supervisor) StartedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return time.Time{}, false
	}
	return s.startedAt, true
}

// UptimeAsString renders the start time in UptimeLayout (UTC), or
// NotRunningText without a handle.
func (s *Supervisor) UptimeAsString() string {
	t, ok := s.StartedAt()
	if !ok {
		return NotRunningText
	}
	return t.UTC().Format(UptimeLayout)
}

// Properties returns the property snapshot taken at the last start.
func (s *Supervisor) Properties() props.Properties {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props
}

// Credentials returns the RCON view of the start-time snapshot. ok is false
// when there is no process handle.
func (s *Supervisor) Credentials() (props.RconCredentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return props.RconCredentials{}, false
	}
	return s.props.Credentials(s.spec.RconHost), true
}

// Usage is a resource sample of the server process.
type Usage struct {
	RSSBytes   uint64
	CPUPercent float64
}

// Usage samples memory and CPU of the server process.
func (s *Supervisor) Usage() (Usage, error) {
	pid := s.PID()
	if pid == 0 {
		return Usage{}, errors.New("server process isn't running")
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return Usage{}, err
	}
	mi, err := p.MemoryInfo()
	if err != nil {
		return Usage{}, err
	}
	u := Usage{RSSBytes: mi.RSS}
	if c, err := p.CPUPercent(); err == nil {
		u.CPUPercent = c
	}
	metrics.SetServerMemory(mi.RSS)
	return u, nil
}

func isClosed(ch chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func closeWriters(ws ...io.WriteCloser) {
	for _, w := range ws {
		if w != nil {
			_ = w.Close()
		}
	}
}

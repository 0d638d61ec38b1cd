package process

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/mcwarden/internal/logger"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func waitUntil(timeout, step time.Duration, fn func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return true
		}
		time.Sleep(step)
	}
	return fn()
}

// serverDir prepares a working directory with a server.properties file.
func serverDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	data := "enable-rcon=true\nrcon.port=25575 # default\nrcon.password=secret\n"
	if err := os.WriteFile(filepath.Join(dir, "server.properties"), []byte(data), 0o644); err != nil {
		t.Fatalf("write properties: %v", err)
	}
	return dir
}

// niceServer exits as soon as it reads a line on stdin.
const niceServer = `sh -c 'read line; echo "got $line"; exit 0'`

// stubbornServer ignores stdin and never exits on its own.
const stubbornServer = `sh -c 'while true; do sleep 0.05; done'`

func TestStop_NotRunningIsIdempotent(t *testing.T) {
	s := New(Spec{Command: niceServer})
	for i := 0; i < 3; i++ {
		out, err := s.Stop()
		if err != nil {
			t.Fatalf("stop %d: %v", i, err)
		}
		if out != StopNotRunning {
			t.Fatalf("stop %d: expected not_running, got %s", i, out)
		}
	}
	if s.Running() || s.PID() != 0 {
		t.Fatalf("no process should have been spawned")
	}
}

func TestUptimeAsString(t *testing.T) {
	requireUnix(t)
	s := New(Spec{Command: niceServer, WorkDir: serverDir(t), GraceDelay: -1})
	if got := s.UptimeAsString(); got != NotRunningText {
		t.Fatalf("before start: %q", got)
	}
	if _, err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _, _ = s.Stop() }()

	startedAt, ok := s.StartedAt()
	if !ok {
		t.Fatalf("expected start time")
	}
	got := s.UptimeAsString()
	if got != startedAt.UTC().Format(UptimeLayout) {
		t.Fatalf("uptime %q does not match start time %v", got, startedAt)
	}
	parsed, err := time.Parse(UptimeLayout, got)
	if err != nil {
		t.Fatalf("parse uptime: %v", err)
	}
	if !parsed.Equal(startedAt.UTC().Truncate(time.Second)) {
		t.Fatalf("round trip mismatch: %v vs %v", parsed, startedAt.UTC())
	}
}

func TestStartStop_ClosesNicely(t *testing.T) {
	requireUnix(t)
	dir := serverDir(t)
	logDir := filepath.Join(dir, "logs")
	s := New(Spec{
		Command:         niceServer,
		WorkDir:         dir,
		StopDirective:   "stop",
		GraceDelay:      10 * time.Millisecond,
		NiceCloseWindow: 5 * time.Second,
		Log:             logger.Config{Dir: logDir},
	})
	res, err := s.Start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res != Started || !s.Running() || s.PID() == 0 {
		t.Fatalf("expected running process, got %s", res)
	}

	res, err = s.Start()
	if err != nil || res != AlreadyRunning {
		t.Fatalf("second start: %s, %v", res, err)
	}

	out, err := s.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if out != StopClosedNicely {
		t.Fatalf("expected closed_nicely, got %s", out)
	}
	if s.Running() {
		t.Fatalf("handle should be cleared")
	}
	if _, ok := s.StartedAt(); ok {
		t.Fatalf("start time should be cleared with the handle")
	}

	b, err := os.ReadFile(filepath.Join(logDir, "server.stdout.log"))
	if err != nil {
		t.Fatalf("read stdout log: %v", err)
	}
	if !strings.Contains(string(b), "got stop") {
		t.Fatalf("stop directive not delivered through stdin: %q", b)
	}
}

func TestStop_EscalatesToKillAfterWindow(t *testing.T) {
	requireUnix(t)
	window := 300 * time.Millisecond
	s := New(Spec{
		Command:         stubbornServer,
		WorkDir:         serverDir(t),
		GraceDelay:      -1,
		NiceCloseWindow: window,
	})
	if _, err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	begin := time.Now()
	out, err := s.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if out != StopTerminatedForcefully {
		t.Fatalf("expected terminated_forcefully, got %s", out)
	}
	if elapsed := time.Since(begin); elapsed < window {
		t.Fatalf("kill happened before the nice-close window elapsed: %v", elapsed)
	}
	if s.Running() {
		t.Fatalf("handle should be cleared")
	}
}

func TestStop_ConcurrentCallsStopOnce(t *testing.T) {
	requireUnix(t)
	s := New(Spec{Command: niceServer, WorkDir: serverDir(t), GraceDelay: -1, NiceCloseWindow: 5 * time.Second})
	if _, err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	var wg sync.WaitGroup
	outcomes := make(chan StopOutcome, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.Stop()
			if err != nil {
				t.Errorf("stop: %v", err)
			}
			outcomes <- out
		}()
	}
	wg.Wait()
	close(outcomes)

	counts := map[StopOutcome]int{}
	for o := range outcomes {
		counts[o]++
	}
	if counts[StopClosedNicely] != 1 || counts[StopNotRunning] != 3 {
		t.Fatalf("expected exactly one teardown, got %v", counts)
	}
}

func TestStart_AfterCrashReleasesHandle(t *testing.T) {
	requireUnix(t)
	s := New(Spec{Command: `sh -c 'exit 3'`, WorkDir: serverDir(t), GraceDelay: -1})
	if _, err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !waitUntil(2*time.Second, 10*time.Millisecond, s.Exited) {
		t.Fatalf("process did not exit")
	}
	if !s.Running() {
		t.Fatalf("handle must survive a crash until stopped")
	}
	if s.ExitErr() == nil {
		t.Fatalf("expected exit error for non-zero exit")
	}
	res, err := s.Start()
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if res != Started {
		t.Fatalf("expected a fresh start, got %s", res)
	}
	_, _ = s.Stop()
}

func TestStart_Failures(t *testing.T) {
	requireUnix(t)
	s := New(Spec{Command: niceServer, WorkDir: t.TempDir()})
	if _, err := s.Start(); err == nil {
		t.Fatalf("expected error without server.properties")
	}
	if s.Running() {
		t.Fatalf("no handle expected after failed start")
	}

	s = New(Spec{Command: "/definitely/not/a/binary --nogui", WorkDir: serverDir(t)})
	if _, err := s.Start(); err == nil {
		t.Fatalf("expected launch error")
	}
	if s.Running() {
		t.Fatalf("no handle expected after failed launch")
	}
}

func TestCredentialsSnapshot(t *testing.T) {
	requireUnix(t)
	dir := serverDir(t)
	s := New(Spec{Command: niceServer, WorkDir: dir, RconHost: "127.0.0.1", GraceDelay: -1})
	if _, ok := s.Credentials(); ok {
		t.Fatalf("credentials must be unavailable without a process")
	}
	if _, err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _, _ = s.Stop() }()

	// Edits after start are not visible until the next start.
	_ = os.WriteFile(filepath.Join(dir, "server.properties"), []byte("enable-rcon=false\n"), 0o644)

	c, ok := s.Credentials()
	if !ok {
		t.Fatalf("expected credentials")
	}
	if !c.Enabled || c.Port != 25575 || c.Password != "secret" || c.Host != "127.0.0.1" {
		t.Fatalf("unexpected credentials: %+v", c)
	}
}

func TestUsage(t *testing.T) {
	requireUnix(t)
	s := New(Spec{Command: stubbornServer, WorkDir: serverDir(t), GraceDelay: -1, NiceCloseWindow: 100 * time.Millisecond})
	if _, err := s.Usage(); err == nil {
		t.Fatalf("expected error without a process")
	}
	if _, err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _, _ = s.Stop() }()
	u, err := s.Usage()
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if u.RSSBytes == 0 {
		t.Fatalf("expected non-zero RSS")
	}
}

func TestKillError(t *testing.T) {
	inner := errors.New("operation not permitted")
	var err error = &KillError{PID: 42, Err: inner}
	if !errors.Is(err, inner) {
		t.Fatalf("KillError must unwrap")
	}
	if !strings.Contains(err.Error(), "42") {
		t.Fatalf("message should name the pid: %s", err)
	}
}

func TestStart_PassesEnvironment(t *testing.T) {
	requireUnix(t)
	dir := serverDir(t)
	logDir := filepath.Join(dir, "logs")
	s := New(Spec{
		Command:    `sh -c 'echo "opts=$JAVA_OPTS"; read line'`,
		WorkDir:    dir,
		Env:        []string{"HEAP=3G", "JAVA_OPTS=-Xmx${HEAP}"},
		GraceDelay: -1,
		Log:        logger.Config{Dir: logDir},
	})
	if _, err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if out, err := s.Stop(); err != nil || out != StopClosedNicely {
		t.Fatalf("stop: %s %v", out, err)
	}
	b, err := os.ReadFile(filepath.Join(logDir, "server.stdout.log"))
	if err != nil {
		t.Fatalf("read stdout log: %v", err)
	}
	if !strings.Contains(string(b), "opts=-Xmx3G") {
		t.Fatalf("environment not passed to the server: %q", b)
	}
}

package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func TestWriters_WithDirOnly(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir}
	outW, errW := cfg.Writers("server")
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers non-nil when Dir is set")
	}
	_, _ = outW.Write([]byte("[Server thread/INFO]: Done\n"))
	_, _ = errW.Write([]byte("warn\n"))
	closeIf(outW)
	closeIf(errW)
	for _, name := range []string{"server.stdout.log", "server.stderr.log"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s not created: %v", name, err)
		}
	}
}

func TestWriters_ExplicitPathsAndDefaults(t *testing.T) {
	cfg := Config{}
	outW, errW := cfg.Writers("n")
	if outW != nil || errW != nil {
		t.Fatalf("expected nil writers with no destinations")
	}

	dir := t.TempDir()
	cfg = Config{StdoutPath: filepath.Join(dir, "o.log"), StderrPath: filepath.Join(dir, "e.log")}
	outW, errW = cfg.Writers("ignored")
	ol, ok1 := outW.(*lj.Logger)
	el, ok2 := errW.(*lj.Logger)
	if !ok1 || !ok2 {
		t.Fatalf("expected lumberjack writers")
	}
	if ol.MaxSize != DefaultMaxSizeMB || ol.MaxBackups != DefaultMaxBackups || ol.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("defaults not applied: %+v", ol)
	}
	if el.Filename != cfg.StderrPath {
		t.Fatalf("stderr path: %s", el.Filename)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "warning": slog.LevelWarn,
		"error": slog.LevelError, "": slog.LevelInfo, "bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetup_FileJSON(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	file := filepath.Join(t.TempDir(), "logs", "mcwarden.log")
	l, closer := Setup(DaemonConfig{Level: "debug", Format: "json", File: file})
	l.Debug("probe failed", "address", "127.0.0.1:25565")
	closeIf(closer)

	b, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), `"msg":"probe failed"`) {
		t.Fatalf("unexpected log content: %s", b)
	}
}

func TestColorTextHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
	l := slog.New(h).With("component", "watchdog")
	l.Warn("server unreachable")
	out := buf.String()
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "server unreachable") {
		t.Fatalf("missing level or message: %q", out)
	}
	if !strings.Contains(out, "component=watchdog") {
		t.Fatalf("missing attrs: %q", out)
	}
	if strings.Contains(out, "time=") {
		t.Fatalf("time should be omitted: %q", out)
	}
}

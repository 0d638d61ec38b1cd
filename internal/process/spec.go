package process

import (
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/mcwarden/internal/logger"
)

// Defaults for the graceful shutdown path.
const (
	DefaultName            = "server"
	DefaultStopDirective   = "stop"
	DefaultGraceDelay      = time.Second
	DefaultNiceCloseWindow = 30 * time.Second
	DefaultPropertiesFile  = "server.properties"
)

// Spec describes the game server process to supervise.
type Spec struct {
	Name            string        `json:"name"`
	Command         string        `json:"command"`           // command line used to launch the server
	WorkDir         string        `json:"work_dir"`          // working directory of the server
	Env             []string      `json:"env"`               // KEY=VALUE overrides on top of the daemon environment
	PropertiesFile  string        `json:"properties_file"`   // relative to WorkDir unless absolute
	RconHost        string        `json:"rcon_host"`         // interface to dial for RCON
	StopDirective   string        `json:"stop_directive"`    // line written to stdin to request shutdown
	GraceDelay      time.Duration `json:"grace_delay"`       // pause after the stop directive; negative disables
	NiceCloseWindow time.Duration `json:"nice_close_window"` // how long to wait for exit before killing
	Log             logger.Config `json:"log"`               // stdout/stderr capture
}

func (s Spec) withDefaults() Spec {
	if s.Name == "" {
		s.Name = DefaultName
	}
	if s.StopDirective == "" {
		s.StopDirective = DefaultStopDirective
	}
	if s.GraceDelay < 0 {
		s.GraceDelay = 0
	} else if s.GraceDelay == 0 {
		s.GraceDelay = DefaultGraceDelay
	}
	if s.NiceCloseWindow <= 0 {
		s.NiceCloseWindow = DefaultNiceCloseWindow
	}
	if s.PropertiesFile == "" {
		s.PropertiesFile = DefaultPropertiesFile
	}
	return s
}

// PropertiesPath resolves the property file against the working directory.
func (s Spec) PropertiesPath() string {
	p := s.PropertiesFile
	if p == "" {
		p = DefaultPropertiesFile
	}
	if filepath.IsAbs(p) || s.WorkDir == "" {
		return p
	}
	return filepath.Join(s.WorkDir, p)
}

// ErrNoCommand is returned when the spec has an empty command line.
var ErrNoCommand = errors.New("server command is empty")

// BuildCommand turns the configured command line into an *exec.Cmd. Lines
// with shell metacharacters go through the platform shell; an explicit
// "sh -c '...'" prefix is unwrapped instead of nested.
func (s *Spec) BuildCommand() (*exec.Cmd, error) {
	line := strings.TrimSpace(s.Command)
	if line == "" {
		return nil, ErrNoCommand
	}
	var argv []string
	if script, ok := parseExplicitShell(line); ok {
		argv = shellArgv(script)
	} else if strings.ContainsAny(line, "|&;<>*?`$\"'(){}[]~") {
		argv = shellArgv(line)
	} else {
		argv = strings.Fields(line)
	}
	// #nosec G204 -- the command line comes from the operator's config file
	return exec.Command(argv[0], argv[1:]...), nil
}

// parseExplicitShell detects "sh -c <ARG>" or "/bin/sh -c <ARG>" at the start
// of cmdStr and returns ARG with one pair of surrounding quotes removed.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if !strings.HasPrefix(trim, p) {
			continue
		}
		after := trim[len(p):]
		if n := len(after); n >= 2 {
			if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
				after = after[1 : n-1]
			}
		}
		return after, true
	}
	return "", false
}

//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"
)

func shellArgv(script string) []string { return []string{"/bin/sh", "-c", script} }

// The server runs as the leader of its own process group so a forced kill
// also takes down wrapper scripts and their java child.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killGroup sends SIGKILL to the group led by cmd. A group that is
// already gone is not an error.
func killGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

func shellArgv(script string) []string { return []string{"cmd", "/C", script} }

func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// killGroup kills the server process only; Windows has no POSIX groups.
func killGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	err := cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

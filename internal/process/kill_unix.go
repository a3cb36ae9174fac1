//go:build !windows

// Package process reaps browser process trees left behind by a session.
package process

import (
	"errors"
	"syscall"
)

// KillTree sends SIGKILL to the process group led by pid, taking Chrome's
// renderer and GPU helpers with it. A group that is already gone is not an
// error.
func KillTree(pid int) error {
	if pid <= 0 {
		return nil
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

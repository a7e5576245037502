//go:build !windows

package process

import (
	"errors"
	"os"
	"syscall"
)

// terminate asks the process group to exit.
func terminate(p *os.Process) error { return signalGroup(p, syscall.SIGTERM) }

// kill forcibly ends the process group.
func kill(p *os.Process) error { return signalGroup(p, syscall.SIGKILL) }

func signalGroup(p *os.Process, sig syscall.Signal) error {
	err := syscall.Kill(-p.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		// group already gone; fall back to the leader in case Setpgid was not honoured
		err = p.Signal(sig)
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
	}
	return err
}

// processExists reports whether pid can be signalled.
func processExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

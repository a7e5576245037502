//go:build windows

package main

import (
	"os"
	"path/filepath"
	"syscall"
)

const createNoWindow = 0x08000000

// detachAttrs starts the daemon without a console in a new process group,
// so Ctrl+C in the launching console does not reach it.
func detachAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | createNoWindow}
}

// defaultPidFile lives under the user cache dir, e.g.
// %LocalAppData%\minerd\minerd.pid.
func defaultPidFile() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "minerd", "minerd.pid")
	}
	return filepath.Join(os.TempDir(), "minerd.pid")
}

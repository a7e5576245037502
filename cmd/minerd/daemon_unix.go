//go:build !windows

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// detachAttrs starts the daemon in its own session so it survives the
// terminal's SIGHUP.
func detachAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// defaultPidFile is $XDG_RUNTIME_DIR/minerd.pid, or a per-user file in the
// temp dir when no runtime dir is set.
func defaultPidFile() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "minerd.pid")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("minerd-%d.pid", os.Getuid()))
}

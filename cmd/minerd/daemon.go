package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// daemonArgs returns args with --daemonize removed so the child runs in the
// foreground. --pidfile and --logfile are passed through unchanged.
func daemonArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--daemonize" || strings.HasPrefix(a, "--daemonize=") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// daemonize re-executes the current binary detached from the terminal and
// returns the child's PID. The child writes pidFile, defaultPidFile() when
// empty. The caller exits afterwards.
func daemonize(w io.Writer, logFile, pidFile string) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("locate minerd executable: %w", err)
	}
	args := daemonArgs(os.Args[1:])
	if pidFile == "" {
		pidFile = defaultPidFile()
		args = append(args, "--pidfile="+pidFile)
	}

	// #nosec G204
	cmd := exec.Command(executable, args...)
	cmd.SysProcAttr = detachAttrs()
	if logFile != "" {
		// #nosec G304
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, fmt.Errorf("open daemon log %s: %w", logFile, err)
		}
		defer func() { _ = f.Close() }()
		cmd.Stdout = f
		cmd.Stderr = f
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start minerd daemon: %w", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	_, _ = fmt.Fprintf(w, "minerd daemon started (pid %d, pidfile %s)\n", pid, pidFile)
	return pid, nil
}

// writePidFile writes the daemon PID to a file
func writePidFile(pidFile string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(pidFile), 0o750); err != nil {
		return err
	}
	// #nosec G302
	f, err := os.OpenFile(pidFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.WriteString(strconv.Itoa(pid))
	return err
}

// removePidFile removes the PID file
func removePidFile(pidFile string) error {
	if pidFile == "" {
		return nil
	}
	return os.Remove(pidFile)
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/librewallet/minerd/internal/config"
	"github.com/librewallet/minerd/internal/logbuf"
	"github.com/librewallet/minerd/internal/logger"
	"github.com/librewallet/minerd/internal/supervisor"
	"github.com/librewallet/minerd/internal/task"
)

const followInterval = 200 * time.Millisecond

// runForeground supervises the worker in this process and prints its
// output until the worker exits or a signal arrives.
func runForeground(ctx context.Context, out io.Writer, f RunFlags) error {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	log := logger.New(os.Stderr, cfg.Log)
	sup := supervisor.New(supervisor.Options{
		BufferSize:  cfg.BufferSize,
		StopTimeout: cfg.StopTimeout,
		Logger:      log,
		Mirror:      cfg.Log.File,
	})
	defer func() { _ = sup.Close() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Start(applyTaskFlags(cfg.Task, f.TaskFlags)); err != nil {
		printBuffer(out, sup.Snapshot())
		return err
	}
	return follow(ctx, out, sup, followInterval)
}

// follow prints entries as they are appended. On cancellation it stops the
// task and prints what remains.
func follow(ctx context.Context, out io.Writer, sup *supervisor.Supervisor, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	var seq uint64
	flush := func() {
		var entries []logbuf.Entry
		entries, seq = sup.Since(seq)
		printBuffer(out, entries)
	}
	for {
		flush()
		if !sup.Running() {
			flush()
			if st := sup.Status(); st.ExitErr != "" {
				return fmt.Errorf("%s exited: %s", st.Name, st.ExitErr)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			err := sup.Stop()
			flush()
			return err
		case <-ticker.C:
		}
	}
}

// applyTaskFlags overlays the non-zero flag values on the configured task.
func applyTaskFlags(cfg task.Config, f TaskFlags) task.Config {
	if f.Name != "" {
		cfg.Name = f.Name
	}
	if f.Binary != "" {
		cfg.Binary = f.Binary
	}
	if f.WorkDir != "" {
		cfg.WorkDir = f.WorkDir
	}
	if f.Host != "" {
		cfg.Host = f.Host
	}
	if f.Port != 0 {
		cfg.Port = f.Port
	}
	if f.User != "" {
		cfg.User = f.User
	}
	if f.Password != "" {
		cfg.Password = f.Password
	}
	if f.Threads != 0 {
		cfg.Threads = f.Threads
	}
	if f.Algorithm != "" {
		cfg.Algorithm = f.Algorithm
	}
	if len(f.Extra) > 0 {
		cfg.Extra = f.Extra
	}
	return cfg
}

func printBuffer(w io.Writer, entries []logbuf.Entry) {
	for _, e := range entries {
		printLine(w, e.Time, string(e.Stream), e.Line)
	}
}

func printLine(w io.Writer, t time.Time, stream, line string) {
	_, _ = fmt.Fprintf(w, "%s [%s] %s\n", t.Format(time.TimeOnly), stream, line)
}

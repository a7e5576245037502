package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/librewallet/minerd/pkg/client"
)

// command runs remote subcommands against the daemon API.
type command struct {
	ctx context.Context
	out io.Writer
	// newClient is replaced in tests.
	newClient func(APIFlags) *client.Client
}

func newCommand(cmd *cobra.Command) *command {
	return &command{ctx: cmd.Context(), out: cmd.OutOrStdout(), newClient: newAPIClient}
}

func newAPIClient(f APIFlags) *client.Client {
	cfg := client.DefaultConfig()
	if f.APIUrl != "" {
		cfg.BaseURL = f.APIUrl
	}
	if f.APITimeout > 0 {
		cfg.Timeout = f.APITimeout
	}
	cfg.CACert = f.CACert
	cfg.Insecure = f.Insecure
	cfg.Token = f.Token
	cfg.Username = f.User
	cfg.Password = f.Password
	return client.New(cfg)
}

// connect returns a client for a daemon that answered its status endpoint.
func (c *command) connect(f APIFlags) (*client.Client, error) {
	api := c.newClient(f)
	if !api.IsReachable(c.ctx) {
		return nil, fmt.Errorf("daemon not reachable at %s - please start daemon first with 'minerd serve'", api.BaseURL())
	}
	return api, nil
}

func (c *command) Start(f StartFlags) error {
	api, err := c.connect(f.APIFlags)
	if err != nil {
		return err
	}
	if err := api.Start(c.ctx, startRequest(f.TaskFlags)); err != nil {
		return err
	}
	st, err := api.Status(c.ctx)
	if err != nil {
		return err
	}
	return printJSON(c.out, st)
}

func (c *command) Stop(f StopFlags) error {
	api, err := c.connect(f.APIFlags)
	if err != nil {
		return err
	}
	if err := api.Stop(c.ctx); err != nil {
		return err
	}
	st, err := api.Status(c.ctx)
	if err != nil {
		return err
	}
	return printJSON(c.out, st)
}

func (c *command) Status(f StatusFlags) error {
	api, err := c.connect(f.APIFlags)
	if err != nil {
		return err
	}
	st, err := api.Status(c.ctx)
	if err != nil {
		return err
	}
	return printJSON(c.out, st)
}

func (c *command) History(f HistoryFlags) error {
	api, err := c.connect(f.APIFlags)
	if err != nil {
		return err
	}
	events, err := api.History(c.ctx, f.Limit)
	if err != nil {
		return err
	}
	return printJSON(c.out, events)
}

// Login prints a token for the configured API user.
func (c *command) Login(f LoginFlags) error {
	if f.User == "" {
		return fmt.Errorf("--api-user is required")
	}
	api, err := c.connect(f.APIFlags)
	if err != nil {
		return err
	}
	tok, err := api.Login(c.ctx, f.User, f.Password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, tok.Value)
	return err
}

// Logs prints the buffer and, when following, polls for lines appended
// since the last response until ctx is cancelled or a signal arrives.
func (c *command) Logs(ctx context.Context, f LogsFlags) error {
	api, err := c.connect(f.APIFlags)
	if err != nil {
		return err
	}
	if !f.Follow {
		entries, err := api.Logs(ctx, f.Tail)
		if err != nil {
			return err
		}
		printEntries(c.out, entries)
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	entries, seq, err := api.LogsSince(ctx, 0)
	if err != nil {
		return err
	}
	if f.Tail > 0 && f.Tail < len(entries) {
		entries = entries[len(entries)-f.Tail:]
	}
	printEntries(c.out, entries)

	interval := f.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		entries, next, err := api.LogsSince(ctx, seq)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		printEntries(c.out, entries)
		seq = next
	}
}

func startRequest(f TaskFlags) *client.StartRequest {
	return &client.StartRequest{
		Name:      f.Name,
		Binary:    f.Binary,
		WorkDir:   f.WorkDir,
		Host:      f.Host,
		Port:      f.Port,
		User:      f.User,
		Password:  f.Password,
		Threads:   f.Threads,
		Algorithm: f.Algorithm,
		Extra:     f.Extra,
	}
}

func printEntries(w io.Writer, entries []client.LogEntry) {
	for _, e := range entries {
		printLine(w, e.Time, e.Stream, e.Line)
	}
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// Package schedule starts and stops the worker at cron times, for example
// mining only overnight.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/librewallet/minerd/internal/task"
)

// Controller is the part of the supervisor the scheduler drives.
type Controller interface {
	Start(cfg task.Config) error
	Stop() error
}

// Config is the [schedule] section. Expressions use the standard five
// fields with optional leading seconds, or descriptors such as @daily.
type Config struct {
	Enabled  bool     `mapstructure:"enabled"`
	Timezone string   `mapstructure:"timezone"` // IANA name; local time when empty
	Start    []string `mapstructure:"start"`
	Stop     []string `mapstructure:"stop"`
}

// Action is what an entry does when it fires.
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// Run is an upcoming firing.
type Run struct {
	Action Action    `json:"action"`
	At     time.Time `json:"at"`
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate parses every expression and the timezone.
func (c Config) Validate() error {
	if _, err := c.location(); err != nil {
		return err
	}
	if c.Enabled && len(c.Start) == 0 && len(c.Stop) == 0 {
		return errors.New("schedule enabled without start or stop expressions")
	}
	for _, expr := range append(append([]string{}, c.Start...), c.Stop...) {
		if _, err := parser.Parse(expr); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", expr, err)
		}
	}
	return nil
}

func (c Config) location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Scheduler fires start and stop entries against a Controller.
type Scheduler struct {
	cron    *cron.Cron
	actions map[cron.EntryID]Action
	log     *slog.Logger
}

// New registers the entries of cfg. t is the task each start entry launches.
func New(cfg Config, ctl Controller, t task.Config, log *slog.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, _ := cfg.location()
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		actions: make(map[cron.EntryID]Action),
		log:     log.With("component", "schedule"),
	}
	add := func(exprs []string, a Action, fn func() error) error {
		for _, expr := range exprs {
			expr := expr
			id, err := s.cron.AddFunc(expr, func() {
				s.log.Info("scheduled "+string(a), "schedule", expr)
				if err := fn(); err != nil {
					s.log.Warn("scheduled "+string(a)+" failed", "schedule", expr, "error", err)
				}
			})
			if err != nil {
				return err
			}
			s.actions[id] = a
		}
		return nil
	}
	if err := add(cfg.Start, ActionStart, func() error { return ctl.Start(t) }); err != nil {
		return nil, err
	}
	if err := add(cfg.Stop, ActionStop, ctl.Stop); err != nil {
		return nil, err
	}
	return s, nil
}

// Upcoming lists the next firing of each entry after the scheduler started,
// soonest first.
func (s *Scheduler) Upcoming() []Run {
	var out []Run
	for _, e := range s.cron.Entries() {
		out = append(out, Run{Action: s.actions[e.ID], At: e.Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// Run fires entries until ctx is done and waits for a firing in progress.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	for _, r := range s.Upcoming() {
		s.log.Info("next scheduled "+string(r.Action), "at", r.At)
	}
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

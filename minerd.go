// Package minerd embeds the mining worker supervisor: one external worker
// process whose stdout and stderr are collected into a bounded log buffer.
package minerd

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/librewallet/minerd/internal/config"
	"github.com/librewallet/minerd/internal/history"
	"github.com/librewallet/minerd/internal/history/factory"
	"github.com/librewallet/minerd/internal/logbuf"
	"github.com/librewallet/minerd/internal/metrics"
	iapi "github.com/librewallet/minerd/internal/server"
	"github.com/librewallet/minerd/internal/supervisor"
	"github.com/librewallet/minerd/internal/task"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type TaskConfig = task.Config

type LogEntry = logbuf.Entry

type Status = supervisor.Status

type Options = supervisor.Options

type Config = cfg.Config

type HistorySink = history.Sink

type HistoryEvent = history.Event

var (
	ErrLaunchFailed  = supervisor.ErrLaunchFailed
	ErrInvalidConfig = task.ErrInvalidConfig
)

// Supervisor is a thin facade over internal/supervisor.
type Supervisor struct{ inner *supervisor.Supervisor }

func New(opts Options) *Supervisor { return &Supervisor{inner: supervisor.New(opts)} }

func (s *Supervisor) Start(c TaskConfig) error { return s.inner.Start(c) }
func (s *Supervisor) Stop() error              { return s.inner.Stop() }
func (s *Supervisor) Snapshot() []LogEntry     { return s.inner.Snapshot() }
func (s *Supervisor) Tail(n int) []LogEntry    { return s.inner.Tail(n) }
func (s *Supervisor) Status() Status           { return s.inner.Status() }
func (s *Supervisor) Running() bool            { return s.inner.Running() }
func (s *Supervisor) Close() error             { return s.inner.Close() }

// Since returns entries appended after seq and the sequence to resume from.
func (s *Supervisor) Since(seq uint64) ([]LogEntry, uint64) { return s.inner.Since(seq) }

func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// NewHistorySink opens a sink from a DSN such as "sqlite:///var/lib/minerd.db".
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// NewHTTPHandler exposes start, stop, status, logs and history for s under
// basePath. defaults is the task an empty start request launches.
func NewHTTPHandler(s *Supervisor, basePath string, defaults TaskConfig) http.Handler {
	return iapi.NewRouter(s.inner, basePath, iapi.WithDefaultTask(defaults)).Handler()
}

// NewHTTPServer returns a server for NewHTTPHandler on addr.
func NewHTTPServer(addr, basePath string, s *Supervisor, defaults TaskConfig) *http.Server {
	return iapi.NewServer(addr, NewHTTPHandler(s, basePath, defaults))
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
func MetricsHandler() http.Handler                  { return metrics.Handler() }

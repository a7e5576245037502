package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/librewallet/minerd/internal/auth"
	"github.com/librewallet/minerd/internal/config"
	"github.com/librewallet/minerd/internal/history"
	"github.com/librewallet/minerd/internal/history/factory"
	"github.com/librewallet/minerd/internal/logger"
	"github.com/librewallet/minerd/internal/metrics"
	"github.com/librewallet/minerd/internal/schedule"
	"github.com/librewallet/minerd/internal/server"
	"github.com/librewallet/minerd/internal/supervisor"
	itls "github.com/librewallet/minerd/internal/tls"
)

const shutdownTimeout = 10 * time.Second

func runServeCommand(ctx context.Context, flags *ServeFlags) error {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if flags.Daemonize {
		_, err := daemonize(os.Stdout, flags.LogFile, flags.PidFile)
		return err
	}
	if flags.PidFile != "" {
		if err := writePidFile(flags.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(flags.PidFile) }()
	}

	log := logger.New(os.Stderr, cfg.Log)
	slog.SetDefault(log)

	d, err := newDaemon(cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return d.run(ctx)
}

// daemon wires the supervisor to its HTTP surfaces for the serve command.
type daemon struct {
	cfg     config.Config
	log     *slog.Logger
	sup     *supervisor.Supervisor
	api     *http.Server // nil when the server is disabled
	metrics *http.Server // nil unless metrics.listen is set
	sched   *schedule.Scheduler
}

func newDaemon(cfg config.Config, log *slog.Logger, reg prometheus.Registerer) (*daemon, error) {
	sinks, err := openSinks(cfg.History, log)
	if err != nil {
		return nil, err
	}
	d := &daemon{cfg: cfg, log: log}
	d.sup = supervisor.New(supervisor.Options{
		BufferSize:  cfg.BufferSize,
		StopTimeout: cfg.StopTimeout,
		Logger:      log,
		Mirror:      cfg.Log.File,
		Sinks:       sinks,
	})

	opts := []server.RouterOption{
		server.WithDefaultTask(cfg.Task),
		server.WithExecOverride(cfg.Server.AllowExec),
		server.WithLogger(log),
	}
	if cfg.Server.Auth.Enabled {
		svc, err := auth.New(cfg.Server.Auth)
		if err != nil {
			_ = d.sup.Close()
			return nil, fmt.Errorf("server auth: %w", err)
		}
		opts = append(opts, server.WithAuth(svc))
	}
	if cfg.Schedule.Enabled {
		d.sched, err = schedule.New(cfg.Schedule, d.sup, cfg.Task, log)
		if err != nil {
			_ = d.sup.Close()
			return nil, err
		}
	}
	if cfg.Metrics.Enabled {
		if err := metrics.Register(reg); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
		if cfg.Metrics.Listen == "" {
			opts = append(opts, server.WithMetrics(metrics.Handler()))
		} else {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			d.metrics = server.NewServer(cfg.Metrics.Listen, mux)
		}
	}
	if cfg.Server.Enabled {
		router := server.NewRouter(d.sup, cfg.Server.BasePath, opts...)
		var h http.Handler = router.Handler()
		if strings.EqualFold(cfg.Server.Engine, "echo") {
			h = server.NewEcho(router)
		}
		d.api = server.NewServer(cfg.Server.Listen, h)
		tc, err := itls.Setup(cfg.Server.TLS)
		if err != nil {
			_ = d.sup.Close()
			return nil, fmt.Errorf("server tls: %w", err)
		}
		d.api.TLSConfig = tc
	}
	return d, nil
}

// openSinks builds the configured history sinks. A sink that fails to open
// closes the ones already opened.
func openSinks(cfg config.HistoryConfig, log *slog.Logger) ([]history.Sink, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	var sinks []history.Sink
	for i, dsn := range cfg.Sinks {
		s, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			for _, o := range sinks {
				if c, ok := o.(io.Closer); ok {
					_ = c.Close()
				}
			}
			return nil, fmt.Errorf("history sink %d: %w", i, err)
		}
		if t, err := factory.ParseDSN(dsn); err == nil {
			log.Info("history sink enabled", "kind", t.Kind)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// run serves until ctx is cancelled, then shuts the servers down and stops
// the worker.
func (d *daemon) run(ctx context.Context) error {
	type bound struct {
		srv *http.Server
		ln  net.Listener
	}
	var servers []bound
	for _, srv := range []*http.Server{d.api, d.metrics} {
		if srv == nil {
			continue
		}
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, b := range servers {
				_ = b.ln.Close()
			}
			_ = d.sup.Close()
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		d.log.Info("listening", "addr", ln.Addr().String())
		servers = append(servers, bound{srv, ln})
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, b := range servers {
		b := b
		g.Go(func() error {
			serve := func() error { return b.srv.Serve(b.ln) }
			if b.srv.TLSConfig != nil {
				// certificates come from TLSConfig.GetCertificate
				serve = func() error { return b.srv.ServeTLS(b.ln, "", "") }
			}
			if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return b.srv.Shutdown(sctx)
		})
	}
	if d.cfg.Metrics.Enabled {
		g.Go(func() error { return d.sup.SampleLoop(ctx, d.cfg.Metrics.SampleInterval) })
	}
	if d.sched != nil {
		g.Go(func() error { return d.sched.Run(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	err := g.Wait()
	d.log.Info("shutting down")
	if cerr := d.sup.Close(); cerr != nil {
		d.log.Warn("close supervisor", "error", cerr)
	}
	return err
}

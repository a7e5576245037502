// Package supervisor runs at most one external worker process and collects
// its output into a bounded log buffer.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/librewallet/minerd/internal/history"
	"github.com/librewallet/minerd/internal/logbuf"
	"github.com/librewallet/minerd/internal/logger"
	"github.com/librewallet/minerd/internal/metrics"
	"github.com/librewallet/minerd/internal/process"
	"github.com/librewallet/minerd/internal/task"
)

// ErrLaunchFailed is returned (wrapped) by Start when the worker could not be
// launched. It is the only error Start reports.
var ErrLaunchFailed = errors.New("launch failed")

const (
	// DefaultStopTimeout is the grace period between SIGTERM and SIGKILL.
	DefaultStopTimeout = 3 * time.Second

	// readerDrain bounds how long Stop waits for the output readers after the
	// process has been reaped or declared unkillable.
	readerDrain = 2 * time.Second

	sinkTimeout = 5 * time.Second
)

// Options configure a Supervisor. The zero value is usable.
type Options struct {
	BufferSize  int           // log buffer bound; logbuf.DefaultCapacity when <= 0
	StopTimeout time.Duration // DefaultStopTimeout when <= 0
	Logger      *slog.Logger  // slog.Default() when nil
	// Mirror, when enabled, also writes every captured line to rotating
	// per-stream files.
	Mirror logger.FileConfig
	// Sinks receive lifecycle events. The supervisor owns them and closes
	// those implementing io.Closer in Close.
	Sinks []history.Sink
}

// Supervisor owns the single worker task.
type Supervisor struct {
	ctl sync.Mutex // serializes Start, Stop and Close

	mu   sync.Mutex
	cur  *run // active task, nil when idle
	last *run // most recent task, kept for Status

	buf         *logbuf.Buffer
	stopTimeout time.Duration
	log         *slog.Logger
	mirror      logger.FileConfig
	mirrors     map[string]mirrorPair // by task name, guarded by ctl
	sinks       []history.Sink
	sends       sync.WaitGroup
	closeOnce   sync.Once
	closeErr    error
}

// mirrorPair holds the rotating files of one task name. They live as long
// as the Supervisor so that restarts append to the same writers.
type mirrorPair struct {
	out, err io.WriteCloser
}

// run is one launched task.
type run struct {
	id       string
	cfg      task.Config
	argv     []string
	shown    []string // argv with the credential masked
	proc     *process.Process
	stopping atomic.Bool
	done     chan struct{} // closed once readers finished and the process was reaped
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// New creates an idle Supervisor.
func New(opts Options) *Supervisor {
	s := &Supervisor{
		buf:         logbuf.New(opts.BufferSize),
		stopTimeout: opts.StopTimeout,
		log:         opts.Logger,
		mirror:      opts.Mirror,
		mirrors:     make(map[string]mirrorPair),
		sinks:       opts.Sinks,
	}
	if s.stopTimeout <= 0 {
		s.stopTimeout = DefaultStopTimeout
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "supervisor")
	s.buf.OnEvict(metrics.AddEvicted)
	return s
}

// Buffer exposes the shared log buffer.
func (s *Supervisor) Buffer() *logbuf.Buffer { return s.buf }

// Snapshot returns a copy of the buffered log entries, oldest first.
func (s *Supervisor) Snapshot() []logbuf.Entry { return s.buf.Snapshot() }

// Tail returns the newest n entries, oldest first. n <= 0 returns all.
func (s *Supervisor) Tail(n int) []logbuf.Entry { return s.buf.Tail(n) }

// Since returns entries appended after sequence number seq and the current
// sequence number, for followers that poll.
func (s *Supervisor) Since(seq uint64) ([]logbuf.Entry, uint64) { return s.buf.Since(seq) }

// Running reports whether a task is active.
func (s *Supervisor) Running() bool {
	r := s.current()
	return r != nil && !r.finished()
}

func (s *Supervisor) current() *run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Start launches the worker described by cfg. When a task is already active
// it records that fact in the log and returns nil. A task that exited on its
// own is replaced. Any failure to launch is returned wrapping
// ErrLaunchFailed and leaves the supervisor idle.
func (s *Supervisor) Start(cfg task.Config) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if r := s.current(); r != nil {
		if !r.finished() {
			s.note("already running (pid %d)", r.proc.PID())
			return nil
		}
		s.clear(r)
	}

	cfg = cfg.WithDefaults()
	r := &run{id: uuid.NewString(), cfg: cfg, done: make(chan struct{})}

	if err := cfg.Validate(); err != nil {
		return s.launchFailed(r, err)
	}
	argv, err := cfg.Argv()
	if err != nil {
		return s.launchFailed(r, err)
	}
	r.argv = argv
	r.shown = redact(cfg, argv)
	r.proc = process.New(process.Spec{
		Name: cfg.Name,
		Path: cfg.Path(),
		Args: argv,
		Dir:  cfg.WorkDir,
		Env:  cfg.Env,
	})
	stdout, stderr, err := r.proc.Start()
	if err != nil {
		return s.launchFailed(r, err)
	}

	outW, errW := s.openMirror(cfg.Name)

	s.mu.Lock()
	s.cur, s.last = r, r
	s.mu.Unlock()

	go s.monitor(r, stdout, stderr, outW, errW)

	pid := r.proc.PID()
	s.note("started %s (pid %d)", cfg.Name, pid)
	s.log.Info("task started", "name", cfg.Name, "pid", pid, "run_id", r.id, "endpoint", cfg.Endpoint())
	metrics.IncStart(cfg.Name)
	s.emit(history.EventStart, r, nil)
	return nil
}

func (s *Supervisor) launchFailed(r *run, err error) error {
	s.note("launch failed: %v", err)
	s.log.Error("task launch failed", "name", r.cfg.Name, "binary", r.cfg.Binary, "error", err)
	metrics.IncLaunchFailure(r.cfg.Name)
	s.emit(history.EventLaunchFailed, r, err)
	return fmt.Errorf("%w: %s: %w", ErrLaunchFailed, r.cfg.Name, err)
}

// Stop terminates the active task: SIGTERM to its process group, SIGKILL
// after the stop timeout. Termination problems are logged; the task is
// always considered stopped afterwards. Without an active task it only
// records that nothing was running.
func (s *Supervisor) Stop() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	r := s.current()
	if r == nil || r.finished() {
		if r != nil {
			s.clear(r)
		}
		s.note("no task running")
		return nil
	}
	s.stop(r)
	return nil
}

func (s *Supervisor) stop(r *run) {
	r.stopping.Store(true)
	if err := r.proc.Stop(s.stopTimeout); err != nil {
		s.note("stop: %v", err)
		s.log.Warn("task termination", "name", r.cfg.Name, "pid", r.proc.PID(), "error", err)
	}
	t := time.NewTimer(readerDrain)
	select {
	case <-r.done:
	case <-t.C:
		s.log.Warn("output readers still open after stop", "name", r.cfg.Name)
	}
	t.Stop()

	s.clear(r)
	s.note("stopped %s", r.cfg.Name)
	s.log.Info("task stopped", "name", r.cfg.Name, "run_id", r.id)
	metrics.IncStop(r.cfg.Name)
	s.emit(history.EventStop, r, nil)
}

func (s *Supervisor) clear(r *run) {
	s.mu.Lock()
	if s.cur == r {
		s.cur = nil
	}
	s.mu.Unlock()
}

// monitor pumps both output streams into the buffer, then reaps the process.
// exec.Cmd closes the pipes in Wait, so Wait must follow the readers.
func (s *Supervisor) monitor(r *run, stdout, stderr io.ReadCloser, outW, errW io.Writer) {
	defer close(r.done)

	var g errgroup.Group
	g.Go(func() error { return s.pump(stdout, logbuf.StreamStdout, outW) })
	g.Go(func() error { return s.pump(stderr, logbuf.StreamStderr, errW) })
	if err := g.Wait(); err != nil {
		s.log.Debug("output reader ended", "name", r.cfg.Name, "error", err)
	}

	waitErr := r.proc.Wait()
	if r.stopping.Load() {
		return
	}
	st := r.proc.Snapshot()
	s.note("%s exited (%s)", r.cfg.Name, exitText(waitErr))
	s.log.Info("task exited", "name", r.cfg.Name, "pid", st.PID, "code", st.ExitCode, "error", waitErr)
	metrics.IncExit(r.cfg.Name, strconv.Itoa(st.ExitCode))
	s.emit(history.EventExit, r, waitErr)
}

func (s *Supervisor) pump(rc io.ReadCloser, stream logbuf.Stream, mirror io.Writer) error {
	defer func() { _ = rc.Close() }()
	return scanLines(rc,
		func(line string) {
			s.buf.Append(logbuf.Entry{Time: time.Now(), Stream: stream, Line: line})
			metrics.IncLogLine(stream.String())
			if mirror != nil {
				_, _ = io.WriteString(mirror, line+"\n")
			}
		},
		func() { metrics.IncSkippedLine(stream.String()) },
	)
}

// openMirror returns the mirror writers for name, creating them on first
// use. Callers hold ctl.
func (s *Supervisor) openMirror(name string) (io.Writer, io.Writer) {
	if !s.mirror.Enabled() {
		return nil, nil
	}
	m, ok := s.mirrors[name]
	if !ok {
		outW, errW, err := s.mirror.Writers(name)
		if err != nil {
			s.log.Warn("log mirror unavailable", "name", name, "error", err)
			return nil, nil
		}
		m = mirrorPair{out: outW, err: errW}
		s.mirrors[name] = m
	}
	return writerOrNil(m.out), writerOrNil(m.err)
}

// writerOrNil keeps a missing writer a nil interface for pump.
func writerOrNil(w io.WriteCloser) io.Writer {
	if w == nil {
		return nil
	}
	return w
}

func (s *Supervisor) closeMirrors() []error {
	var errs []error
	for name, m := range s.mirrors {
		for _, w := range []io.WriteCloser{m.out, m.err} {
			if w == nil {
				continue
			}
			if err := w.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close mirror %s: %w", name, err))
			}
		}
		delete(s.mirrors, name)
	}
	return errs
}

func exitText(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}

// note appends a supervisor entry to the log buffer.
func (s *Supervisor) note(format string, args ...any) {
	s.buf.AppendLine(logbuf.StreamSupervisor, fmt.Sprintf(format, args...))
}

// emit sends a lifecycle event to every sink in the background. Sink
// failures are logged and never reach the caller.
func (s *Supervisor) emit(typ history.EventType, r *run, err error) {
	if len(s.sinks) == 0 {
		return
	}
	e := history.Event{Type: typ, OccurredAt: time.Now().UTC(), Record: s.record(r, err)}
	for _, sink := range s.sinks {
		s.sends.Add(1)
		go func(sink history.Sink) {
			defer s.sends.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			defer cancel()
			if err := sink.Send(ctx, e); err != nil {
				s.log.Warn("history sink send failed", "event", string(e.Type), "error", err)
			}
		}(sink)
	}
}

func (s *Supervisor) record(r *run, err error) history.Record {
	rec := history.Record{
		RunID:    r.id,
		Name:     r.cfg.Name,
		Command:  commandLine(r.cfg, r.shown),
		Endpoint: r.cfg.Endpoint(),
	}
	if r.proc != nil {
		st := r.proc.Snapshot()
		rec.PID = st.PID
		rec.StartedAt = st.StartedAt
		rec.StoppedAt = st.StoppedAt
		rec.ExitCode = st.ExitCode
		if err == nil && st.ExitErr != nil {
			err = st.ExitErr
		}
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}

// History returns recent lifecycle events from the first sink that can be
// read back.
func (s *Supervisor) History(ctx context.Context, limit int) ([]history.Event, error) {
	for _, sink := range s.sinks {
		if rd, ok := sink.(history.Reader); ok {
			return rd.Recent(ctx, limit)
		}
	}
	return nil, nil
}

// Status reports the active task, or the most recent one when idle. CPU and
// memory are sampled from the live process.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	r := s.last
	s.mu.Unlock()

	st := Status{LogLines: s.buf.Len(), LogCap: s.buf.Cap()}
	if r == nil {
		return st
	}
	ps := r.proc.Snapshot()
	st.Running = ps.Running
	st.RunID = r.id
	st.Name = r.cfg.Name
	st.PID = ps.PID
	st.Command = r.cfg.Path()
	st.Args = r.shown
	st.Endpoint = r.cfg.Endpoint()
	st.StartedAt = ps.StartedAt
	st.StoppedAt = ps.StoppedAt
	st.ExitCode = ps.ExitCode
	if ps.ExitErr != nil {
		st.ExitErr = ps.ExitErr.Error()
	}
	if st.Running {
		if sample, err := r.proc.Sample(); err == nil {
			st.CPUPercent = sample.CPUPercent
			st.MemoryMB = sample.MemoryMB
		}
	}
	return st
}

// SampleLoop publishes worker CPU and memory gauges every interval until ctx
// is done.
func (s *Supervisor) SampleLoop(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = 5 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			r := s.current()
			if r == nil || r.finished() {
				continue
			}
			if sample, err := r.proc.Sample(); err == nil {
				metrics.SetWorkerUsage(r.cfg.Name, sample.CPUPercent, sample.MemoryMB)
			}
		}
	}
}

// Close stops the active task, waits for pending history sends and closes
// the sinks.
func (s *Supervisor) Close() error {
	s.ctl.Lock()
	if r := s.current(); r != nil && !r.finished() {
		s.stop(r)
	}
	s.ctl.Unlock()

	s.sends.Wait()
	s.closeOnce.Do(func() {
		s.ctl.Lock()
		errs := s.closeMirrors()
		s.ctl.Unlock()
		for _, sink := range s.sinks {
			if c, ok := sink.(io.Closer); ok {
				if err := c.Close(); err != nil {
					errs = append(errs, err)
				}
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// commandLine renders the invocation for history records.
func commandLine(cfg task.Config, shown []string) string {
	return strings.Join(append([]string{cfg.Path()}, shown...), " ")
}

const mask = "****"

// redact returns argv with the credential masked. The template is rendered
// again with a placeholder password so only the elements built from
// {{.Password}} change; a short password never hides ports or counts.
func redact(cfg task.Config, argv []string) []string {
	if cfg.Password == "" {
		return argv
	}
	secret := cfg.Password
	cfg.Password = mask
	shown, err := cfg.Argv()
	if err != nil || len(shown) != len(argv) {
		shown = make([]string, len(argv))
		for i, a := range argv {
			if a == secret {
				a = mask
			}
			shown[i] = a
		}
	}
	return shown
}

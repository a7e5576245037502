package process

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// killWait bounds how long Stop waits for the exit after SIGKILL.
const killWait = 2 * time.Second

// Process is one launch of an external worker. It is single-use: after the
// process exits a new Process is created for the next run.
//
// Exactly one goroutine must call Wait, and only after both output pipes
// returned by Start have been drained; exec.Cmd closes the pipes on Wait.
type Process struct {
	spec Spec

	mu        sync.Mutex
	cmd       *exec.Cmd
	status    Status
	startTick int64         // OS start time of the child, 0 when unknown
	waitDone  chan struct{} // closed once Wait has reaped the child
	waitOnce  sync.Once
}

func New(spec Spec) *Process {
	return &Process{spec: spec, waitDone: make(chan struct{})}
}

func (p *Process) Spec() Spec { return p.spec }

// Start launches the process with stdout and stderr captured as pipes.
func (p *Process) Start() (stdout, stderr io.ReadCloser, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return nil, nil, ErrAlreadyStarted
	}
	cmd := p.spec.BuildCommand()
	stdout, err = cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err = cmd.StderrPipe()
	if err != nil {
		_ = stdout.Close()
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		// Start closes the pipes it created on failure
		return nil, nil, err
	}
	p.cmd = cmd
	p.startTick = getProcStartUnix(cmd.Process.Pid)
	p.status = Status{
		Name:      p.spec.Name,
		Running:   true,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
	}
	return stdout, stderr, nil
}

// Wait blocks until the process exits, reaps it and records the exit.
func (p *Process) Wait() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil {
		return ErrNotStarted
	}
	err := cmd.Wait()
	p.markExited(cmd, err)
	return err
}

func (p *Process) markExited(cmd *exec.Cmd, err error) {
	p.mu.Lock()
	p.status.Running = false
	p.status.StoppedAt = time.Now()
	p.status.ExitErr = err
	if cmd.ProcessState != nil {
		p.status.ExitCode = cmd.ProcessState.ExitCode()
	}
	p.mu.Unlock()
	p.waitOnce.Do(func() { close(p.waitDone) })
}

// Done is closed after the process has been reaped.
func (p *Process) Done() <-chan struct{} { return p.waitDone }

// Exited reports whether the process has been reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.waitDone:
		return true
	default:
		return false
	}
}

// Stop sends SIGTERM to the process group, waits up to grace for the exit
// and escalates to SIGKILL. It relies on the Wait caller to observe the
// exit. The returned error describes signalling problems or a process that
// outlived the kill; the process state is still final from the caller's
// point of view.
func (p *Process) Stop(grace time.Duration) error {
	p.mu.Lock()
	cmd := p.cmd
	tick := p.startTick
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return ErrNotStarted
	}
	if p.Exited() {
		return nil
	}
	if tick != 0 && getProcStartUnix(cmd.Process.Pid) != tick && !p.Exited() {
		// PID now belongs to something else; never signal it
		return fmt.Errorf("pid %d was reused, refusing to signal", cmd.Process.Pid)
	}

	var errs []error
	if err := terminate(cmd.Process); err != nil {
		errs = append(errs, fmt.Errorf("terminate: %w", err))
	}
	if grace > 0 {
		t := time.NewTimer(grace)
		select {
		case <-p.waitDone:
			t.Stop()
			return errors.Join(errs...)
		case <-t.C:
		}
	}
	if p.Exited() {
		return errors.Join(errs...)
	}
	if err := kill(cmd.Process); err != nil {
		errs = append(errs, fmt.Errorf("kill: %w", err))
	}
	t := time.NewTimer(killWait)
	defer t.Stop()
	select {
	case <-p.waitDone:
	case <-t.C:
		errs = append(errs, ErrStopTimeout)
	}
	return errors.Join(errs...)
}

// Snapshot returns a copy of the current status.
func (p *Process) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// PID returns the OS process id, or 0 before Start.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.PID
}

// Alive probes the OS for the process. A zombie that was not yet reaped
// counts as dead.
func (p *Process) Alive() bool {
	if p.Exited() {
		return false
	}
	pid := p.PID()
	if pid == 0 {
		return false
	}
	if runtime.GOOS == "linux" && isZombieLinux(pid) {
		return false
	}
	return processExists(pid)
}

// isZombieLinux returns true if /proc/<pid>/status reports a zombie state (Z) on Linux.
func isZombieLinux(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

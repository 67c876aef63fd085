// Package supervisor runs and stops the external helper processes of the
// tester: the RTSP server and the per-device streaming pipelines.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultStartupGrace is how long a spawned process must survive before it counts as started.
	DefaultStartupGrace = 2 * time.Second
	// DefaultTerminateGrace is how long Terminate waits after SIGTERM before killing.
	DefaultTerminateGrace = 5 * time.Second

	killWait = 2 * time.Second
)

var (
	// ErrStartFailed is returned when a process cannot be started or exits during its startup grace.
	ErrStartFailed = errors.New("supervisor: process failed to start")
	// ErrNotRunning is returned by operations that need a live process.
	ErrNotRunning = errors.New("supervisor: process not running")
)

// CommandSpec describes a helper process. Args are passed as argv; no shell
// is involved. A zero StartupGrace selects DefaultStartupGrace and a negative
// one skips the startup check.
type CommandSpec struct {
	Name         string
	Path         string
	Args         []string
	Env          []string
	Dir          string
	StartupGrace time.Duration
}

// Process is a spawned helper.
type Process struct {
	Name string
	Pid  int

	cmd    *exec.Cmd
	done   chan struct{}
	logger *slog.Logger
	output []*logWriter

	mu      sync.Mutex
	exitErr error

	termOnce sync.Once
	termErr  error
}

// Supervisor tracks the processes it spawned.
type Supervisor struct {
	logger *slog.Logger

	mu    sync.Mutex
	procs []*Process
}

// New creates a supervisor.
func New(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{logger: logger}
}

// Spawn starts spec and waits for its startup grace. A process that exits
// within the grace period is reported as ErrStartFailed.
func (s *Supervisor) Spawn(ctx context.Context, spec CommandSpec) (*Process, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("%w: %s: empty command path", ErrStartFailed, spec.Name)
	}
	name := spec.Name
	if name == "" {
		name = spec.Path
	}
	logger := s.logger.With("process", name)

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	stdout := newLogWriter(logger, "stdout")
	stderr := newLogWriter(logger, "stderr")
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStartFailed, name, err)
	}

	p := &Process{
		Name:   name,
		Pid:    cmd.Process.Pid,
		cmd:    cmd,
		done:   make(chan struct{}),
		logger: logger.With("pid", cmd.Process.Pid),
		output: []*logWriter{stdout, stderr},
	}
	go p.reap()
	p.logger.Info("supervisor: process started", "path", spec.Path, "args", spec.Args)

	grace := spec.StartupGrace
	if grace == 0 {
		grace = DefaultStartupGrace
	}
	if grace > 0 {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-p.done:
			return nil, fmt.Errorf("%w: %s exited during startup: %v", ErrStartFailed, name, p.ExitErr())
		case <-ctx.Done():
			if err := p.Terminate(DefaultTerminateGrace); err != nil {
				p.logger.Warn("supervisor: terminate after cancelled startup failed", "error", err)
			}
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	s.procs = append(s.procs, p)
	s.mu.Unlock()
	return p, nil
}

// Processes returns the processes spawned and not yet released by TerminateAll.
func (s *Supervisor) Processes() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Process, len(s.procs))
	copy(out, s.procs)
	return out
}

// TerminateAll terminates every tracked process concurrently.
func (s *Supervisor) TerminateAll(ctx context.Context, grace time.Duration) error {
	s.mu.Lock()
	procs := s.procs
	s.procs = nil
	s.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, p := range procs {
		p := p
		g.Go(func() error {
			return p.Terminate(grace)
		})
	}
	return g.Wait()
}

func (p *Process) reap() {
	err := p.cmd.Wait()
	for _, w := range p.output {
		w.flush()
	}
	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()
	if err != nil {
		p.logger.Info("supervisor: process exited", "error", err)
	} else {
		p.logger.Info("supervisor: process exited")
	}
	close(p.done)
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitErr returns the wait error once the process has exited.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// IsAlive reports whether the process is still running.
func (p *Process) IsAlive() bool {
	select {
	case <-p.done:
		return false
	default:
	}
	exists, err := process.PidExists(int32(p.Pid))
	return err == nil && exists
}

// Terminate asks the process to exit with SIGTERM and kills it if it is
// still running after grace. Repeated calls return the first result.
func (p *Process) Terminate(grace time.Duration) error {
	p.termOnce.Do(func() {
		p.termErr = p.terminate(grace)
	})
	return p.termErr
}

func (p *Process) terminate(grace time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if grace <= 0 {
		grace = DefaultTerminateGrace
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("supervisor: SIGTERM failed", "error", err)
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		p.logger.Info("supervisor: process terminated")
		return nil
	case <-timer.C:
	}

	p.logger.Warn("supervisor: process ignored SIGTERM, killing", "grace", grace)
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("supervisor: kill %s: %w", p.Name, err)
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(killWait):
		return fmt.Errorf("supervisor: %s still running after kill", p.Name)
	}
}

// Snapshot is a resource sample of a running process.
type Snapshot struct {
	Pid        int
	CPUPercent float64
	RSSBytes   uint64
}

// Snapshot samples CPU and memory usage.
func (p *Process) Snapshot() (Snapshot, error) {
	if !p.IsAlive() {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotRunning, p.Name)
	}
	proc, err := process.NewProcess(int32(p.Pid))
	if err != nil {
		return Snapshot{}, fmt.Errorf("supervisor: inspect %s: %w", p.Name, err)
	}
	snap := Snapshot{Pid: p.Pid}
	if cpu, err := proc.CPUPercent(); err == nil {
		snap.CPUPercent = cpu
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return snap, fmt.Errorf("supervisor: memory info %s: %w", p.Name, err)
	}
	snap.RSSBytes = mem.RSS
	return snap, nil
}

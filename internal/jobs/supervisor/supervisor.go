// Package supervisor starts each stage in a fresh worker process and keeps
// track of it until it exits.
//
// Workers are not cancelled cooperatively: Kill terminates the process, and
// the outcome of a run is always read back from the predictor record, never
// from the exit status.
package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	jobrt "github.com/yungbote/modelforge-backend/internal/jobs/runtime"
	pkgerrors "github.com/yungbote/modelforge-backend/internal/pkg/errors"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
)

type Config struct {
	// Command is the worker command line. The JobSpec is written to its
	// stdin. Empty means re-executing the current binary as "worker".
	Command []string
	// Env is appended to the parent environment.
	Env []string
	// Output receives the worker's stdout and stderr. Defaults to os.Stderr.
	Output io.Writer
}

type Handle struct {
	RunID       string
	PID         int
	Stage       string
	PredictorID int64
	StartedAt   time.Time

	cmd     *exec.Cmd
	done    chan struct{}
	exitErr error
}

// Done is closed once the worker process has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitErr is the wait error of an exited worker, nil for exit status 0.
// It is diagnostics only.
func (h *Handle) ExitErr() error {
	select {
	case <-h.done:
		return h.exitErr
	default:
		return nil
	}
}

func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

type Supervisor struct {
	command []string
	env     []string
	output  io.Writer
	log     *logger.Logger

	mu      sync.Mutex
	handles map[int]*Handle
	closed  bool
}

func New(cfg Config, baseLog *logger.Logger) (*Supervisor, error) {
	command := cfg.Command
	if len(command) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("supervisor: resolve executable: %w", err)
		}
		command = []string{exe, "worker"}
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Supervisor{
		command: append([]string(nil), command...),
		env:     append([]string(nil), cfg.Env...),
		output:  out,
		log:     baseLog.With("component", "Supervisor"),
		handles: map[int]*Handle{},
	}, nil
}

// Start launches a worker for spec. The process is tied to the supervisor:
// on Linux it is killed when the parent dies, and Close kills every worker
// still running.
func (s *Supervisor) Start(ctx context.Context, spec jobrt.JobSpec) (*Handle, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidArgument, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var stdin bytes.Buffer
	if err := spec.Encode(&stdin); err != nil {
		return nil, fmt.Errorf("encode job spec: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("supervisor: closed")
	}

	cmd := exec.Command(s.command[0], s.command[1:]...)
	cmd.Env = append(os.Environ(), s.env...)
	cmd.Stdin = &stdin
	cmd.Stdout = s.output
	cmd.Stderr = s.output
	cmd.SysProcAttr = sysProcAttr()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s worker: %w", spec.Stage, err)
	}

	h := &Handle{
		RunID:       spec.RunID,
		PID:         cmd.Process.Pid,
		Stage:       spec.Stage,
		PredictorID: spec.PredictorID,
		StartedAt:   time.Now().UTC(),
		cmd:         cmd,
		done:        make(chan struct{}),
	}
	s.handles[h.PID] = h
	s.log.Info("Worker started", "pid", h.PID, "stage", h.Stage, "run_id", h.RunID, "predictor_id", h.PredictorID)

	go s.wait(h)
	return h, nil
}

func (s *Supervisor) wait(h *Handle) {
	err := h.cmd.Wait()

	s.mu.Lock()
	delete(s.handles, h.PID)
	s.mu.Unlock()

	h.exitErr = err
	close(h.done)

	if err != nil {
		s.log.Warn("Worker exited abnormally", "pid", h.PID, "stage", h.Stage, "run_id", h.RunID, "error", err)
		return
	}
	s.log.Info("Worker exited", "pid", h.PID, "stage", h.Stage, "run_id", h.RunID, "elapsed", time.Since(h.StartedAt).String())
}

// Join blocks until the worker exits or timeout elapses and reports whether
// it exited. A timeout of zero or less waits forever.
func (s *Supervisor) Join(h *Handle, timeout time.Duration) bool {
	if h == nil {
		return true
	}
	if timeout <= 0 {
		<-h.done
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-h.done:
		return true
	case <-t.C:
		return false
	}
}

// Kill terminates the worker immediately.
func (s *Supervisor) Kill(h *Handle) error {
	if h == nil || h.Exited() {
		return nil
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill worker %d: %w", h.PID, err)
	}
	s.log.Warn("Worker killed", "pid", h.PID, "stage", h.Stage, "run_id", h.RunID)
	return nil
}

// KillPID kills a worker this supervisor started.
func (s *Supervisor) KillPID(pid int) error {
	h, ok := s.Lookup(pid)
	if !ok {
		return fmt.Errorf("worker %d: %w", pid, pkgerrors.ErrNotFound)
	}
	return s.Kill(h)
}

func (s *Supervisor) Lookup(pid int) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[pid]
	return h, ok
}

// Running returns the live workers ordered by pid.
func (s *Supervisor) Running() []*Handle {
	s.mu.Lock()
	out := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Close kills every running worker and waits for them to exit. Start fails
// afterwards.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	for _, h := range s.Running() {
		if err := s.Kill(h); err != nil {
			s.log.Warn("Kill on close failed", "pid", h.PID, "error", err)
		}
		<-h.done
	}
}

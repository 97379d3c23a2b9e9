// Package worker is the body of the hidden "worker" subcommand: it runs one
// stage for the JobSpec the supervisor wrote to stdin and exits.
package worker

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/yungbote/modelforge-backend/internal/jobs/markers"
	jobrt "github.com/yungbote/modelforge-backend/internal/jobs/runtime"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
)

type Deps struct {
	Log      *logger.Logger
	Registry *jobrt.Registry
	// Markers is optional; without it no marker file is written.
	Markers *markers.Dir
}

// Run executes spec in the current process. The marker exists for the
// duration of the handler. A handler panic is converted to an error.
func Run(ctx context.Context, deps Deps, spec jobrt.JobSpec) (err error) {
	if deps.Registry == nil {
		return fmt.Errorf("worker: no handler registry")
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	jc := jobrt.NewContext(ctx, deps.Log, spec)
	log := jc.Log.With("component", "Worker")

	h, ok := deps.Registry.Get(spec.Stage)
	if !ok {
		return &missingHandlerError{Stage: spec.Stage}
	}

	pid := os.Getpid()
	if deps.Markers != nil {
		if merr := deps.Markers.Create(markers.Marker{
			PID:         pid,
			RunID:       spec.RunID,
			Stage:       spec.Stage,
			PredictorID: spec.PredictorID,
		}); merr != nil {
			log.Warn("Failed to write worker marker", "error", merr)
		}
		defer func() {
			if merr := deps.Markers.Remove(pid); merr != nil {
				log.Warn("Failed to remove worker marker", "error", merr)
			}
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Stage handler panic", "panic", r)
			err = &panicError{Val: r, Stack: debug.Stack()}
		}
	}()

	log.Info("Worker running stage")
	if err := h.Run(jc); err != nil {
		log.Error("Stage failed", "error", err)
		return err
	}
	log.Info("Stage finished")
	return nil
}

type missingHandlerError struct{ Stage string }

func (e *missingHandlerError) Error() string { return "no handler registered for stage=" + e.Stage }

type panicError struct {
	Val   any
	Stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }

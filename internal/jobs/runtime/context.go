package runtime

import (
	"context"

	"github.com/yungbote/modelforge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
)

/*
Context is the execution handle a worker gives to a stage handler.
It carries:
  - Ctx: cancellation for the worker process
  - Log: logger already tagged with run_id, stage and predictor_id
  - Job: the JobSpec the supervisor handed over on stdin

Handlers report outcomes through the predictor record, never through the
Context; the returned error only decides the worker's exit code.
*/
type Context struct {
	Ctx context.Context
	Log *logger.Logger
	Job JobSpec
}

func NewContext(ctx context.Context, baseLog *logger.Logger, job JobSpec) *Context {
	ctx = ctxutil.Default(ctx)
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Context{
		Ctx: ctx,
		Log: baseLog.With("run_id", job.RunID, "stage", job.Stage, "predictor_id", job.PredictorID),
		Job: job,
	}
}

// Package stages holds the executors that run inside a worker process:
// Generate, Fit, Learn, Update and Adjust. Every write to a predictor record
// happens under its row lock; long-running engine calls happen outside it.
package stages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/modelforge-backend/internal/data/artifacts"
	"github.com/yungbote/modelforge-backend/internal/data/datastore"
	"github.com/yungbote/modelforge-backend/internal/data/repos"
	"github.com/yungbote/modelforge-backend/internal/modules/training/registry"
	"github.com/yungbote/modelforge-backend/internal/modules/training/synth"
	"github.com/yungbote/modelforge-backend/internal/observability"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
)

type Deps struct {
	Log         *logger.Logger
	Predictors  repos.PredictorRepo
	Datasources repos.DatasourceRepo
	Loader      datastore.Loader
	Engine      synth.Engine
	Artifacts   artifacts.Store
	Registry    registry.Registrar
	// PredictorsPath is the local directory trained blobs are saved to
	// before they are handed to Artifacts.
	PredictorsPath string
	// Version is the orchestrator version stamped by Update.
	Version string
}

func (d Deps) check(stage string, needs ...string) error {
	var missing []string
	if d.Log == nil {
		missing = append(missing, "log")
	}
	if d.Predictors == nil {
		missing = append(missing, "predictors")
	}
	for _, n := range needs {
		switch {
		case n == "engine" && d.Engine == nil,
			n == "artifacts" && d.Artifacts == nil,
			n == "datasources" && d.Datasources == nil,
			n == "loader" && d.Loader == nil,
			n == "path" && strings.TrimSpace(d.PredictorsPath) == "":
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing deps: %s", stage, strings.Join(missing, ", "))
	}
	return nil
}

func (d Deps) registrar() registry.Registrar {
	if d.Registry == nil {
		return registry.NopRegistrar{}
	}
	return d.Registry
}

const failureWriteTimeout = 10 * time.Second

// failureContext outlives cancellation of ctx so a worker stopped by a
// signal still commits its terminal record state.
func failureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
}

func startSpan(ctx context.Context, stage string, predictorID int64, runID string) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, "stage."+stage, trace.WithAttributes(
		attribute.String("stage", stage),
		attribute.Int64("predictor_id", predictorID),
		attribute.String("run_id", runID),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Package training adapts the stage executors to the worker's handler
// registry. Each handler decodes its inputs from the JobSpec, loads the
// dataframe when the stage needs one, and calls the executor.
package training

import (
	"fmt"

	"github.com/yungbote/modelforge-backend/internal/data/datastore"
	jobrt "github.com/yungbote/modelforge-backend/internal/jobs/runtime"
	"github.com/yungbote/modelforge-backend/internal/modules/training/stages"
	"github.com/yungbote/modelforge-backend/internal/modules/training/synth"
	"github.com/yungbote/modelforge-backend/internal/pkg/dbctx"
)

// Register adds all training stage handlers to r.
func Register(r *jobrt.Registry, deps stages.Deps) error {
	for _, h := range []jobrt.Handler{
		&Generate{deps: deps},
		&Fit{deps: deps},
		&Learn{deps: deps},
		&Update{deps: deps},
		&Adjust{deps: deps},
	} {
		if err := r.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// loadFrame resolves the dataframe for a job: the JobSpec's datasource when
// set, otherwise the one the predictor record points at.
func loadFrame(jc *jobrt.Context, deps stages.Deps) (*datastore.Frame, error) {
	if deps.Loader == nil {
		return nil, fmt.Errorf("no dataset loader configured")
	}
	dsID := jc.Job.DatasourceID
	if dsID == 0 {
		rec, err := deps.Predictors.GetByID(dbctx.Context{Ctx: jc.Ctx}, jc.Job.PredictorID)
		if err != nil {
			return nil, fmt.Errorf("load predictor %d: %w", jc.Job.PredictorID, err)
		}
		if rec.DatasourceID == nil {
			return nil, fmt.Errorf("predictor %d has no datasource", rec.ID)
		}
		dsID = *rec.DatasourceID
	}
	df, err := deps.Loader.Load(jc.Ctx, dsID)
	if err != nil {
		return nil, fmt.Errorf("load datasource %d: %w", dsID, err)
	}
	return df, nil
}

func problemDefinition(jc *jobrt.Context) (synth.ProblemDefinition, error) {
	pd, err := synth.ProblemDefinitionFromMap(jc.Job.ProblemDefinition)
	if err != nil {
		return pd, fmt.Errorf("job %s: %w", jc.Job.Stage, err)
	}
	return pd, nil
}

package stages

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yungbote/modelforge-backend/internal/data/datastore"
	types "github.com/yungbote/modelforge-backend/internal/domain"
	"github.com/yungbote/modelforge-backend/internal/modules/training/synth"
	"github.com/yungbote/modelforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/modelforge-backend/internal/pkg/errors"
	"github.com/yungbote/modelforge-backend/internal/pkg/jsontree"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
)

type LearnInput struct {
	DF                     *datastore.Frame
	ProblemDefinition      synth.ProblemDefinition
	PredictorID            int64
	DeleteDatasourceOnFail bool
	Override               jsontree.Value
	RunID                  string
}

// Learn is Generate followed by Fit. On failure it re-locks the record and,
// if this run still owns it, optionally deletes the now-orphaned datasource
// and records the error. The original error is returned either way.
func Learn(ctx context.Context, deps Deps, in LearnInput) (err error) {
	if err := deps.check("learn", "engine", "artifacts", "path", "datasources"); err != nil {
		return err
	}
	ctx, span := startSpan(ctx, "learn", in.PredictorID, in.RunID)
	defer func() { endSpan(span, err) }()
	log := deps.Log.With("stage", "learn", "predictor_id", in.PredictorID, "run_id", in.RunID)

	_, err = Generate(ctx, deps, GenerateInput{
		DF:                in.DF,
		ProblemDefinition: in.ProblemDefinition,
		PredictorID:       in.PredictorID,
		Override:          in.Override,
		RunID:             in.RunID,
	})
	if err == nil {
		_, err = Fit(ctx, deps, FitInput{PredictorID: in.PredictorID, DF: in.DF, RunID: in.RunID})
	}
	if err == nil {
		return nil
	}

	cleanupLearnFailure(ctx, deps, log, in, err)
	return err
}

// FailLearn applies Learn's failure handling for an error raised before
// Learn could start, such as the dataset failing to load. It returns cause.
func FailLearn(ctx context.Context, deps Deps, in LearnInput, cause error) error {
	if err := deps.check("learn", "datasources"); err != nil {
		return err
	}
	log := deps.Log.With("stage", "learn", "predictor_id", in.PredictorID, "run_id", in.RunID)
	cleanupLearnFailure(ctx, deps, log, in, cause)
	return cause
}

func cleanupLearnFailure(ctx context.Context, deps Deps, log *logger.Logger, in LearnInput, cause error) {
	ctx, cancel := failureContext(ctx)
	defer cancel()
	text := cause.Error()
	var recorded *RecordedError
	if errors.As(cause, &recorded) {
		text = recorded.Trace
	}

	werr := deps.Predictors.WithLock(ctx, in.PredictorID, func(tx *gorm.DB, rec *types.Predictor) error {
		if ownedByOtherRun(rec, in.RunID) {
			log.Warn("Record claimed by another run; skipping learn failure cleanup", "owner_run_id", rec.RunID)
			return nil
		}
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		updates := map[string]interface{}{"data": types.ErrorData(text)}

		if in.DeleteDatasourceOnFail && rec.DatasourceID != nil {
			others, err := deps.Predictors.CountByDatasource(dbc, *rec.DatasourceID, rec.ID)
			if err != nil {
				return err
			}
			if others == 0 {
				if err := deps.Datasources.Delete(dbc, *rec.DatasourceID); err != nil && !errors.Is(err, pkgerrors.ErrNotFound) {
					return err
				}
				updates["datasource_id"] = nil
				log.Info("Deleted datasource of failed learn", "datasource_id", *rec.DatasourceID)
			} else {
				log.Info("Datasource still referenced; kept", "datasource_id", *rec.DatasourceID, "references", others)
			}
		}
		return deps.Predictors.UpdateFields(dbc, rec.ID, updates)
	})
	if werr != nil {
		log.Error("Learn failure cleanup failed", "error", werr, "cause", cause.Error())
	}
}

package stages

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"
	"gorm.io/gorm"

	"github.com/yungbote/modelforge-backend/internal/data/artifacts"
	"github.com/yungbote/modelforge-backend/internal/data/datastore"
	types "github.com/yungbote/modelforge-backend/internal/domain"
	"github.com/yungbote/modelforge-backend/internal/modules/training/registry"
	"github.com/yungbote/modelforge-backend/internal/modules/training/synth"
	"github.com/yungbote/modelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
)

const StatusComplete = "complete"

type FitInput struct {
	PredictorID int64
	DF          *datastore.Frame
	RunID       string
}

type FitOutput struct {
	Analysis    map[string]any
	DtypeDict   map[string]string
	ArtifactKey string
}

// Fit trains the stored code on the dataframe. The record shows the training
// marker while the engine runs (outside the lock) and ends with either the
// analysis or {"error": trace}. Training has no time limit here.
func Fit(ctx context.Context, deps Deps, in FitInput) (out FitOutput, err error) {
	if err := deps.check("fit", "engine", "artifacts", "path"); err != nil {
		return out, err
	}
	ctx, span := startSpan(ctx, "fit", in.PredictorID, in.RunID)
	defer func() { endSpan(span, err) }()
	log := deps.Log.With("stage", "fit", "predictor_id", in.PredictorID, "run_id", in.RunID)

	var rec *types.Predictor
	claimErr := deps.Predictors.WithLock(ctx, in.PredictorID, func(tx *gorm.DB, locked *types.Predictor) error {
		rec = locked
		if strings.TrimSpace(locked.Code) == "" {
			return xerrors.Errorf("predictor %d has no generated code", locked.ID)
		}
		updates := map[string]interface{}{"data": types.TrainingData()}
		if in.RunID != "" {
			updates["run_id"] = in.RunID
		}
		return deps.Predictors.UpdateFields(dbctx.Context{Ctx: ctx, Tx: tx}, locked.ID, updates)
	})
	if claimErr != nil {
		if rec == nil {
			// The record could not be read; there is nothing to write to.
			return out, xerrors.Errorf("fit: %w", claimErr)
		}
		return out, recordFitFailure(ctx, deps, log, in, claimErr)
	}

	key := artifacts.Key(rec.CompanyID, rec.ID)
	var model synth.Model
	trainErr := guard("train", func() error {
		var lerr error
		model, lerr = deps.Engine.Load(ctx, rec.Code)
		if lerr != nil {
			return xerrors.Errorf("load code: %w", lerr)
		}
		log.Info("Training started", "rows", in.DF.Len())
		if lerr := model.Learn(ctx, in.DF); lerr != nil {
			return xerrors.Errorf("learn: %w", lerr)
		}
		if lerr := os.MkdirAll(deps.PredictorsPath, 0o755); lerr != nil {
			return xerrors.Errorf("predictors path: %w", lerr)
		}
		if lerr := model.Save(filepath.Join(deps.PredictorsPath, key)); lerr != nil {
			return xerrors.Errorf("save: %w", lerr)
		}
		if lerr := deps.Artifacts.Put(ctx, key, key, deps.PredictorsPath); lerr != nil {
			return xerrors.Errorf("store artifact: %w", lerr)
		}
		return nil
	})
	if trainErr != nil {
		return out, recordFitFailure(ctx, deps, log, in, trainErr)
	}

	var analysis map[string]any
	var dtypes map[string]string
	if err := guard("collect analysis", func() error {
		analysis = model.Analysis()
		dtypes = model.DtypeDict()
		return nil
	}); err != nil {
		return out, recordFitFailure(ctx, deps, log, in, err)
	}

	stale := false
	err = deps.Predictors.WithLock(ctx, in.PredictorID, func(tx *gorm.DB, locked *types.Predictor) error {
		if ownedByOtherRun(locked, in.RunID) {
			stale = true
			return nil
		}
		rec = locked
		return deps.Predictors.UpdateFields(dbctx.Context{Ctx: ctx, Tx: tx}, locked.ID, map[string]interface{}{
			"data":       types.JSONOf(analysis),
			"dtype_dict": types.JSONOf(dtypes),
		})
	})
	if err != nil {
		return out, recordFitFailure(ctx, deps, log, in, xerrors.Errorf("store analysis: %w", err))
	}
	if stale {
		log.Warn("Record claimed by another run; dropping fit result", "artifact_key", key)
		return FitOutput{ArtifactKey: key}, nil
	}
	log.Info("Training finished", "artifact_key", key)

	register(ctx, deps, log, rec, key, analysis)
	return FitOutput{Analysis: analysis, DtypeDict: dtypes, ArtifactKey: key}, nil
}

// recordFitFailure writes {"error": trace} under the lock unless another run
// has claimed the record since, and returns a *RecordedError.
func recordFitFailure(ctx context.Context, deps Deps, log *logger.Logger, in FitInput, cause error) error {
	ctx, cancel := failureContext(ctx)
	defer cancel()
	text := FailureText(cause)
	written := false
	werr := deps.Predictors.WithLock(ctx, in.PredictorID, func(tx *gorm.DB, rec *types.Predictor) error {
		if ownedByOtherRun(rec, in.RunID) {
			log.Warn("Record claimed by another run; not recording fit failure", "owner_run_id", rec.RunID)
			return nil
		}
		written = true
		return deps.Predictors.UpdateFields(dbctx.Context{Ctx: ctx, Tx: tx}, rec.ID, map[string]interface{}{
			"data": types.ErrorData(text),
		})
	})
	if werr != nil {
		log.Error("Failed to record fit failure", "error", werr, "cause", cause.Error())
		return cause
	}
	log.Error("Training failed", "error", cause.Error())
	if !written {
		return cause
	}
	return &RecordedError{Err: cause, Trace: text}
}

func ownedByOtherRun(rec *types.Predictor, runID string) bool {
	return runID != "" && rec.RunID != "" && rec.RunID != runID
}

// register is best effort: the trained record is already committed.
func register(ctx context.Context, deps Deps, log *logger.Logger, rec *types.Predictor, key string, analysis map[string]any) {
	meta := registry.ModelMetadata{
		CompanyID:     rec.CompanyID,
		PredictorID:   rec.ID,
		Name:          rec.Name,
		Status:        StatusComplete,
		ArtifactKey:   key,
		EngineVersion: deps.Engine.Version(),
		Target:        rec.Target(),
	}
	if acc, ok := analysis["accuracies"].(map[string]any); ok {
		meta.Accuracies = acc
	}
	if err := deps.registrar().Register(ctx, meta); err != nil {
		log.Warn("Model registration failed", "error", err)
	}
}

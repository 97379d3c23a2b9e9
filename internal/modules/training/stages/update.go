package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
	"gorm.io/gorm"

	"github.com/yungbote/modelforge-backend/internal/data/artifacts"
	types "github.com/yungbote/modelforge-backend/internal/domain"
	"github.com/yungbote/modelforge-backend/internal/modules/training/synth"
	"github.com/yungbote/modelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/modelforge-backend/internal/pkg/jsontree"
)

type UpdateInput struct {
	CompanyID int64
	Name      string
	RunID     string
}

// Update retrains an existing predictor on its datasource with freshly
// inferred code (no override). It returns "" on success and a failure
// description otherwise; it never returns an error or panics.
//
// update_status moves none|up_to_date|update_failed -> updating first, and
// from updating to up_to_date or update_failed at the end.
func Update(ctx context.Context, deps Deps, in UpdateInput) (failure string) {
	if err := deps.check("update", "engine", "artifacts", "path", "loader"); err != nil {
		return err.Error()
	}
	log := deps.Log.With("stage", "update", "company_id", in.CompanyID, "name", in.Name, "run_id", in.RunID)

	rec, err := deps.Predictors.GetByName(dbctx.Context{Ctx: ctx}, in.CompanyID, in.Name)
	if err != nil {
		log.Warn("Update target not found", "error", err)
		return fmt.Sprintf("predictor %q not found: %v", in.Name, err)
	}

	ctx, span := startSpan(ctx, "update", rec.ID, in.RunID)
	var spanErr error
	defer func() { endSpan(span, spanErr) }()

	claimed := false
	err = guard("update", func() error {
		return runUpdate(ctx, deps, in, rec.ID, &claimed)
	})
	if err == nil {
		log.Info("Update finished")
		return ""
	}
	spanErr = err
	log.Error("Update failed", "error", err)

	if claimed {
		wctx, cancel := failureContext(ctx)
		defer cancel()
		werr := deps.Predictors.WithLock(wctx, rec.ID, func(tx *gorm.DB, locked *types.Predictor) error {
			updates := map[string]interface{}{"update_status": types.UpdateStatusUpdateFailed}
			// Do not leave a stale training marker behind for this run.
			if locked.IsTraining() && !ownedByOtherRun(locked, in.RunID) {
				updates["data"] = types.ErrorData(FailureText(err))
			}
			return deps.Predictors.UpdateFields(dbctx.Context{Ctx: wctx, Tx: tx}, locked.ID, updates)
		})
		if werr != nil {
			log.Error("Failed to mark update_failed", "error", werr)
		}
	}
	return err.Error()
}

func runUpdate(ctx context.Context, deps Deps, in UpdateInput, id int64, claimed *bool) error {
	var rec *types.Predictor
	err := deps.Predictors.WithLock(ctx, id, func(tx *gorm.DB, locked *types.Predictor) error {
		rec = locked
		return deps.Predictors.UpdateFields(dbctx.Context{Ctx: ctx, Tx: tx}, locked.ID, map[string]interface{}{
			"update_status": types.UpdateStatusUpdating,
		})
	})
	if err != nil {
		return xerrors.Errorf("mark updating: %w", err)
	}
	*claimed = true

	if rec.DatasourceID == nil {
		return xerrors.Errorf("predictor %d has no datasource", rec.ID)
	}
	df, err := deps.Loader.Load(ctx, *rec.DatasourceID)
	if err != nil {
		return xerrors.Errorf("load datasource: %w", err)
	}

	pd, err := updateProblemDefinition(rec)
	if err != nil {
		return err
	}

	var desc jsontree.Value
	var code string
	if err := guard("regenerate", func() error {
		var gerr error
		if desc, gerr = deps.Engine.InferDescription(ctx, df, pd); gerr != nil {
			return gerr
		}
		code, gerr = deps.Engine.Compile(ctx, desc)
		return gerr
	}); err != nil {
		return err
	}

	err = deps.Predictors.WithLock(ctx, id, func(tx *gorm.DB, locked *types.Predictor) error {
		updates := map[string]interface{}{
			"json_ai": types.JSONOf(desc),
			"code":    code,
			"data":    types.TrainingData(),
		}
		if in.RunID != "" {
			updates["run_id"] = in.RunID
		}
		return deps.Predictors.UpdateFields(dbctx.Context{Ctx: ctx, Tx: tx}, locked.ID, updates)
	})
	if err != nil {
		return xerrors.Errorf("store regenerated code: %w", err)
	}

	key := artifacts.Key(rec.CompanyID, rec.ID)
	var model synth.Model
	if err := guard("retrain", func() error {
		var lerr error
		if model, lerr = deps.Engine.Load(ctx, code); lerr != nil {
			return xerrors.Errorf("load code: %w", lerr)
		}
		if lerr = model.Learn(ctx, df); lerr != nil {
			return xerrors.Errorf("learn: %w", lerr)
		}
		if lerr = os.MkdirAll(deps.PredictorsPath, 0o755); lerr != nil {
			return xerrors.Errorf("predictors path: %w", lerr)
		}
		if lerr = model.Save(filepath.Join(deps.PredictorsPath, key)); lerr != nil {
			return xerrors.Errorf("save: %w", lerr)
		}
		return deps.Artifacts.Put(ctx, key, key, deps.PredictorsPath)
	}); err != nil {
		return err
	}

	analysis := model.Analysis()
	err = deps.Predictors.WithLock(ctx, id, func(tx *gorm.DB, locked *types.Predictor) error {
		return deps.Predictors.UpdateFields(dbctx.Context{Ctx: ctx, Tx: tx}, locked.ID, map[string]interface{}{
			"data":       types.JSONOf(analysis),
			"dtype_dict": types.JSONOf(model.DtypeDict()),
		})
	})
	if err != nil {
		return xerrors.Errorf("store analysis: %w", err)
	}

	err = deps.Predictors.WithLock(ctx, id, func(tx *gorm.DB, locked *types.Predictor) error {
		rec = locked
		return deps.Predictors.UpdateFields(dbctx.Context{Ctx: ctx, Tx: tx}, locked.ID, map[string]interface{}{
			"engine_version":       deps.Engine.Version(),
			"orchestrator_version": deps.Version,
			"update_status":        types.UpdateStatusUpToDate,
		})
	})
	if err != nil {
		return xerrors.Errorf("stamp versions: %w", err)
	}

	register(ctx, deps, deps.Log.With("stage", "update", "predictor_id", id), rec, key, analysis)
	return nil
}

// updateProblemDefinition rebuilds the problem definition from the stored
// learn args: the target comes from to_predict, the join flag is dropped and
// the legacy time limit key is renamed.
func updateProblemDefinition(rec *types.Predictor) (synth.ProblemDefinition, error) {
	args := rec.LearnArgsMap()
	pd := make(map[string]any, len(args)+1)
	for k, v := range args {
		pd[k] = v
	}
	if target := rec.Target(); target != "" {
		pd["target"] = target
	}
	delete(pd, "join_learn_process")
	if v, ok := pd["stop_training_in_x_seconds"]; ok {
		pd["time_aim"] = v
		delete(pd, "stop_training_in_x_seconds")
	}
	out, err := synth.ProblemDefinitionFromMap(pd)
	if err != nil {
		return out, xerrors.Errorf("problem definition: %w", err)
	}
	return out, nil
}

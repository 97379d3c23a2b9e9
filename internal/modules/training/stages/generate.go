package stages

import (
	"context"

	"golang.org/x/xerrors"
	"gorm.io/gorm"

	"github.com/yungbote/modelforge-backend/internal/data/datastore"
	types "github.com/yungbote/modelforge-backend/internal/domain"
	"github.com/yungbote/modelforge-backend/internal/modules/training/override"
	"github.com/yungbote/modelforge-backend/internal/modules/training/synth"
	"github.com/yungbote/modelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/modelforge-backend/internal/pkg/jsontree"
)

type GenerateInput struct {
	DF                *datastore.Frame
	ProblemDefinition synth.ProblemDefinition
	PredictorID       int64
	// Override is merged into the inferred description; null means none.
	Override jsontree.Value
	RunID    string
}

type GenerateOutput struct {
	JSONAI jsontree.Value
	Code   string
}

// Generate infers a model description, applies the override, compiles it,
// and stores json_ai and code together in one locked transaction. Nothing is
// written when any step fails.
func Generate(ctx context.Context, deps Deps, in GenerateInput) (out GenerateOutput, err error) {
	if err := deps.check("generate", "engine"); err != nil {
		return out, err
	}
	ctx, span := startSpan(ctx, "generate", in.PredictorID, in.RunID)
	defer func() { endSpan(span, err) }()
	log := deps.Log.With("stage", "generate", "predictor_id", in.PredictorID, "run_id", in.RunID)

	var desc jsontree.Value
	if err := guard("infer description", func() error {
		var ierr error
		desc, ierr = deps.Engine.InferDescription(ctx, in.DF, in.ProblemDefinition)
		return ierr
	}); err != nil {
		return out, err
	}

	desc, err = override.Apply(desc, in.Override)
	if err != nil {
		return out, xerrors.Errorf("apply json_ai override: %w", err)
	}

	var code string
	if err := guard("compile", func() error {
		var cerr error
		code, cerr = deps.Engine.Compile(ctx, desc)
		return cerr
	}); err != nil {
		return out, err
	}

	err = deps.Predictors.WithLock(ctx, in.PredictorID, func(tx *gorm.DB, rec *types.Predictor) error {
		updates := map[string]interface{}{
			"json_ai": types.JSONOf(desc),
			"code":    code,
		}
		if in.RunID != "" {
			updates["run_id"] = in.RunID
		}
		return deps.Predictors.UpdateFields(dbctx.Context{Ctx: ctx, Tx: tx}, rec.ID, updates)
	})
	if err != nil {
		return out, xerrors.Errorf("store generated code: %w", err)
	}

	log.Info("Generated model code", "code_bytes", len(code))
	return GenerateOutput{JSONAI: desc, Code: code}, nil
}

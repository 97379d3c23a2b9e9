package stages

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/modelforge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/modelforge-backend/internal/domain"
	"github.com/yungbote/modelforge-backend/internal/modules/training/synth"
	"github.com/yungbote/modelforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/modelforge-backend/internal/pkg/errors"
	"github.com/yungbote/modelforge-backend/internal/pkg/jsontree"
)

func learnInput(id int64, runID string, deleteOnFail bool) LearnInput {
	return LearnInput{
		DF:                     testFrame(),
		ProblemDefinition:      synth.ProblemDefinition{Target: "y"},
		PredictorID:            id,
		DeleteDatasourceOnFail: deleteOnFail,
		Override:               jsontree.Null(),
		RunID:                  runID,
	}
}

func TestLearnSuccess(t *testing.T) {
	h := newHarness(t)
	p := h.seed(t, nil)
	if err := Learn(context.Background(), h.deps, learnInput(p.ID, "run-1", true)); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	rec := h.reload(t, p.ID)
	if rec.Code == "" || rec.IsTraining() {
		t.Fatalf("Learn: code=%q data=%s", rec.Code, rec.Data)
	}
	if _, ok := rec.ErrorMessage(); ok {
		t.Fatalf("Learn: unexpected error %s", rec.Data)
	}
}

func TestLearnFailureDeletesOrphanedDatasource(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ds := testutil.SeedDatasource(t, ctx, h.db, 1, "/tmp/rentals.csv")
	p := h.seed(t, &ds.ID)
	h.engine.learnErr = errBoom

	err := Learn(ctx, h.deps, learnInput(p.ID, "run-1", true))
	if !errors.Is(err, errBoom) {
		t.Fatalf("Learn: want boom got=%v", err)
	}
	if _, err := h.repos.Datasources.GetByID(dbctx.Context{Ctx: ctx}, ds.ID); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("datasource: want deleted got err=%v", err)
	}
	rec := h.reload(t, p.ID)
	if rec.DatasourceID != nil {
		t.Fatalf("datasource_id: want cleared got=%d", *rec.DatasourceID)
	}
	msg, ok := rec.ErrorMessage()
	if !ok || !strings.Contains(msg, "Main error: ") {
		t.Fatalf("data.error: want the detailed fit trace got=%q", msg)
	}
}

func TestLearnFailureKeepsSharedDatasource(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ds := testutil.SeedDatasource(t, ctx, h.db, 1, "/tmp/rentals.csv")
	p := h.seed(t, &ds.ID)
	h.seed(t, &ds.ID)
	h.engine.inferErr = errBoom

	if err := Learn(ctx, h.deps, learnInput(p.ID, "", true)); !errors.Is(err, errBoom) {
		t.Fatalf("Learn: want boom got=%v", err)
	}
	if _, err := h.repos.Datasources.GetByID(dbctx.Context{Ctx: ctx}, ds.ID); err != nil {
		t.Fatalf("shared datasource deleted: %v", err)
	}
	rec := h.reload(t, p.ID)
	if rec.DatasourceID == nil || *rec.DatasourceID != ds.ID {
		t.Fatalf("datasource_id: want kept")
	}
	if msg, ok := rec.ErrorMessage(); !ok || !strings.Contains(msg, "boom") {
		t.Fatalf("data.error: got=%q", msg)
	}
}

func TestLearnFailureWithoutDeleteFlagKeepsDatasource(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ds := testutil.SeedDatasource(t, ctx, h.db, 1, "/tmp/rentals.csv")
	p := h.seed(t, &ds.ID)
	h.engine.learnErr = errBoom

	if err := Learn(ctx, h.deps, learnInput(p.ID, "run-1", false)); err == nil {
		t.Fatalf("Learn: expected error")
	}
	if _, err := h.repos.Datasources.GetByID(dbctx.Context{Ctx: ctx}, ds.ID); err != nil {
		t.Fatalf("datasource deleted without the flag: %v", err)
	}
}

func TestLearnFailureLeavesRecordClaimedByAnotherRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ds := testutil.SeedDatasource(t, ctx, h.db, 1, "/tmp/rentals.csv")
	p := h.seed(t, &ds.ID)
	if err := h.repos.Predictors.UpdateFields(dbctx.Context{Ctx: ctx}, p.ID, map[string]interface{}{
		"run_id": "newer-run",
		"data":   types.TrainingData(),
	}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	h.engine.inferErr = errBoom

	if err := Learn(ctx, h.deps, learnInput(p.ID, "stale-run", true)); !errors.Is(err, errBoom) {
		t.Fatalf("Learn: want boom got=%v", err)
	}
	rec := h.reload(t, p.ID)
	if !rec.IsTraining() {
		t.Fatalf("data: stale run overwrote the newer run's state: %s", rec.Data)
	}
	if _, err := h.repos.Datasources.GetByID(dbctx.Context{Ctx: ctx}, ds.ID); err != nil {
		t.Fatalf("datasource: stale run deleted it: %v", err)
	}
}

func TestFailLearnRecordsCauseAndCleansUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ds := testutil.SeedDatasource(t, ctx, h.db, 1, "/tmp/missing.csv")
	p := h.seed(t, &ds.ID)

	err := FailLearn(ctx, h.deps, learnInput(p.ID, "", true), errBoom)
	if !errors.Is(err, errBoom) {
		t.Fatalf("FailLearn: want boom got=%v", err)
	}
	if _, err := h.repos.Datasources.GetByID(dbctx.Context{Ctx: ctx}, ds.ID); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("datasource: want deleted got err=%v", err)
	}
	if msg, ok := h.reload(t, p.ID).ErrorMessage(); !ok || msg != "boom" {
		t.Fatalf("data.error: want=boom got=%q", msg)
	}
}

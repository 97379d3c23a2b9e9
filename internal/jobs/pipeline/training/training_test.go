package training

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/modelforge-backend/internal/data/artifacts"
	"github.com/yungbote/modelforge-backend/internal/data/datastore"
	"github.com/yungbote/modelforge-backend/internal/data/repos"
	"github.com/yungbote/modelforge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/modelforge-backend/internal/domain"
	jobrt "github.com/yungbote/modelforge-backend/internal/jobs/runtime"
	"github.com/yungbote/modelforge-backend/internal/modules/training/stages"
	"github.com/yungbote/modelforge-backend/internal/modules/training/synth/baseline"
	"github.com/yungbote/modelforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/modelforge-backend/internal/pkg/errors"
	"github.com/yungbote/modelforge-backend/internal/pkg/jsontree"
)

type env struct {
	db       *gorm.DB
	repos    repos.Repos
	registry *jobrt.Registry
	deps     stages.Deps
	store    string
	csv      string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	rs := repos.New(db, log)
	dir := t.TempDir()
	csv := filepath.Join(dir, "rentals.csv")
	if err := os.WriteFile(csv, []byte("rooms,area,rent\n1,30,500\n2,55,900\n3,80,1400\n2,60,950\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	e := &env{
		db:       db,
		repos:    rs,
		registry: jobrt.NewRegistry(),
		store:    filepath.Join(dir, "store"),
		csv:      csv,
	}
	e.deps = stages.Deps{
		Log:            log,
		Predictors:     rs.Predictors,
		Datasources:    rs.Datasources,
		Loader:         datastore.NewRecordLoader(rs.Datasources, nil, log),
		Engine:         baseline.New(),
		Artifacts:      artifacts.NewLocalStore(e.store, log),
		PredictorsPath: filepath.Join(dir, "predictors"),
		Version:        "test",
	}
	if err := Register(e.registry, e.deps); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return e
}

func (e *env) seed(t *testing.T, location string) (*types.Predictor, *types.Datasource) {
	t.Helper()
	ctx := context.Background()
	ds := testutil.SeedDatasource(t, ctx, e.db, 1, location)
	p := testutil.SeedPredictor(t, ctx, e.db, 1, &ds.ID, "rent")
	return p, ds
}

func (e *env) reload(t *testing.T, id int64) *types.Predictor {
	t.Helper()
	p, err := e.repos.Predictors.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	return p
}

func (e *env) run(t *testing.T, spec jobrt.JobSpec) error {
	t.Helper()
	h, ok := e.registry.Get(spec.Stage)
	if !ok {
		t.Fatalf("no handler for %s", spec.Stage)
	}
	return h.Run(jobrt.NewContext(context.Background(), nil, spec))
}

func TestRegisterAddsEveryStage(t *testing.T) {
	e := newEnv(t)
	got := strings.Join(e.registry.Stages(), ",")
	if got != "adjust,fit,generate,learn,update" {
		t.Fatalf("Stages: got=%s", got)
	}
	if err := Register(e.registry, e.deps); err == nil {
		t.Fatalf("Register twice: expected duplicate error")
	}
}

func TestLearnHandlerTrainsFromDatasource(t *testing.T) {
	e := newEnv(t)
	p, ds := e.seed(t, e.csv)
	err := e.run(t, jobrt.JobSpec{
		RunID:             "run-1",
		Stage:             jobrt.StageLearn,
		PredictorID:       p.ID,
		DatasourceID:      ds.ID,
		CompanyID:         1,
		ProblemDefinition: map[string]any{"target": "rent"},
		Override:          jsontree.Null(),
	})
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	rec := e.reload(t, p.ID)
	if rec.Code == "" || rec.IsTraining() {
		t.Fatalf("record: code=%q data=%s", rec.Code, rec.Data)
	}
	if _, ok := rec.ErrorMessage(); ok {
		t.Fatalf("record: unexpected error %s", rec.Data)
	}
	if _, err := os.Stat(filepath.Join(e.store, artifacts.Key(1, p.ID))); err != nil {
		t.Fatalf("artifact: %v", err)
	}
}

func TestLearnHandlerMissingDatasetCleansUp(t *testing.T) {
	e := newEnv(t)
	p, ds := e.seed(t, filepath.Join(t.TempDir(), "gone.csv"))
	err := e.run(t, jobrt.JobSpec{
		RunID:                  "run-1",
		Stage:                  jobrt.StageLearn,
		PredictorID:            p.ID,
		DatasourceID:           ds.ID,
		CompanyID:              1,
		ProblemDefinition:      map[string]any{"target": "rent"},
		DeleteDatasourceOnFail: true,
	})
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("learn: want ErrNotFound got=%v", err)
	}
	if _, ok := e.reload(t, p.ID).ErrorMessage(); !ok {
		t.Fatalf("record: want error data")
	}
	if _, err := e.repos.Datasources.GetByID(dbctx.Context{Ctx: context.Background()}, ds.ID); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("datasource: want deleted got err=%v", err)
	}
}

func TestLearnHandlerBadProblemDefinitionFailsRecord(t *testing.T) {
	e := newEnv(t)
	p, ds := e.seed(t, e.csv)
	err := e.run(t, jobrt.JobSpec{
		RunID:                  "run-1",
		Stage:                  jobrt.StageLearn,
		PredictorID:            p.ID,
		DatasourceID:           ds.ID,
		CompanyID:              1,
		ProblemDefinition:      map[string]any{},
		DeleteDatasourceOnFail: true,
	})
	if err == nil {
		t.Fatalf("learn: expected error for missing target")
	}
	rec := e.reload(t, p.ID)
	if rec.IsTraining() {
		t.Fatalf("record: training marker left behind: %s", rec.Data)
	}
	if msg, ok := rec.ErrorMessage(); !ok || !strings.Contains(msg, "target") {
		t.Fatalf("data.error: got=%q", msg)
	}
	if _, err := e.repos.Datasources.GetByID(dbctx.Context{Ctx: context.Background()}, ds.ID); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("datasource: want deleted got err=%v", err)
	}
}

func TestGenerateThenFitUsesRecordDatasource(t *testing.T) {
	e := newEnv(t)
	p, _ := e.seed(t, e.csv)
	base := jobrt.JobSpec{RunID: "run-2", PredictorID: p.ID, CompanyID: 1}

	gen := base
	gen.Stage = jobrt.StageGenerate
	gen.ProblemDefinition = map[string]any{"target": "rent"}
	gen.Override = jsontree.MustParse(`{"model": {"args": {"note": "pinned"}}}`)
	if err := e.run(t, gen); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(e.reload(t, p.ID).Code, "pinned") {
		t.Fatalf("generate: override missing from code")
	}

	fit := base
	fit.Stage = jobrt.StageFit
	if err := e.run(t, fit); err != nil {
		t.Fatalf("fit: %v", err)
	}
	if len(e.reload(t, p.ID).DtypeDict) == 0 {
		t.Fatalf("fit: dtype_dict not stored")
	}
}

func TestUpdateHandlerReturnsFailureAsError(t *testing.T) {
	e := newEnv(t)
	err := e.run(t, jobrt.JobSpec{RunID: "run-3", Stage: jobrt.StageUpdate, CompanyID: 1, Name: "missing"})
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("update: want failure got=%v", err)
	}
}

func TestUpdateHandlerRetrains(t *testing.T) {
	e := newEnv(t)
	p, _ := e.seed(t, e.csv)
	if err := e.run(t, jobrt.JobSpec{RunID: "run-4", Stage: jobrt.StageUpdate, CompanyID: 1, Name: p.Name}); err != nil {
		t.Fatalf("update: %v", err)
	}
	rec := e.reload(t, p.ID)
	if rec.UpdateStatus != types.UpdateStatusUpToDate || rec.EngineVersion != baseline.Version {
		t.Fatalf("update: status=%s engine=%s", rec.UpdateStatus, rec.EngineVersion)
	}
}

func TestAdjustHandlerIsNoop(t *testing.T) {
	e := newEnv(t)
	if err := e.run(t, jobrt.JobSpec{RunID: "r", Stage: jobrt.StageAdjust, PredictorID: 1}); err != nil {
		t.Fatalf("adjust: %v", err)
	}
}

package stages

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/modelforge-backend/internal/data/datastore"
	"github.com/yungbote/modelforge-backend/internal/data/repos"
	"github.com/yungbote/modelforge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/modelforge-backend/internal/domain"
	"github.com/yungbote/modelforge-backend/internal/modules/training/registry"
	"github.com/yungbote/modelforge-backend/internal/modules/training/synth"
	"github.com/yungbote/modelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/modelforge-backend/internal/pkg/jsontree"
)

type fakeEngine struct {
	mu         sync.Mutex
	inferErr   error
	compileErr error
	learnErr   error
	learnPanic bool
	learnDelay time.Duration
	learnHook  func()
	lastPD     synth.ProblemDefinition
}

func (e *fakeEngine) Version() string { return "fake-0.1" }

func (e *fakeEngine) InferDescription(ctx context.Context, df *datastore.Frame, pd synth.ProblemDefinition) (jsontree.Value, error) {
	e.mu.Lock()
	e.lastPD = pd
	e.mu.Unlock()
	if e.inferErr != nil {
		return jsontree.Value{}, e.inferErr
	}
	return jsontree.Map(
		jsontree.F("problem_definition", jsontree.Map(jsontree.F("target", jsontree.String(pd.Target)))),
		jsontree.F("encoders", jsontree.Map()),
		jsontree.F("model", jsontree.MustParse(`{"module":"Fake","args":{"depth":"2"}}`)),
	), nil
}

func (e *fakeEngine) Compile(ctx context.Context, desc jsontree.Value) (string, error) {
	if e.compileErr != nil {
		return "", e.compileErr
	}
	return string(desc.Bytes()), nil
}

func (e *fakeEngine) Load(ctx context.Context, code string) (synth.Model, error) {
	return &fakeModel{engine: e}, nil
}

func (e *fakeEngine) problemDefinition() synth.ProblemDefinition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPD
}

type fakeModel struct {
	engine *fakeEngine
}

func (m *fakeModel) Learn(ctx context.Context, df *datastore.Frame) error {
	if m.engine.learnPanic {
		panic("engine exploded")
	}
	if m.engine.learnHook != nil {
		m.engine.learnHook()
	}
	if m.engine.learnDelay > 0 {
		select {
		case <-time.After(m.engine.learnDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.engine.learnErr
}

func (m *fakeModel) Save(path string) error {
	return os.WriteFile(path, []byte("blob"), 0o644)
}

func (m *fakeModel) Analysis() map[string]any {
	return map[string]any{"accuracies": map[string]any{"r2": 0.9}}
}

func (m *fakeModel) DtypeDict() map[string]string {
	return map[string]string{"x": "integer", "y": "integer"}
}

type fakeStore struct {
	mu   sync.Mutex
	puts []string
}

func (s *fakeStore) Put(ctx context.Context, localKey, remoteKey, basePath string) error {
	if _, err := os.Stat(filepath.Join(basePath, localKey)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, remoteKey)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts)
}

type fakeRegistry struct {
	mu    sync.Mutex
	err   error
	names []string
}

func (r *fakeRegistry) Register(ctx context.Context, m registry.ModelMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, m.Name)
	return r.err
}

type frameLoader struct {
	df  *datastore.Frame
	err error
}

func (l *frameLoader) Load(ctx context.Context, datasourceID int64) (*datastore.Frame, error) {
	return l.df, l.err
}

type harness struct {
	db     *gorm.DB
	repos  repos.Repos
	engine *fakeEngine
	store  *fakeStore
	reg    *fakeRegistry
	loader *frameLoader
	deps   Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	h := &harness{
		db:     db,
		repos:  repos.New(db, log),
		engine: &fakeEngine{},
		store:  &fakeStore{},
		reg:    &fakeRegistry{},
		loader: &frameLoader{df: testFrame()},
	}
	h.deps = Deps{
		Log:            log,
		Predictors:     h.repos.Predictors,
		Datasources:    h.repos.Datasources,
		Loader:         h.loader,
		Engine:         h.engine,
		Artifacts:      h.store,
		Registry:       h.reg,
		PredictorsPath: t.TempDir(),
		Version:        "test",
	}
	return h
}

func testFrame() *datastore.Frame {
	return &datastore.Frame{
		Columns: []string{"x", "y"},
		Rows:    [][]string{{"1", "2"}, {"2", "4"}, {"3", "6"}},
	}
}

func (h *harness) seed(t *testing.T, datasourceID *int64) *types.Predictor {
	t.Helper()
	return testutil.SeedPredictor(t, context.Background(), h.db, 1, datasourceID, "y")
}

func (h *harness) seedWithCode(t *testing.T) *types.Predictor {
	t.Helper()
	p := h.seed(t, nil)
	if err := h.repos.Predictors.UpdateFields(dbctx.Context{Ctx: context.Background()}, p.ID, map[string]interface{}{
		"code": `{"model":{"module":"Fake"}}`,
	}); err != nil {
		t.Fatalf("seed code: %v", err)
	}
	return p
}

func (h *harness) reload(t *testing.T, id int64) *types.Predictor {
	t.Helper()
	p, err := h.repos.Predictors.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil {
		t.Fatalf("reload predictor %d: %v", id, err)
	}
	return p
}

var errBoom = errors.New("boom")

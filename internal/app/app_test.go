package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yungbote/modelforge-backend/internal/config"
	jobrt "github.com/yungbote/modelforge-backend/internal/jobs/runtime"
	"github.com/yungbote/modelforge-backend/internal/modules/training/registry"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "db", "modelforge.db"))
	t.Setenv("MODELFORGE_PREDICTORS_PATH", filepath.Join(dir, "predictors"))
	t.Setenv("MODELFORGE_MARKERS_PATH", filepath.Join(dir, "markers"))
	t.Setenv("MODELFORGE_ARTIFACT_ROOT", filepath.Join(dir, "artifacts"))
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("OTEL_ENABLED", "false")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

func TestNewWiresLocalStack(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	want := []string{jobrt.StageAdjust, jobrt.StageFit, jobrt.StageGenerate, jobrt.StageLearn, jobrt.StageUpdate}
	got := a.Jobs.Stages()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("stages: want=%v got=%v", want, got)
	}
	if _, ok := a.Registrar.(registry.NopRegistrar); !ok {
		t.Fatalf("registrar: want NopRegistrar without redis, got=%T", a.Registrar)
	}
	if a.Buckets != nil {
		t.Fatalf("buckets: want nil in local mode")
	}
	if deps := a.WorkerDeps(); deps.Registry != a.Jobs || deps.Markers != a.Markers {
		t.Fatalf("WorkerDeps: not wired to the app registry")
	}

	rec := httptest.NewRecorder()
	a.Server().Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"database":"ok"`) {
		t.Fatalf("GET /healthz: got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	a.Server().Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/predictors", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/predictors: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestNewRejectsUnknownEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine = "lightwood"
	if _, err := New(context.Background(), cfg, logger.Nop()); err == nil {
		t.Fatalf("New: expected error for unknown engine")
	}
}

func TestWorkerEnvCarriesConfigPath(t *testing.T) {
	cfg := &config.Config{LogMode: "production", Path: "/etc/modelforge.yaml"}
	env := strings.Join(workerEnv(cfg), " ")
	if !strings.Contains(env, "LOG_MODE=production") || !strings.Contains(env, config.EnvConfigPath+"=/etc/modelforge.yaml") {
		t.Fatalf("workerEnv: got=%s", env)
	}
	if env := workerEnv(&config.Config{}); len(env) != 1 {
		t.Fatalf("workerEnv without path: got=%v", env)
	}
}

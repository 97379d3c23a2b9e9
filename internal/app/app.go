package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yungbote/modelforge-backend/internal/config"
	"github.com/yungbote/modelforge-backend/internal/data/artifacts"
	"github.com/yungbote/modelforge-backend/internal/data/datastore"
	"github.com/yungbote/modelforge-backend/internal/data/db"
	"github.com/yungbote/modelforge-backend/internal/data/repos"
	httpserver "github.com/yungbote/modelforge-backend/internal/http"
	httpH "github.com/yungbote/modelforge-backend/internal/http/handlers"
	"github.com/yungbote/modelforge-backend/internal/jobs/markers"
	"github.com/yungbote/modelforge-backend/internal/jobs/pipeline/training"
	jobrt "github.com/yungbote/modelforge-backend/internal/jobs/runtime"
	"github.com/yungbote/modelforge-backend/internal/jobs/supervisor"
	"github.com/yungbote/modelforge-backend/internal/jobs/worker"
	"github.com/yungbote/modelforge-backend/internal/modules/training/registry"
	"github.com/yungbote/modelforge-backend/internal/modules/training/stages"
	"github.com/yungbote/modelforge-backend/internal/modules/training/synth"
	"github.com/yungbote/modelforge-backend/internal/modules/training/synth/baseline"
	"github.com/yungbote/modelforge-backend/internal/observability"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
	"github.com/yungbote/modelforge-backend/internal/pkg/version"
	"github.com/yungbote/modelforge-backend/internal/platform/gcp"
	"github.com/yungbote/modelforge-backend/internal/services"
)

type App struct {
	Log *logger.Logger
	Cfg *config.Config

	DB         *db.Service
	Repos      repos.Repos
	Buckets    gcp.BucketService
	Artifacts  artifacts.Store
	Registrar  registry.Registrar
	Engine     synth.Engine
	Stages     stages.Deps
	Jobs       *jobrt.Registry
	Markers    *markers.Dir
	Supervisor *supervisor.Supervisor
	Services   Services

	health       map[string]httpH.HealthCheck
	closers      []func() error
	shutdownOtel func(context.Context) error
}

// New wires the full object graph. Nothing is started: the server is only
// built by Server, and no worker is launched until a service asks for one.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a := &App{Log: log, Cfg: cfg, health: map[string]httpH.HealthCheck{}}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Cfg
	log := a.Log

	a.shutdownOtel = observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.Otel.Enabled,
		ServiceName: cfg.Otel.ServiceName,
		Environment: cfg.Otel.Environment,
		Version:     version.Version,
		Endpoint:    cfg.Otel.Endpoint,
		Headers:     observability.ParseHeaders(cfg.Otel.Headers),
		Insecure:    cfg.Otel.Insecure,
		SampleRatio: cfg.Otel.SampleRatio,
	})

	if cfg.Database.Driver == db.DriverSQLite && strings.TrimSpace(cfg.Database.DSN) == "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("sqlite dir: %w", err)
		}
	}
	dbs, err := db.Open(cfg.Database.Driver, cfg.DatabaseDSN(), log)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	a.DB = dbs
	a.health["database"] = dbs.Ping
	a.closers = append(a.closers, dbs.Close)
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		return fmt.Errorf("database automigrate: %w", err)
	}
	a.Repos = repos.New(dbs.DB(), log)

	store, buckets, err := resolveStorage(ctx, log, cfg.Storage)
	if err != nil {
		return err
	}
	a.Artifacts = store
	if buckets != nil {
		a.Buckets = buckets
		a.closers = append(a.closers, buckets.Close)
	}

	a.Registrar, err = a.resolveRegistrar(ctx)
	if err != nil {
		return err
	}

	a.Engine, err = resolveEngine(cfg.Engine)
	if err != nil {
		return err
	}

	var objects datastore.ObjectOpener
	if a.Buckets != nil {
		objects = a.Buckets
	}
	a.Stages = stages.Deps{
		Log:            log,
		Predictors:     a.Repos.Predictors,
		Datasources:    a.Repos.Datasources,
		Loader:         datastore.NewRecordLoader(a.Repos.Datasources, objects, log),
		Engine:         a.Engine,
		Artifacts:      a.Artifacts,
		Registry:       a.Registrar,
		PredictorsPath: cfg.Paths.Predictors,
		Version:        version.Version,
	}
	a.Jobs = jobrt.NewRegistry()
	if err := training.Register(a.Jobs, a.Stages); err != nil {
		return fmt.Errorf("register stages: %w", err)
	}

	a.Markers = markers.New(cfg.Paths.Markers, log)

	a.Supervisor, err = supervisor.New(supervisor.Config{
		Command: cfg.Worker.Command,
		Env:     workerEnv(cfg),
	}, log)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		a.Supervisor.Close()
		return nil
	})

	a.Services = wireServices(log, a)
	return nil
}

// resolveRegistrar connects to redis when an address is configured. A
// registrar that cannot connect is a startup error; no address means
// registration is off.
func (a *App) resolveRegistrar(ctx context.Context) (registry.Registrar, error) {
	addr := strings.TrimSpace(a.Cfg.Redis.Addr)
	if addr == "" {
		a.Log.Info("Model registration disabled (no redis addr)")
		return registry.NopRegistrar{}, nil
	}
	r, err := registry.NewRedisRegistrar(ctx, a.Log, addr, a.Cfg.Redis.Channel)
	if err != nil {
		return nil, fmt.Errorf("init model registrar: %w", err)
	}
	a.closers = append(a.closers, r.Close)
	a.health["redis"] = r.Ping
	return r, nil
}

func resolveEngine(name string) (synth.Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "baseline":
		return baseline.New(), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
}

// workerEnv passes the settings a re-executed worker needs to rebuild the
// same object graph.
func workerEnv(cfg *config.Config) []string {
	env := []string{"LOG_MODE=" + cfg.LogMode}
	if cfg.Path != "" {
		env = append(env, config.EnvConfigPath+"="+cfg.Path)
	}
	return env
}

// WorkerDeps is what the worker subcommand runs a JobSpec with.
func (a *App) WorkerDeps() worker.Deps {
	return worker.Deps{Log: a.Log, Registry: a.Jobs, Markers: a.Markers}
}

// Server builds the admin HTTP server.
func (a *App) Server() *httpserver.Server {
	srv := httpserver.NewServer(wireRouter(a.Log, wireHandlers(a.Services, a.health)))
	srv.ShutdownTimeout = a.Cfg.HTTP.ShutdownTimeout.Duration
	return srv
}

// Close releases resources in reverse order of acquisition. Workers still
// running are killed.
func (a *App) Close() {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.Log != nil {
			a.Log.Warn("Close failed", "error", err)
		}
	}
	a.closers = nil
	if a.shutdownOtel != nil {
		_ = a.shutdownOtel(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

var _ services.Launcher = (*supervisor.Supervisor)(nil)

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/modelforge-backend/internal/data/db"
	"github.com/yungbote/modelforge-backend/internal/jobs/markers"
	"github.com/yungbote/modelforge-backend/internal/platform/envutil"
)

// EnvConfigPath names the config file when --config is not given.
const EnvConfigPath = "MODELFORGE_CONFIG"

func defaultConfig() *Config {
	return &Config{
		LogMode: "development",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: Duration{Duration: 15 * time.Second},
		},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			Host:       "localhost",
			Port:       "5432",
			User:       "modelforge",
			Name:       "modelforge",
			SQLitePath: filepath.Join(os.TempDir(), "modelforge", "modelforge.db"),
		},
		Paths: PathsConfig{
			Predictors: filepath.Join(os.TempDir(), "modelforge", "predictors"),
			Markers:    markers.DefaultPath(),
		},
		Storage: StorageConfig{
			Mode:      StorageModeLocal,
			LocalRoot: filepath.Join(os.TempDir(), "modelforge", "artifacts"),
		},
		Redis: RedisConfig{
			Channel: "modelforge:models",
		},
		Engine: "baseline",
		Otel: OtelConfig{
			ServiceName: "modelforge",
			SampleRatio: 1,
		},
	}
}

// Load reads path (or $MODELFORGE_CONFIG when path is empty), applies the
// environment and validates the result. A missing file is an error only
// when it was named explicitly.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if strings.TrimSpace(path) == "" {
		path = envutil.String(EnvConfigPath, "")
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decode(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		cfg.Path = path
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode merges YAML over cfg; keys absent from the file keep their value.
func decode(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.HTTP.Addr = envutil.String("MODELFORGE_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.ShutdownTimeout.Duration = envutil.Duration("MODELFORGE_HTTP_SHUTDOWN_TIMEOUT", cfg.HTTP.ShutdownTimeout.Duration)

	cfg.Database.Driver = envutil.String("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = envutil.String("DATABASE_URL", cfg.Database.DSN)
	cfg.Database.Host = envutil.String("POSTGRES_HOST", cfg.Database.Host)
	cfg.Database.Port = envutil.String("POSTGRES_PORT", cfg.Database.Port)
	cfg.Database.User = envutil.String("POSTGRES_USER", cfg.Database.User)
	cfg.Database.Password = envutil.String("POSTGRES_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = envutil.String("POSTGRES_NAME", cfg.Database.Name)
	cfg.Database.SQLitePath = envutil.String("SQLITE_PATH", cfg.Database.SQLitePath)

	cfg.Paths.Predictors = envutil.String("MODELFORGE_PREDICTORS_PATH", cfg.Paths.Predictors)
	cfg.Paths.Markers = envutil.String("MODELFORGE_MARKERS_PATH", cfg.Paths.Markers)

	cfg.Storage.Mode = envutil.String("OBJECT_STORAGE_MODE", cfg.Storage.Mode)
	cfg.Storage.LocalRoot = envutil.String("MODELFORGE_ARTIFACT_ROOT", cfg.Storage.LocalRoot)
	cfg.Storage.Bucket = envutil.String("GCS_PREDICTOR_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.DatasetBucket = envutil.String("GCS_DATASET_BUCKET", cfg.Storage.DatasetBucket)
	cfg.Storage.EmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", cfg.Storage.EmulatorHost)
	cfg.Storage.Credentials = envutil.String("GOOGLE_APPLICATION_CREDENTIALS", cfg.Storage.Credentials)

	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Channel = envutil.String("REDIS_CHANNEL", cfg.Redis.Channel)

	cfg.Engine = envutil.String("MODELFORGE_ENGINE", cfg.Engine)
	cfg.Worker.Command = envutil.Fields("MODELFORGE_WORKER_COMMAND", cfg.Worker.Command)
	cfg.Worker.JoinTimeout.Duration = envutil.Duration("MODELFORGE_JOIN_TIMEOUT", cfg.Worker.JoinTimeout.Duration)

	cfg.Otel.Enabled = envutil.Bool("OTEL_ENABLED", cfg.Otel.Enabled)
	cfg.Otel.ServiceName = envutil.String("OTEL_SERVICE_NAME", cfg.Otel.ServiceName)
	cfg.Otel.Environment = envutil.String("OTEL_ENVIRONMENT", cfg.Otel.Environment)
	cfg.Otel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Otel.Endpoint)
	cfg.Otel.Headers = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", cfg.Otel.Headers)
	cfg.Otel.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Otel.Insecure)
	cfg.Otel.SampleRatio = envutil.Float("OTEL_SAMPLE_RATIO", cfg.Otel.SampleRatio)
}

func (c *Config) Validate() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}

	c.Storage.Mode = strings.ToLower(strings.TrimSpace(c.Storage.Mode))
	switch c.Storage.Mode {
	case StorageModeLocal:
		if strings.TrimSpace(c.Storage.LocalRoot) == "" {
			return errors.New("storage.local_root is required for local storage")
		}
	case StorageModeGCS, StorageModeGCSEmulator:
		if strings.TrimSpace(c.Storage.Bucket) == "" {
			return fmt.Errorf("storage.bucket is required for %s storage", c.Storage.Mode)
		}
	default:
		return fmt.Errorf("storage.mode must be local, gcs or gcs_emulator, got %q", c.Storage.Mode)
	}

	if strings.TrimSpace(c.Paths.Predictors) == "" {
		return errors.New("paths.predictors is required")
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = ":8080"
	}
	if strings.TrimSpace(c.Engine) == "" {
		c.Engine = "baseline"
	}
	if c.Otel.SampleRatio < 0 || c.Otel.SampleRatio > 1 {
		return fmt.Errorf("otel.sample_ratio must be within [0,1], got %v", c.Otel.SampleRatio)
	}
	return nil
}

// DatabaseDSN is the DSN to open for the configured driver.
func (c *Config) DatabaseDSN() string {
	if dsn := strings.TrimSpace(c.Database.DSN); dsn != "" {
		return dsn
	}
	if c.Database.Driver == "sqlite" {
		return db.SQLiteDSN(c.Database.SQLitePath)
	}
	d := c.Database
	return db.PostgresDSN(d.Host, d.Port, d.User, d.Password, d.Name)
}

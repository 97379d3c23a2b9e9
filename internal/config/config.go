// Package config loads orchestrator settings: built-in defaults, then an
// optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "5s"-style strings or integer nanoseconds.
type Duration struct {
	Duration time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	s := strings.TrimSpace(node.Value)
	if s == "" || s == "null" || s == "~" {
		d.Duration = 0
		return nil
	}
	if dd, err := time.ParseDuration(s); err == nil {
		d.Duration = dd
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\" or integer nanoseconds, got %q", s)
	}
	d.Duration = time.Duration(n)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return d.Duration.String(), nil }

type HTTPConfig struct {
	Addr            string   `yaml:"addr"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `yaml:"driver"`
	// DSN wins over the individual connection fields.
	DSN        string `yaml:"dsn"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	SQLitePath string `yaml:"sqlite_path"`
}

type PathsConfig struct {
	Predictors string `yaml:"predictors"`
	Markers    string `yaml:"markers"`
}

const (
	StorageModeLocal       = "local"
	StorageModeGCS         = "gcs"
	StorageModeGCSEmulator = "gcs_emulator"
)

type StorageConfig struct {
	Mode          string `yaml:"mode"`
	LocalRoot     string `yaml:"local_root"`
	Bucket        string `yaml:"bucket"`
	DatasetBucket string `yaml:"dataset_bucket"`
	EmulatorHost  string `yaml:"emulator_host"`
	Credentials   string `yaml:"credentials"`
}

type RedisConfig struct {
	// Addr empty disables model registration.
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

type WorkerConfig struct {
	// Command overrides the worker command line; empty re-executes this
	// binary with the worker subcommand.
	Command     []string `yaml:"command"`
	JoinTimeout Duration `yaml:"join_timeout"`
}

type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Environment string  `yaml:"environment"`
	Endpoint    string  `yaml:"endpoint"`
	Headers     string  `yaml:"headers"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type Config struct {
	// Path is the file the config was read from, empty for defaults only.
	Path string `yaml:"-"`

	LogMode  string         `yaml:"log_mode"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Paths    PathsConfig    `yaml:"paths"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Engine   string         `yaml:"engine"`
	Worker   WorkerConfig   `yaml:"worker"`
	Otel     OtelConfig     `yaml:"otel"`
}

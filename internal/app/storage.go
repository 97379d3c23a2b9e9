package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/modelforge-backend/internal/config"
	"github.com/yungbote/modelforge-backend/internal/data/artifacts"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
	"github.com/yungbote/modelforge-backend/internal/platform/gcp"
)

var newBucketService = gcp.NewBucketService

type StorageBootstrapErrorCode string

const (
	StorageBootstrapErrorInvalidMode         StorageBootstrapErrorCode = "invalid_mode"
	StorageBootstrapErrorMissingBucket       StorageBootstrapErrorCode = "missing_bucket"
	StorageBootstrapErrorMissingEmulatorHost StorageBootstrapErrorCode = "missing_emulator_host"
	StorageBootstrapErrorInvalidEmulatorHost StorageBootstrapErrorCode = "invalid_emulator_host"
	StorageBootstrapErrorConnectFailed       StorageBootstrapErrorCode = "connect_failed"
)

type StorageBootstrapError struct {
	Code         StorageBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func classifyStorageBootstrapError(cfg gcp.StorageConfig, err error) error {
	out := &StorageBootstrapError{
		Code:         StorageBootstrapErrorConnectFailed,
		Mode:         string(cfg.Mode),
		EmulatorHost: cfg.EmulatorHost,
		Cause:        err,
	}
	var cfgErr *gcp.StorageConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case gcp.StorageConfigErrorInvalidMode:
			out.Code = StorageBootstrapErrorInvalidMode
		case gcp.StorageConfigErrorMissingBucket:
			out.Code = StorageBootstrapErrorMissingBucket
		case gcp.StorageConfigErrorMissingEmulatorHost:
			out.Code = StorageBootstrapErrorMissingEmulatorHost
		case gcp.StorageConfigErrorInvalidEmulatorHost:
			out.Code = StorageBootstrapErrorInvalidEmulatorHost
		}
	}
	return out
}

// resolveStorage picks the artifact store for the configured mode. The
// bucket service is nil in local mode; datasets at gs:// locations then
// fail to load.
func resolveStorage(ctx context.Context, log *logger.Logger, cfg config.StorageConfig) (artifacts.Store, gcp.BucketService, error) {
	if cfg.Mode == config.StorageModeLocal {
		log.Info("Using local artifact store", "root", cfg.LocalRoot)
		return artifacts.NewLocalStore(cfg.LocalRoot, log), nil, nil
	}

	storageCfg := gcp.StorageConfig{
		EmulatorHost:    cfg.EmulatorHost,
		PredictorBucket: cfg.Bucket,
		DatasetBucket:   cfg.DatasetBucket,
		Credentials:     cfg.Credentials,
	}
	mode, err := gcp.ParseObjectStorageMode(cfg.Mode, cfg.EmulatorHost)
	if err != nil {
		return nil, nil, classifyStorageBootstrapError(storageCfg, err)
	}
	storageCfg.Mode = mode

	buckets, err := newBucketService(ctx, log, storageCfg)
	if err != nil {
		err = classifyStorageBootstrapError(storageCfg, err)
		log.Error("Object storage bootstrap failed", "mode", storageCfg.Mode, "error", err)
		return nil, nil, err
	}
	return artifacts.NewGCSStore(buckets, log), buckets, nil
}

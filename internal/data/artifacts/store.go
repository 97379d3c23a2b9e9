// Package artifacts persists trained model blobs.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
	"github.com/yungbote/modelforge-backend/internal/platform/gcp"
)

type Store interface {
	// Put persists basePath/localKey under remoteKey.
	Put(ctx context.Context, localKey, remoteKey, basePath string) error
}

// Key is the artifact name of a predictor's trained blob.
func Key(companyID, predictorID int64) string {
	return fmt.Sprintf("predictor_%d_%d", companyID, predictorID)
}

type LocalStore struct {
	Root string
	log  *logger.Logger
}

func NewLocalStore(root string, baseLog *logger.Logger) *LocalStore {
	return &LocalStore{Root: root, log: baseLog.With("service", "LocalArtifactStore")}
}

func (s *LocalStore) Put(ctx context.Context, localKey, remoteKey, basePath string) error {
	if err := validKey(remoteKey); err != nil {
		return err
	}
	src := filepath.Join(basePath, localKey)
	dst := filepath.Join(s.Root, remoteKey)
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("artifact put %s: %w", remoteKey, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("artifact put %s: %w", remoteKey, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".artifact-*")
	if err != nil {
		return fmt.Errorf("artifact put %s: %w", remoteKey, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("artifact put %s: %w", remoteKey, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("artifact put %s: %w", remoteKey, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("artifact put %s: %w", remoteKey, err)
	}
	s.log.Debug("Stored artifact", "key", remoteKey, "path", dst)
	return nil
}

type GCSStore struct {
	Buckets gcp.BucketService
	log     *logger.Logger
}

func NewGCSStore(buckets gcp.BucketService, baseLog *logger.Logger) *GCSStore {
	return &GCSStore{Buckets: buckets, log: baseLog.With("service", "GCSArtifactStore")}
}

func (s *GCSStore) Put(ctx context.Context, localKey, remoteKey, basePath string) error {
	if err := validKey(remoteKey); err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(basePath, localKey))
	if err != nil {
		return fmt.Errorf("artifact put %s: %w", remoteKey, err)
	}
	defer f.Close()
	if err := s.Buckets.UploadFile(ctx, gcp.BucketCategoryPredictor, remoteKey, f); err != nil {
		return fmt.Errorf("artifact put %s: %w", remoteKey, err)
	}
	s.log.Debug("Uploaded artifact", "key", remoteKey)
	return nil
}

func validKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.Contains(key, "..") || filepath.IsAbs(key) {
		return fmt.Errorf("invalid artifact key %q", key)
	}
	return nil
}

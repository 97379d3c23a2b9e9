// Package registry announces trained models to the downstream router.
package registry

import (
	"context"
	"time"
)

type ModelMetadata struct {
	CompanyID     int64          `json:"company_id"`
	PredictorID   int64          `json:"predictor_id"`
	Name          string         `json:"name"`
	Status        string         `json:"status"`
	ArtifactKey   string         `json:"artifact_key"`
	EngineVersion string         `json:"engine_version"`
	Target        string         `json:"target"`
	Accuracies    map[string]any `json:"accuracies,omitempty"`
	RegisteredAt  time.Time      `json:"registered_at"`
}

// Registrar failures are the caller's to log; training outcomes never depend
// on registration.
type Registrar interface {
	Register(ctx context.Context, m ModelMetadata) error
}

type NopRegistrar struct{}

func (NopRegistrar) Register(ctx context.Context, m ModelMetadata) error { return nil }

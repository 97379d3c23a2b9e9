// Package synth is the boundary to the model-synthesis engine: it infers a
// model description from data, compiles descriptions to code, and loads
// code into trainable models.
package synth

import (
	"context"

	"github.com/yungbote/modelforge-backend/internal/data/datastore"
	"github.com/yungbote/modelforge-backend/internal/pkg/jsontree"
)

type Engine interface {
	Version() string
	InferDescription(ctx context.Context, df *datastore.Frame, pd ProblemDefinition) (jsontree.Value, error)
	Compile(ctx context.Context, desc jsontree.Value) (string, error)
	Load(ctx context.Context, code string) (Model, error)
}

type Model interface {
	// Learn trains on df. It has no internal time limit.
	Learn(ctx context.Context, df *datastore.Frame) error
	Save(path string) error
	Analysis() map[string]any
	DtypeDict() map[string]string
}

package stages

import "context"

type AdjustInput struct {
	PredictorID int64
	RunID       string
}

// Adjust is reserved for incremental adjustment of a trained model. It
// currently does nothing.
func Adjust(ctx context.Context, deps Deps, in AdjustInput) error {
	return nil
}

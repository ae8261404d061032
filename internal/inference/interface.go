// internal/inference/interface.go
package inference

import (
	"context"
	"errors"

	"github.com/SyedDaiam9101/headpose-service/internal/model"
)

var (
	ErrNotReady       = errors.New("inference request not complete")
	ErrModelNotLoaded = errors.New("model not loaded")
	ErrEmptyBatch     = errors.New("empty input batch")
	ErrBatchTooLarge  = errors.New("batch exceeds model max batch")
	ErrInputSize      = errors.New("input has wrong size")
)

// Engine runs batches of preprocessed inputs against a loaded model.
// Implementations must be safe for concurrent Submit calls against the
// same model; the model itself is never mutated.
type Engine interface {
	// Submit validates and dispatches one batch. Each element of batch is
	// a flattened input of m.InputSize() values. A returned error means
	// the batch was rejected and nothing was dispatched. On success the
	// returned Request resolves to one Output per slot in batch order.
	Submit(ctx context.Context, m *model.Model, batch [][]float32) (*Request, error)

	// Close releases any resources held by the engine.
	Close() error
}

// Output is the raw result of one batch slot: the concatenation of every
// declared model output's slice for that slot, in declared order.
type Output struct {
	Data []float32
	Err  error
}

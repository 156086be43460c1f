package emission

import (
	"context"
	"fmt"

	"github.com/mjsandells/snowschool2024/internal/snowpack"
)

// Simulator is the forward-model capability: given a sensor configuration
// and a snowpack description, produce per-channel brightness temperatures.
// Implementations must be safe for concurrent use; the Runner calls
// Simulate from multiple workers.
type Simulator interface {
	// Name identifies the model in logs and artifacts.
	Name() string

	// Simulate computes brightness temperatures for one snowpack. It
	// should honor ctx cancellation for long computations and return an
	// error on non-convergence.
	Simulate(ctx context.Context, sensor Sensor, sp snowpack.Description) (Result, error)
}

// ModelError reports simulator failure for one input of a batch. Batch runs
// collect these into the result sequence instead of aborting, so a caller
// can inspect which indices succeeded.
type ModelError struct {
	Index int
	Model string
	Err   error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("forward model %s failed on input %d: %v", e.Model, e.Index, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

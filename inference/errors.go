package inference

import "fmt"

// ModelLoadError reports a fatal failure while resolving model bytes or
// building the executable graph. It is never retried internally; the
// session transitions to Failed and every caller sees the same error.
type ModelLoadError struct {
	// Model is the registry name of the model that failed to load.
	Model string
	// Err is the underlying fetch or backend failure.
	Err error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("loading model %q: %v", e.Model, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// EmptyBatchError reports that zero images were submitted for batch
// prediction. An empty batch is rejected explicitly rather than returning
// an empty result, so arity bugs upstream surface immediately.
type EmptyBatchError struct{}

func (e *EmptyBatchError) Error() string {
	return "empty batch: no images submitted for prediction"
}

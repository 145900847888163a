package scheduler

import (
	"context"
	"errors"
)

// tooBusyError signals queue overflow for 429 mapping.
type tooBusyError struct{ modelID string }

func (e tooBusyError) Error() string { return "too busy: " + e.modelID }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var t tooBusyError
	return errors.As(err, &t)
}

// modelNotFoundError indicates a requested model id is not in the registry.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound returns an error for a model id missing from the registry.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	var t modelNotFoundError
	return errors.As(err, &t)
}

// admissionError rejects a malformed payload before it is queued.
type admissionError struct{ msg string }

func (e admissionError) Error() string { return "admission: " + e.msg }

// ErrAdmission constructs an admissionError.
func ErrAdmission(msg string) error { return admissionError{msg: msg} }

// IsAdmission reports whether err was an enqueue-time rejection (return 400).
func IsAdmission(err error) bool {
	var t admissionError
	return errors.As(err, &t)
}

// loadError wraps a failure of the external engine to produce a handle.
// The cache is guaranteed to be empty after one.
type loadError struct {
	modelID string
	err     error
}

func (e loadError) Error() string { return "load " + e.modelID + ": " + e.err.Error() }
func (e loadError) Unwrap() error { return e.err }

// IsLoadFailed reports whether err came from a failed model load.
func IsLoadFailed(err error) bool {
	var t loadError
	return errors.As(err, &t)
}

// generationError wraps an engine failure during batch or stream generation.
type generationError struct {
	modelID string
	err     error
}

func (e generationError) Error() string { return "generate " + e.modelID + ": " + e.err.Error() }
func (e generationError) Unwrap() error { return e.err }

// IsGenerationFailed reports whether err came from a failed generation.
func IsGenerationFailed(err error) bool {
	var t generationError
	return errors.As(err, &t)
}

// dependencyUnavailableError signals a missing external dependency (e.g., the
// llama-server binary) so the HTTP layer can return 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var t dependencyUnavailableError
	return errors.As(err, &t)
}

// closedError is returned by Enqueue after Close.
type closedError struct{}

func (closedError) Error() string { return "scheduler closed" }

// IsClosed reports whether err indicates the scheduler has shut down.
func IsClosed(err error) bool {
	var t closedError
	return errors.As(err, &t)
}

// IsCanceled reports whether err stems from a canceled or expired context,
// i.e. the caller or shutdown aborted an in-flight generation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

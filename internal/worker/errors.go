package worker

import (
	"errors"
	"fmt"

	"llmserverd/internal/prompt"
)

// InitError is fatal at startup for the worker it names: the engine handle
// or the tokenizer could not be constructed. VersionMismatch distinguishes
// model-metadata incompatibility from plain I/O failures so callers can
// suggest remediation.
type InitError struct {
	Model           string
	VersionMismatch bool
	Err             error
}

func (e *InitError) Error() string {
	if e.VersionMismatch {
		return fmt.Sprintf("init %s: %v (model metadata is incompatible with this server: try a different model or update the server)", e.Model, e.Err)
	}
	return fmt.Sprintf("init %s: %v", e.Model, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

func newInitError(model string, err error) *InitError {
	return &InitError{
		Model:           model,
		VersionMismatch: errors.Is(err, prompt.ErrIncompatible),
		Err:             err,
	}
}

// unknownModelError signals routing to a model name nobody serves (404).
type unknownModelError struct{ model string }

func (e unknownModelError) Error() string { return "unknown model: " + e.model }

// ErrUnknownModel constructs an unknownModelError.
func ErrUnknownModel(model string) error { return unknownModelError{model: model} }

// IsUnknownModel reports whether err indicates an unrouted model name.
func IsUnknownModel(err error) bool {
	var e unknownModelError
	return errors.As(err, &e)
}

// busyError signals mailbox saturation/timeout for 429 mapping.
type busyError struct{ model string }

func (e busyError) Error() string { return "too busy: " + e.model }

// ErrBusy constructs a busyError.
func ErrBusy(model string) error { return busyError{model: model} }

// IsBusy reports whether err indicates backpressure (return 429).
func IsBusy(err error) bool {
	var e busyError
	return errors.As(err, &e)
}

// closedError signals a submission to a worker that has already shut down.
type closedError struct{ model string }

func (e closedError) Error() string { return "worker shut down: " + e.model }

// ErrWorkerClosed constructs a closedError.
func ErrWorkerClosed(model string) error { return closedError{model: model} }

// IsWorkerClosed reports whether err indicates a shut-down worker.
func IsWorkerClosed(err error) bool {
	var e closedError
	return errors.As(err, &e)
}

// ErrStreamAborted terminates a stream whose engine call ended in an error
// state. Readable from Stream.Err after the stream closes.
var ErrStreamAborted = errors.New("engine reported an error mid-stream")

// Package engine wraps the native inference backend behind a small opaque
// surface. The backend performs the actual model computation; everything in
// here is plumbing between a loaded handle and its caller.
package engine

import "errors"

// CallState tags one callback invocation from the native runtime.
type CallState int

const (
	// StateWaiting means the runtime is still working and has nothing to emit.
	StateWaiting CallState = iota
	// StateNormal carries one generated text fragment.
	StateNormal
	// StateFinish is the terminal success state; no fragments follow it.
	StateFinish
	// StateError is the terminal failure state.
	StateError
	// StateHiddenLayer is an out-of-band diagnostic state some runtimes emit.
	StateHiddenLayer
)

// Result is the payload of a single callback invocation.
type Result struct {
	Text string
}

// Callback receives one invocation per emitted unit. It runs on a goroutine
// owned by the engine; the runtime blocks until the callback returns, so
// implementations must never lose a fragment to keep the runtime moving.
type Callback func(res Result, state CallState)

// Params carries per-handle generation configuration.
type Params struct {
	ContextSize int
	Threads     int
	MaxTokens   int
	// Prompt cache persistence, enabled when PromptCachePath is non-empty.
	SavePromptCache bool
	PromptCachePath string
}

// Input is one inference submission. Exactly one field is set: Prompt for
// text generation, Audio for transcription-capable models.
type Input struct {
	Prompt string
	Audio  []byte
}

// Handle is one loaded model instance. A Handle is exclusive: concurrent Run
// calls corrupt native state, so callers must serialize access. Destroy
// releases the native resources and invalidates the handle.
type Handle interface {
	Run(input Input, params Params, cb Callback) error
	Destroy() error
}

// Loader opens a Handle from a local weights file. It is a seam so tests can
// substitute a fake runtime for the native one.
type Loader func(weightsPath string, params Params) (Handle, error)

// ErrNotBuilt is returned by Open when the binary was compiled without
// native engine support.
var ErrNotBuilt = errors.New("engine support not built (missing 'llama' build tag)")

// ErrAudioUnsupported is returned by Run when the loaded backend cannot
// process audio input.
var ErrAudioUnsupported = errors.New("loaded engine backend does not support audio input")

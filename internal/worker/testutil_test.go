package worker

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"llmserverd/internal/config"
	"llmserverd/internal/engine"
)

// fakeHandle scripts engine behavior for tests: it emits the configured
// fragments, optionally blocks before finishing, and counts lifecycle calls.
type fakeHandle struct {
	mu         sync.Mutex
	emit       []string
	endState   engine.CallState // StateFinish unless overridden
	runErr     error            // returned by Run before any emission
	destroyErr error
	block      chan struct{} // if non-nil, Run waits on it before ending
	runs       int
	destroys   int
	lastInput  engine.Input
}

func (f *fakeHandle) Run(input engine.Input, params engine.Params, cb engine.Callback) error {
	f.mu.Lock()
	f.runs++
	f.lastInput = input
	f.mu.Unlock()
	if f.runErr != nil {
		return f.runErr
	}
	for _, t := range f.emit {
		cb(engine.Result{Text: t}, engine.StateNormal)
	}
	if f.block != nil {
		<-f.block
	}
	end := f.endState
	if end == engine.StateWaiting {
		end = engine.StateFinish
	}
	cb(engine.Result{}, end)
	return nil
}

func (f *fakeHandle) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroys++
	return f.destroyErr
}

func (f *fakeHandle) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func (f *fakeHandle) destroyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroys
}

func (f *fakeHandle) input() engine.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastInput
}

func loaderFor(h engine.Handle, err error) engine.Loader {
	return func(string, engine.Params) (engine.Handle, error) {
		return h, err
	}
}

// writeTemplateDir creates a model dir with a minimal ChatML tokenizer config.
func writeTemplateDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := `{"chat_template": "{% for m in messages %}<|im_start|>{{ m.role }}\n{{ m.content }}<|im_end|>\n{% endfor %}", "legacy": true}`
	if err := os.WriteFile(filepath.Join(dir, "tokenizer_config.json"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write tokenizer config: %v", err)
	}
	return dir
}

func testOptions(t *testing.T, name string, h engine.Handle) Options {
	t.Helper()
	return Options{
		Config:      config.Model{ModelPath: "owner/" + name, ModelName: name},
		Kind:        KindChat,
		WeightsPath: "model.gguf",
		TemplateDir: writeTemplateDir(t),
		Loader:      loaderFor(h, nil),
		Logger:      zerolog.Nop(),
	}
}

func newTestWorker(t *testing.T, name string, h engine.Handle) *Worker {
	t.Helper()
	w, err := New(testOptions(t, name, h))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

// collect drains a stream into one string.
func collect(t *testing.T, st *Stream) string {
	t.Helper()
	var out string
	for tok := range st.Tokens() {
		out += tok
	}
	return out
}

package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"llmserverd/internal/prompt"
)

func TestProcessStreamsInEmissionOrder(t *testing.T) {
	h := &fakeHandle{emit: []string{"Hel", "lo", ",", " world"}}
	w := newTestWorker(t, "demo", h)
	defer w.Shutdown(context.Background())

	st, err := w.Process(context.Background(), []prompt.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := collect(t, st); got != "Hello, world" {
		t.Fatalf("got %q, want %q", got, "Hello, world")
	}
	if err := st.Err(); err != nil {
		t.Fatalf("stream ended with error: %v", err)
	}
}

func TestWorkerSerializesRequests(t *testing.T) {
	block := make(chan struct{})
	h := &fakeHandle{emit: []string{"x"}, block: block}
	w := newTestWorker(t, "demo", h)
	defer func() {
		w.Shutdown(context.Background())
	}()

	first, err := w.Process(context.Background(), []prompt.Message{{Role: "user", Content: "1"}})
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	secondDone := make(chan *Stream, 1)
	go func() {
		st, err := w.Process(context.Background(), []prompt.Message{{Role: "user", Content: "2"}})
		if err != nil {
			t.Errorf("second Process: %v", err)
			close(secondDone)
			return
		}
		secondDone <- st
	}()

	// The second request must not reach the engine while the first is live.
	time.Sleep(50 * time.Millisecond)
	if got := h.runCount(); got != 1 {
		t.Fatalf("engine saw %d runs while first request in flight, want 1", got)
	}

	block <- struct{}{}
	if got := collect(t, first); got != "x" {
		t.Fatalf("first stream: got %q", got)
	}
	block <- struct{}{}
	st := <-secondDone
	if st == nil {
		t.Fatal("second stream missing")
	}
	if got := collect(t, st); got != "x" {
		t.Fatalf("second stream: got %q", got)
	}
	if got := h.runCount(); got != 2 {
		t.Fatalf("engine runs = %d, want 2", got)
	}
}

func TestProcessAfterShutdownFails(t *testing.T) {
	h := &fakeHandle{}
	w := newTestWorker(t, "demo", h)
	if err := w.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	_, err := w.Process(context.Background(), []prompt.Message{{Role: "user", Content: "hi"}})
	if !IsWorkerClosed(err) {
		t.Fatalf("expected worker-closed error, got %v", err)
	}
}

func TestShutdownReleasesHandleOnce(t *testing.T) {
	h := &fakeHandle{}
	w := newTestWorker(t, "demo", h)
	if err := w.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := w.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if got := h.destroyCount(); got != 1 {
		t.Fatalf("Destroy called %d times, want 1", got)
	}
	if w.State() != StateShutdown {
		t.Fatalf("state = %v, want shutdown", w.State())
	}
}

func TestShutdownWaitsForInFlightRequest(t *testing.T) {
	block := make(chan struct{})
	h := &fakeHandle{block: block}
	w := newTestWorker(t, "demo", h)

	st, err := w.Process(context.Background(), []prompt.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- w.Shutdown(context.Background()) }()

	select {
	case err := <-done:
		t.Fatalf("Shutdown returned %v while a request was in flight", err)
	case <-time.After(50 * time.Millisecond):
	}
	if got := h.destroyCount(); got != 0 {
		t.Fatalf("handle destroyed mid-request")
	}

	block <- struct{}{}
	collect(t, st)
	if err := <-done; err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := h.destroyCount(); got != 1 {
		t.Fatalf("Destroy called %d times, want 1", got)
	}
}

func TestInitFailureAllocatesNothing(t *testing.T) {
	wantErr := errors.New("no such model file")
	_, err := New(Options{
		Config: testOptions(t, "missing", nil).Config,
		Kind:   KindChat,
		Loader: loaderFor(nil, wantErr),
	})
	var ie *InitError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InitError, got %v", err)
	}
	if ie.VersionMismatch {
		t.Fatalf("plain load failure flagged as version mismatch")
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("cause not preserved: %v", err)
	}
}

func TestInitTokenizerIncompatibilityIsDistinguishable(t *testing.T) {
	dir := t.TempDir()
	// A config without chat_template is a schema this server cannot speak.
	if err := os.WriteFile(filepath.Join(dir, "tokenizer_config.json"), []byte(`{"tokenizer_class":"LlamaTokenizer"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	h := &fakeHandle{}
	opts := testOptions(t, "demo", h)
	opts.TemplateDir = dir
	_, err := New(opts)
	var ie *InitError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InitError, got %v", err)
	}
	if !ie.VersionMismatch {
		t.Fatalf("incompatibility not distinguishable: %v", err)
	}
	if !errors.Is(err, prompt.ErrIncompatible) {
		t.Fatalf("sentinel lost: %v", err)
	}
	// Init must not leave engine resources behind when the tokenizer fails.
	if got := h.destroyCount(); got != 1 {
		t.Fatalf("handle not released on failed init: destroys=%d", got)
	}
}

func TestThinkMarkerSuppressesReasoning(t *testing.T) {
	h := &fakeHandle{}
	w := newTestWorker(t, "demo", h)
	defer w.Shutdown(context.Background())

	st, err := w.Process(context.Background(), []prompt.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	collect(t, st)
	if got := h.input().Prompt; !strings.HasSuffix(got, stopThinkMarker) {
		t.Fatalf("prompt missing stop-thinking marker: %q", got)
	}

	h2 := &fakeHandle{}
	opts := testOptions(t, "demo", h2)
	opts.Config.Think = true
	w2, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w2.Shutdown(context.Background())
	st2, err := w2.Process(context.Background(), []prompt.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	collect(t, st2)
	if got := h2.input().Prompt; strings.HasSuffix(got, stopThinkMarker) {
		t.Fatalf("think mode still got the marker: %q", got)
	}
}

func TestTemplateFailureDispatchesEmptyPrompt(t *testing.T) {
	h := &fakeHandle{}
	w := newTestWorker(t, "demo", h)
	defer w.Shutdown(context.Background())

	st, err := w.Process(context.Background(), []prompt.Message{{Role: "narrator", Content: "hi"}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	collect(t, st)
	if got := h.input().Prompt; got != stopThinkMarker {
		t.Fatalf("degraded dispatch should carry only the marker, got %q", got)
	}
}

func TestEngineRunFailureClosesStream(t *testing.T) {
	h := &fakeHandle{runErr: errors.New("native fault")}
	w := newTestWorker(t, "demo", h)
	defer w.Shutdown(context.Background())

	st, err := w.Process(context.Background(), []prompt.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := collect(t, st); got != "" {
		t.Fatalf("unexpected fragments: %q", got)
	}
	if st.Err() == nil {
		t.Fatal("expected a terminal stream error")
	}
}

func TestCanceledContextRejectedBeforeDispatch(t *testing.T) {
	h := &fakeHandle{}
	w := newTestWorker(t, "demo", h)
	defer w.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.Process(ctx, []prompt.Message{{Role: "user", Content: "hi"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := h.runCount(); got != 0 {
		t.Fatalf("engine ran %d times for a dead request", got)
	}
}

func TestTranscribePassesAudioThrough(t *testing.T) {
	h := &fakeHandle{emit: []string{"hello ", "world"}}
	opts := Options{
		Config:      testOptions(t, "whisper-small", h).Config,
		Kind:        KindTranscribe,
		WeightsPath: "model.gguf",
		Loader:      loaderFor(h, nil),
	}
	w, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Shutdown(context.Background())

	audio := []byte{1, 2, 3, 4}
	st, err := w.Transcribe(context.Background(), audio)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got := collect(t, st); got != "hello world" {
		t.Fatalf("got %q", got)
	}
	if got := h.input(); len(got.Audio) != 4 || got.Prompt != "" {
		t.Fatalf("engine input = %+v, want audio only", got)
	}
}

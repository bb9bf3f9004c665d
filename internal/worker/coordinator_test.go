package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestCoordinatorShutsDownEveryWorker(t *testing.T) {
	reg := NewRegistry()
	handles := make([]*fakeHandle, 0, 4)
	for _, name := range []string{"a", "a", "b", "b"} {
		h := &fakeHandle{}
		w, err := New(testOptions(t, name, h))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		reg.Register(w)
		handles = append(handles, h)
	}

	c := NewCoordinator(reg, zerolog.Nop())
	if err := c.ShutdownAll(context.Background()); err != nil {
		t.Fatalf("ShutdownAll: %v", err)
	}
	for i, h := range handles {
		if got := h.destroyCount(); got != 1 {
			t.Fatalf("handle %d destroyed %d times, want 1", i, got)
		}
	}
	for _, w := range reg.Workers() {
		if w.State() != StateShutdown {
			t.Fatalf("worker %s not shut down", w.Name())
		}
	}
}

func TestCoordinatorOneFailureDoesNotBlockOthers(t *testing.T) {
	reg := NewRegistry()
	bad := &fakeHandle{destroyErr: errors.New("release failed")}
	good := &fakeHandle{}
	for _, h := range []*fakeHandle{bad, good} {
		w, err := New(testOptions(t, "demo", h))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		reg.Register(w)
	}

	c := NewCoordinator(reg, zerolog.Nop())
	err := c.ShutdownAll(context.Background())
	if err == nil {
		t.Fatal("expected the release failure to surface")
	}
	if got := good.destroyCount(); got != 1 {
		t.Fatalf("healthy worker not drained: destroys=%d", got)
	}
	if got := bad.destroyCount(); got != 1 {
		t.Fatalf("failing worker destroyed %d times, want 1", got)
	}
}

func TestWorkersRejectAfterCoordinatedShutdown(t *testing.T) {
	reg, workers := registryWith(t, KindChat, "demo", 2)
	c := NewCoordinator(reg, zerolog.Nop())
	if err := c.ShutdownAll(context.Background()); err != nil {
		t.Fatalf("ShutdownAll: %v", err)
	}
	for _, w := range workers {
		if _, err := w.Process(context.Background(), nil); !IsWorkerClosed(err) {
			t.Fatalf("expected worker-closed error, got %v", err)
		}
	}
}

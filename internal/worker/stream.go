package worker

import (
	"fmt"
	"sync"

	"llmserverd/internal/engine"
)

// streamBuffer is the fragment buffer between the engine callback goroutine
// and the HTTP consumer. Sized so a briefly stalled consumer does not stall
// the native runtime.
const streamBuffer = 64

// Stream adapts the engine's push-style callback protocol into a pull-style
// sequence of text fragments. Fragments arrive in exact emission order; the
// bridge never reorders, coalesces, or drops one while a consumer is
// attached. A Stream is consumed once and is not restartable.
type Stream struct {
	ch     chan string
	done   chan struct{}
	cancel chan struct{}

	closeOnce  sync.Once
	cancelOnce sync.Once

	mu  sync.Mutex
	err error
}

func newStream() *Stream {
	return &Stream{
		ch:     make(chan string, streamBuffer),
		done:   make(chan struct{}),
		cancel: make(chan struct{}),
	}
}

// Tokens is the consumer side. The channel closes on Finish or Error; after
// close, Err reports how the stream ended.
func (s *Stream) Tokens() <-chan string { return s.ch }

// Cancel detaches the consumer. Pending and future deliveries are discarded
// so the engine-side goroutine can run to completion without anyone reading.
func (s *Stream) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancel) })
}

// Err reports the terminal error after Tokens closes, nil on clean Finish.
// Before the stream ends it returns nil.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.err
	default:
		return nil
	}
}

// Done closes when the engine reached a terminal state (Finish or Error).
// This is independent of the consumer: cancellation does not close it.
func (s *Stream) Done() <-chan struct{} { return s.done }

// sink is the engine callback. It runs on the engine-owned goroutine, so a
// blocking send here holds back the native runtime instead of losing data;
// the cancel channel keeps it from blocking forever once the consumer is
// gone.
func (s *Stream) sink(res engine.Result, state engine.CallState) {
	switch state {
	case engine.StateNormal:
		select {
		case <-s.cancel:
			return
		default:
		}
		select {
		case s.ch <- res.Text:
		case <-s.cancel:
		}
	case engine.StateWaiting:
		// No payload; the runtime is just keeping the callback warm.
	case engine.StateFinish:
		s.close(nil)
	case engine.StateError:
		s.close(ErrStreamAborted)
	default:
		s.close(fmt.Errorf("%w: unexpected engine state %d", ErrStreamAborted, state))
	}
}

// fail terminates the stream when the engine call returns an error without
// ever reaching a terminal callback state. No-op if already closed.
func (s *Stream) fail(err error) { s.close(err) }

func (s *Stream) close(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.ch)
		close(s.done)
	})
}

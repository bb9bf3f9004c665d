// Package worker is the concurrency core of the server: one actor per loaded
// model instance, a streaming bridge from the engine callback protocol to
// HTTP consumers, a round-robin registry, and coordinated shutdown.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"llmserverd/internal/config"
	"llmserverd/internal/engine"
	"llmserverd/internal/prompt"
)

// Kind selects which pool a worker serves.
type Kind string

const (
	KindChat       Kind = "chat"
	KindTranscribe Kind = "transcribe"
)

// State is the lifecycle state of one worker.
type State int32

const (
	StateReady State = iota
	StateBusy
	StateShutdown
)

// stopThinkMarker tells reasoning-capable engines to skip the internal
// reasoning segment when think mode is off.
const stopThinkMarker = "\n\n</think>\n\n"

// Defaults applied when corresponding Options fields are unset.
const (
	defaultMailboxDepth = 8
	defaultMaxWait      = 30 * time.Second
)

// Options configures one worker instance.
type Options struct {
	Config config.Model
	Kind   Kind
	// WeightsPath is the local engine weights file.
	WeightsPath string
	// TemplateDir holds tokenizer_config.json; required for chat workers.
	TemplateDir string
	// Loader opens the engine handle; defaults to engine.Open.
	Loader engine.Loader
	// Engine carries server-wide generation parameters.
	Engine       engine.Params
	MailboxDepth int
	MaxWait      time.Duration
	Logger       zerolog.Logger
}

// Worker owns exactly one engine handle and processes one request at a time.
// The handle is never shared: all engine calls happen from the worker's own
// goroutine chain, serialized by the mailbox.
type Worker struct {
	name   string
	kind   Kind
	cfg    config.Model
	handle engine.Handle
	tmpl   *prompt.Template
	params engine.Params
	log    zerolog.Logger

	maxWait time.Duration
	mailbox chan request
	quit    chan chan error
	closing chan struct{}
	done    chan struct{}

	state        atomic.Int32
	shutdownOnce sync.Once
	shutdownErr  error
}

type request struct {
	ctx   context.Context
	input engine.Input
	reply chan reply
}

type reply struct {
	stream *Stream
	err    error
}

// New initializes a worker: loads the engine handle from the weights path
// and, for chat workers, the prompt template from the same model directory.
// On failure nothing is registered and no engine resources stay allocated.
func New(opts Options) (*Worker, error) {
	loader := opts.Loader
	if loader == nil {
		loader = engine.Open
	}
	params := opts.Engine
	if opts.Config.CachePath != "" {
		params.SavePromptCache = true
		params.PromptCachePath = opts.Config.CachePath
	}
	handle, err := loader(opts.WeightsPath, params)
	if err != nil {
		return nil, newInitError(opts.Config.ModelName, fmt.Errorf("load engine handle: %w", err))
	}
	var tmpl *prompt.Template
	if opts.Kind == KindChat {
		tmpl, err = prompt.Load(opts.TemplateDir)
		if err != nil {
			_ = handle.Destroy()
			return nil, newInitError(opts.Config.ModelName, err)
		}
	}
	depth := opts.MailboxDepth
	if depth <= 0 {
		depth = defaultMailboxDepth
	}
	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	w := &Worker{
		name:    opts.Config.ModelName,
		kind:    opts.Kind,
		cfg:     opts.Config,
		handle:  handle,
		tmpl:    tmpl,
		params:  params,
		log:     opts.Logger.With().Str("model", opts.Config.ModelName).Str("kind", string(opts.Kind)).Logger(),
		maxWait: maxWait,
		mailbox: make(chan request, depth),
		quit:    make(chan chan error, 1),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Name is the routing identifier.
func (w *Worker) Name() string { return w.name }

// Kind reports which pool the worker serves.
func (w *Worker) Kind() Kind { return w.kind }

// State reports the current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Process submits a conversation and returns a live token stream. The engine
// computation runs on its own goroutine; the stream is live immediately.
func (w *Worker) Process(ctx context.Context, msgs []prompt.Message) (*Stream, error) {
	return w.submit(ctx, engine.Input{Prompt: w.buildPrompt(msgs)})
}

// Transcribe submits raw audio and returns a live segment stream.
func (w *Worker) Transcribe(ctx context.Context, audio []byte) (*Stream, error) {
	return w.submit(ctx, engine.Input{Audio: audio})
}

// buildPrompt applies the chat template. A template failure dispatches an
// empty prompt rather than aborting the request; the log line is the only
// trace of this degraded path.
func (w *Worker) buildPrompt(msgs []prompt.Message) string {
	var text string
	if w.tmpl == nil {
		w.log.Warn().Msg("no chat template loaded, dispatching empty prompt")
	} else if rendered, err := w.tmpl.Render(msgs, true); err != nil {
		w.log.Warn().Err(err).Msg("chat template application failed, dispatching empty prompt")
	} else {
		text = rendered
	}
	if !w.cfg.Think {
		text += stopThinkMarker
	}
	return text
}

func (w *Worker) submit(ctx context.Context, input engine.Input) (*Stream, error) {
	select {
	case <-w.closing:
		return nil, ErrWorkerClosed(w.name)
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := request{ctx: ctx, input: input, reply: make(chan reply, 1)}
	timer := time.NewTimer(w.maxWait)
	defer timer.Stop()
	select {
	case w.mailbox <- req:
	case <-w.closing:
		return nil, ErrWorkerClosed(w.name)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrBusy(w.name)
	}
	select {
	case rep := <-req.reply:
		return rep.stream, rep.err
	case <-w.done:
		return nil, ErrWorkerClosed(w.name)
	}
}

// Shutdown releases the engine handle. It waits for an in-flight request to
// finish first; there is no mechanism to interrupt a running engine call.
// Safe to call more than once; later calls return the first result.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() {
		close(w.closing)
		ack := make(chan error, 1)
		select {
		case w.quit <- ack:
		case <-ctx.Done():
			w.shutdownErr = ctx.Err()
			return
		}
		select {
		case w.shutdownErr = <-ack:
		case <-ctx.Done():
			w.shutdownErr = ctx.Err()
		}
	})
	return w.shutdownErr
}

// run is the worker's mailbox loop: one request at a time, shutdown only
// between requests.
func (w *Worker) run() {
	defer close(w.done)
	for {
		select {
		case req := <-w.mailbox:
			w.serve(req)
		case ack := <-w.quit:
			w.drain()
			w.state.Store(int32(StateShutdown))
			err := w.handle.Destroy()
			if err != nil {
				w.log.Error().Err(err).Msg("engine handle release failed")
			}
			ack <- err
			return
		}
	}
}

// drain rejects requests that were queued behind the shutdown message.
func (w *Worker) drain() {
	for {
		select {
		case req := <-w.mailbox:
			req.reply <- reply{err: ErrWorkerClosed(w.name)}
		default:
			return
		}
	}
}

// serve runs one engine call. The caller gets its stream as soon as the call
// is dispatched; the loop does not pick up the next request until the engine
// returns, which is what serializes access to the handle.
func (w *Worker) serve(req request) {
	if err := req.ctx.Err(); err != nil {
		req.reply <- reply{err: err}
		return
	}
	requestsTotal.WithLabelValues(w.name, string(w.kind)).Inc()
	st := newStream()
	cb := func(res engine.Result, state engine.CallState) {
		if state == engine.StateNormal {
			tokensTotal.WithLabelValues(w.name).Inc()
		}
		st.sink(res, state)
	}
	w.state.Store(int32(StateBusy))
	busyWorkers.WithLabelValues(w.name).Inc()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := w.handle.Run(req.input, w.params, cb); err != nil {
			st.fail(err)
		}
	}()
	req.reply <- reply{stream: st}
	<-runDone
	// An engine that returns success without a Finish callback would
	// otherwise leave the consumer hanging.
	st.close(nil)
	busyWorkers.WithLabelValues(w.name).Dec()
	w.state.Store(int32(StateReady))
}

package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"llmserverd/internal/prompt"
	"llmserverd/pkg/types"
)

// Dispatcher routes incoming requests to a worker by model name. It is the
// only surface the HTTP layer talks to.
type Dispatcher struct {
	reg     *Registry
	log     zerolog.Logger
	started time.Time
}

// NewDispatcher builds a dispatcher over a fully populated registry.
func NewDispatcher(reg *Registry, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{reg: reg, log: log, started: time.Now()}
}

// Chat routes a chat completion to the named model's pool and returns the
// live token stream.
func (d *Dispatcher) Chat(ctx context.Context, req types.ChatCompletionRequest) (*Stream, error) {
	w, ok := d.reg.Route(KindChat, req.Model)
	if !ok {
		return nil, ErrUnknownModel(req.Model)
	}
	msgs := make([]prompt.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, prompt.Message{Role: m.Role, Content: m.Content.Text()})
	}
	return w.Process(ctx, msgs)
}

// Transcribe routes raw audio to the named model's transcription pool.
func (d *Dispatcher) Transcribe(ctx context.Context, model string, audio []byte) (*Stream, error) {
	w, ok := d.reg.Route(KindTranscribe, model)
	if !ok {
		return nil, ErrUnknownModel(model)
	}
	return w.Transcribe(ctx, audio)
}

// Models lists every routed model name once per capability.
func (d *Dispatcher) Models() types.ModelList {
	pools := d.reg.Pools()
	list := types.ModelList{Object: "list", Data: make([]types.ModelInfo, 0, len(pools))}
	for _, p := range pools {
		list.Data = append(list.Data, types.ModelInfo{
			ID:      p.Model(),
			Object:  "model",
			Created: d.started.Unix(),
			OwnedBy: "local",
		})
	}
	return list
}

// Status projects the registry into a read-only status view.
func (d *Dispatcher) Status() types.StatusResponse {
	resp := types.StatusResponse{State: "ready"}
	for _, p := range d.reg.Pools() {
		resp.Pools = append(resp.Pools, types.PoolStatus{
			Model:   p.Model(),
			Kind:    string(p.Kind()),
			Workers: p.Size(),
			Busy:    p.Busy(),
		})
	}
	return resp
}

// Ready reports whether at least one worker is registered.
func (d *Dispatcher) Ready() bool { return !d.reg.Empty() }

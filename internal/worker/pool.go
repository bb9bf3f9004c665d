package worker

import (
	"sort"
	"sync/atomic"
)

// Pool is the ordered worker list for one model name. Selection is strict
// round-robin so multiple instances of the same model actually share load.
type Pool struct {
	model   string
	kind    Kind
	workers []*Worker
	next    atomic.Uint64
}

// Pick returns the next worker in round-robin order.
func (p *Pool) Pick() *Worker {
	n := p.next.Add(1) - 1
	return p.workers[n%uint64(len(p.workers))]
}

// Size is the number of workers in the pool.
func (p *Pool) Size() int { return len(p.workers) }

// Model is the routed model name.
func (p *Pool) Model() string { return p.model }

// Kind reports the pool's capability.
func (p *Pool) Kind() Kind { return p.kind }

// Busy counts workers currently running an engine call.
func (p *Pool) Busy() int {
	n := 0
	for _, w := range p.workers {
		if w.State() == StateBusy {
			n++
		}
	}
	return n
}

// Registry maps model names to worker pools, one pool space per capability.
// It is built once during startup and read-only afterwards; the only mutable
// shared state on the routing path is each pool's round-robin cursor.
type Registry struct {
	pools map[Kind]map[string]*Pool
	all   []*Worker
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{pools: map[Kind]map[string]*Pool{
		KindChat:       {},
		KindTranscribe: {},
	}}
}

// Register appends a successfully initialized worker to its model's pool.
// Startup only; not safe to call once serving has begun.
func (r *Registry) Register(w *Worker) {
	byName := r.pools[w.Kind()]
	p := byName[w.Name()]
	if p == nil {
		p = &Pool{model: w.Name(), kind: w.Kind()}
		byName[w.Name()] = p
	}
	p.workers = append(p.workers, w)
	r.all = append(r.all, w)
}

// Route selects a worker for the model name, or reports that nobody serves it.
func (r *Registry) Route(kind Kind, model string) (*Worker, bool) {
	p, ok := r.pools[kind][model]
	if !ok || len(p.workers) == 0 {
		return nil, false
	}
	return p.Pick(), true
}

// Empty reports whether no worker at all was registered. An empty registry
// must never reach serve time.
func (r *Registry) Empty() bool { return len(r.all) == 0 }

// Workers returns every registered worker, for shutdown fan-out.
func (r *Registry) Workers() []*Worker { return r.all }

// Pools returns every pool in stable model-name order.
func (r *Registry) Pools() []*Pool {
	var out []*Pool
	for _, byName := range r.pools {
		for _, p := range byName {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].model != out[j].model {
			return out[i].model < out[j].model
		}
		return out[i].kind < out[j].kind
	})
	return out
}

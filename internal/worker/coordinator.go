package worker

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Coordinator drains every registered worker at process exit. One worker
// failing to release never blocks the others; all failures are logged and
// the first one is reported.
type Coordinator struct {
	reg *Registry
	log zerolog.Logger
}

// NewCoordinator builds a coordinator over the registry.
func NewCoordinator(reg *Registry, log zerolog.Logger) *Coordinator {
	return &Coordinator{reg: reg, log: log}
}

// ShutdownAll sends shutdown to every worker in parallel and waits for all
// acknowledgments. Best-effort: errors are collected, not retried.
func (c *Coordinator) ShutdownAll(ctx context.Context) error {
	var g errgroup.Group
	for _, w := range c.reg.Workers() {
		w := w
		g.Go(func() error {
			if err := w.Shutdown(ctx); err != nil {
				c.log.Error().Err(err).Str("model", w.Name()).Str("kind", string(w.Kind())).Msg("worker shutdown failed")
				return err
			}
			c.log.Debug().Str("model", w.Name()).Str("kind", string(w.Kind())).Msg("worker shut down")
			return nil
		})
	}
	return g.Wait()
}

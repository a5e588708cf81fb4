package engine

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Fleet runs several engines side by side, typically one per device. Each
// engine keeps its own RunState and generator.
type Fleet struct {
	engines []*Engine
}

func NewFleet(engines ...*Engine) *Fleet {
	return &Fleet{engines: engines}
}

func (f *Fleet) Len() int {
	return len(f.engines)
}

// Run starts every engine and waits for all of them. Summaries are returned
// in engine order. The first Run error stops the remaining engines.
func (f *Fleet) Run(ctx context.Context) ([]Summary, error) {
	summaries := make([]Summary, len(f.engines))

	g, gctx := errgroup.WithContext(ctx)
	for i, e := range f.engines {
		i, e := i, e
		g.Go(func() error {
			summary, err := e.Run(gctx)
			if err != nil {
				f.Stop()
				return err
			}
			summaries[i] = summary
			return nil
		})
	}

	err := g.Wait()
	return summaries, err
}

// Stop stops every engine.
func (f *Fleet) Stop() {
	for _, e := range f.engines {
		e.Stop()
	}
}

package gather

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adityalohuni/formaudit/internal/artifact"
)

// Observer is notified after each gatherer finishes.
type Observer interface {
	ObserveGather(name artifact.Name, took time.Duration, err error)
}

type Runner struct {
	Gatherers []Gatherer
	Observer  Observer
	Logger    *zap.Logger
}

// Run executes every gatherer once against the same settled page. Gatherers
// share no state, so they run concurrently; the first failure cancels the
// rest and is returned unchanged.
func (r Runner) Run(ctx context.Context, pass PassContext) (artifact.Artifacts, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	seen := make(map[artifact.Name]bool, len(r.Gatherers))
	for _, g := range r.Gatherers {
		if seen[g.Name()] {
			return artifact.Artifacts{}, fmt.Errorf("duplicate gatherer for %s", g.Name())
		}
		seen[g.Name()] = true
	}

	results := make([]any, len(r.Gatherers))
	group, gctx := errgroup.WithContext(ctx)
	for i, g := range r.Gatherers {
		group.Go(func() error {
			start := time.Now()
			value, err := g.AfterPass(gctx, pass)
			took := time.Since(start)
			if r.Observer != nil {
				r.Observer.ObserveGather(g.Name(), took, err)
			}
			if err != nil {
				logger.Debug("gatherer failed", zap.String("artifact", string(g.Name())), zap.Duration("took", took), zap.Error(err))
				return err
			}
			logger.Debug("gatherer done", zap.String("artifact", string(g.Name())), zap.Duration("took", took))
			results[i] = value
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return artifact.Artifacts{}, err
	}

	var out artifact.Artifacts
	for i, g := range r.Gatherers {
		if err := out.Set(g.Name(), results[i]); err != nil {
			return artifact.Artifacts{}, err
		}
	}
	return out, nil
}

// Run is Runner.Run without an observer or logger.
func Run(ctx context.Context, pass PassContext, gatherers ...Gatherer) (artifact.Artifacts, error) {
	return Runner{Gatherers: gatherers}.Run(ctx, pass)
}

package manager

import (
	"context"
	"time"

	"personad/internal/engine"
	"personad/pkg/types"
)

// StageObserver receives the duration of each pipeline stage.
type StageObserver func(stage engine.Stage, took time.Duration, err error)

// Build prepares a servable model: apply the adapter to a working copy of
// base, merge it, quantize the merged weights and load the result. With a nil
// adapter only quantize and load run. Every intermediate Build creates is
// released once the next stage has replaced it or the pipeline fails; base is
// never passed to Release. Errors are *engine.Failure carrying the stage.
func Build(ctx context.Context, eng engine.Engine, base *engine.Model, adapter *types.Adapter, obs StageObserver) (*engine.Model, error) {
	if obs == nil {
		obs = func(engine.Stage, time.Duration, error) {}
	}
	cur := base
	drop := func(m *engine.Model) {
		if m != nil && m != base {
			_ = eng.Release(m)
		}
	}
	step := func(stage engine.Stage, fn func() (*engine.Model, error)) error {
		start := time.Now()
		next, err := fn()
		if err == nil {
			err = ctx.Err()
			if err != nil && next != cur {
				drop(next)
			}
		}
		obs(stage, time.Since(start), err)
		if err != nil {
			drop(cur)
			return withStage(stage, err)
		}
		if next != cur {
			drop(cur)
		}
		cur = next
		return nil
	}

	if adapter != nil {
		if err := step(engine.StageApply, func() (*engine.Model, error) { return eng.Apply(ctx, base, *adapter) }); err != nil {
			return nil, err
		}
		if err := step(engine.StageMerge, func() (*engine.Model, error) { return eng.Merge(ctx, cur) }); err != nil {
			return nil, err
		}
	}
	if err := step(engine.StageQuantize, func() (*engine.Model, error) { return eng.Quantize(ctx, cur) }); err != nil {
		return nil, err
	}

	// Load takes over cur; it is not released on success.
	start := time.Now()
	loaded, err := eng.Load(ctx, cur)
	if err == nil && ctx.Err() != nil {
		_ = eng.Release(loaded)
		obs(engine.StageLoad, time.Since(start), ctx.Err())
		return nil, withStage(engine.StageLoad, ctx.Err())
	}
	obs(engine.StageLoad, time.Since(start), err)
	if err != nil {
		drop(cur)
		return nil, withStage(engine.StageLoad, err)
	}
	return loaded, nil
}

func withStage(stage engine.Stage, err error) error {
	if engine.StageOf(err) != "" {
		return err
	}
	return &engine.Failure{Stage: stage, Err: err}
}

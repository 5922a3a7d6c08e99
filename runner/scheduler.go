package runner

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-cuke/featurelist"
	"github.com/ethereum-optimism/infra/op-cuke/types"
)

// Sources tells the scheduler where each engine's features live and which
// tags to run.
type Sources struct {
	APIRoot string
	UIRoot  string
	Tags    []string
}

// Scheduler turns one execution mode into a batch of submitted units and
// waits for it.
type Scheduler struct {
	log     log.Logger
	sources Sources
	pool    *Pool
	agg     *Aggregator
	units   *UnitFactory
}

func NewScheduler(logger log.Logger, sources Sources, pool *Pool, agg *Aggregator, units *UnitFactory) *Scheduler {
	return &Scheduler{
		log:     logger.New("component", "scheduler"),
		sources: sources,
		pool:    pool,
		agg:     agg,
		units:   units,
	}
}

// Schedule runs one mode to completion. The returned error is always an
// *AbortError; unit failures are reported through the result only.
func (s *Scheduler) Schedule(ctx context.Context, mode types.ExecutionMode) (*BatchResult, error) {
	batch := NewBatch(mode)

	root := s.sources.UIRoot
	if mode.Engine() == types.EngineAPI {
		root = s.sources.APIRoot
	}
	files, err := featurelist.Files(root, featurelist.FeatureExtension)
	if err != nil {
		return s.agg.Abort(batch, fmt.Errorf("failed to enumerate features: %w", err))
	}
	if len(files) == 0 {
		s.log.Warn("No feature files found", "mode", mode, "root", root)
	}
	s.log.Info("Scheduling mode", "mode", mode, "features", len(files), "root", root)

	switch mode {
	case types.ApiFeatureSequential:
		return s.sequential(ctx, batch, files)
	case types.ApiFeatureParallel:
		for _, f := range files {
			if err := s.submit(ctx, batch, s.units.APIUnit(mode, f, nil)); err != nil {
				return s.agg.Abort(batch, err)
			}
		}
	case types.ApiTagParallel:
		for _, f := range files {
			if err := s.submit(ctx, batch, s.units.APIUnit(mode, f, s.sources.Tags)); err != nil {
				return s.agg.Abort(batch, err)
			}
		}
	case types.UiFeatureSequential:
		if len(files) > 0 {
			if err := s.submit(ctx, batch, s.units.UIUnit(mode, "all", files, s.sources.Tags)); err != nil {
				return s.agg.Abort(batch, err)
			}
		}
	case types.UiFeatureParallel:
		for _, f := range files {
			if err := s.submit(ctx, batch, s.units.UIUnit(mode, featureLabel(f), []string{f}, nil)); err != nil {
				return s.agg.Abort(batch, err)
			}
		}
	case types.UiTagParallel:
		if len(files) > 0 {
			tags := s.sources.Tags
			if len(tags) == 0 {
				tags = []string{types.NoneSentinel}
			}
			for _, t := range tags {
				if err := s.submit(ctx, batch, s.units.UIUnit(mode, t, files, []string{t})); err != nil {
					return s.agg.Abort(batch, err)
				}
			}
		}
	default:
		return s.agg.Abort(batch, fmt.Errorf("unsupported execution mode %q", mode))
	}

	return s.agg.Await(ctx, batch)
}

// sequential submits one unit at a time and waits for its single-unit batch
// before submitting the next.
func (s *Scheduler) sequential(ctx context.Context, batch *Batch, files []string) (*BatchResult, error) {
	for _, f := range files {
		u := s.units.APIUnit(batch.Mode, f, nil)
		if err := s.submit(ctx, batch, u); err != nil {
			return s.agg.Abort(batch, err)
		}
		h := batch.handles[len(batch.handles)-1]

		single := NewBatch(batch.Mode)
		single.Add(h)
		if err := s.agg.Wait(ctx, single); err != nil {
			return s.agg.Abort(batch, err)
		}
		code, _ := h.Result()
		s.log.Debug("Sequential unit settled", "unit", u.ID(), "feature", filepath.Base(f), "code", int(code))
	}
	return s.agg.Finish(batch), nil
}

// submit parents the unit's span on the mode span carried by ctx, since
// units run on pool contexts.
func (s *Scheduler) submit(ctx context.Context, batch *Batch, u *Unit) error {
	u.parent = trace.SpanContextFromContext(ctx)
	h, err := s.pool.Submit(u)
	if err != nil {
		return fmt.Errorf("failed to submit unit %s: %w", u.ID(), err)
	}
	batch.Add(h)
	return nil
}

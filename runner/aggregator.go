package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-cuke/metrics"
	"github.com/ethereum-optimism/infra/op-cuke/types"
)

// Batch is the ordered set of handles produced while executing one mode.
// A batch belongs to a single mode iteration and is never reused.
type Batch struct {
	Mode    types.ExecutionMode
	handles []*Handle
	started time.Time
}

func NewBatch(mode types.ExecutionMode) *Batch {
	return &Batch{Mode: mode, started: time.Now()}
}

// Add appends a handle to the batch.
func (b *Batch) Add(h *Handle) {
	b.handles = append(b.handles, h)
}

// Handles returns the handles in submission order.
func (b *Batch) Handles() []*Handle {
	return append([]*Handle(nil), b.handles...)
}

func (b *Batch) Len() int {
	return len(b.handles)
}

// AbortError reports that a mode could not be completed. Remaining modes
// are skipped once it is returned.
type AbortError struct {
	Mode types.ExecutionMode
	Err  error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("mode %s aborted: %v", e.Mode, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// UnitResult is the settled view of one handle.
type UnitResult struct {
	ID       string
	Engine   types.Engine
	Features []string
	Tags     []string
	Report   string
	Log      string
	State    HandleState
	Code     types.ResultCode
	Duration time.Duration
}

// Passed reports whether the unit resolved with the success code.
func (r UnitResult) Passed() bool {
	return r.State == HandleResolved && r.Code.Succeeded()
}

// BatchResult is the verdict for one batch.
type BatchResult struct {
	Mode     types.ExecutionMode
	Outcome  types.BatchOutcome
	Units    []UnitResult
	Duration time.Duration
}

// Failed counts units that did not pass.
func (r *BatchResult) Failed() int {
	n := 0
	for _, u := range r.Units {
		if !u.Passed() {
			n++
		}
	}
	return n
}

// Aggregator waits for batches and escalates wait failures into a forced
// pool shutdown.
type Aggregator struct {
	log  log.Logger
	pool *Pool
}

func NewAggregator(logger log.Logger, pool *Pool) *Aggregator {
	return &Aggregator{log: logger.New("component", "aggregator"), pool: pool}
}

// Await blocks until every handle of the batch settles. A non-zero code is
// a failed unit, not an error. Interruption of ctx or a cancelled handle
// aborts the batch: the pool is force-stopped and an *AbortError returned.
func (a *Aggregator) Await(ctx context.Context, b *Batch) (*BatchResult, error) {
	if err := a.Wait(ctx, b); err != nil {
		return a.Abort(b, err)
	}
	return a.Finish(b), nil
}

// Wait blocks until every handle of b settles. It reports interruption of
// ctx and cancelled handles but has no side effects on the pool.
func (a *Aggregator) Wait(ctx context.Context, b *Batch) error {
	for _, h := range b.handles {
		select {
		case <-h.Done():
			if h.State() == HandleCancelled {
				return fmt.Errorf("unit %s: %w", h.unit.ID(), ErrHandleCancelled)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

// Finish computes the verdict of a fully settled batch.
func (a *Aggregator) Finish(b *Batch) *BatchResult {
	res := a.result(b)
	if res.Failed() == 0 {
		res.Outcome = types.OutcomeAllSucceeded
	} else {
		res.Outcome = types.OutcomeSomeFailed
	}
	a.log.Info("Batch finished", "mode", b.Mode, "outcome", res.Outcome, "units", len(res.Units),
		"failed", res.Failed(), "duration", res.Duration)
	metrics.RecordBatch(b.Mode, res.Outcome, len(res.Units), res.Failed(), res.Duration)
	return res
}

// Abort cancels the batch with cause err, for failures detected before or
// while waiting (enumeration errors, interrupted waits).
func (a *Aggregator) Abort(b *Batch, err error) (*BatchResult, error) {
	a.log.Error("Aborting batch", "mode", b.Mode, "err", err)
	metrics.RecordErrorDetails("batch", err)

	a.pool.Shutdown(false)
	for _, h := range b.handles {
		h.cancelHandle()
	}

	res := a.result(b)
	res.Outcome = types.OutcomeAborted
	metrics.RecordBatch(b.Mode, res.Outcome, len(res.Units), res.Failed(), res.Duration)
	return res, &AbortError{Mode: b.Mode, Err: err}
}

func (a *Aggregator) result(b *Batch) *BatchResult {
	res := &BatchResult{
		Mode:     b.Mode,
		Units:    make([]UnitResult, 0, len(b.handles)),
		Duration: time.Since(b.started),
	}
	for _, h := range b.handles {
		code, _ := h.Result()
		res.Units = append(res.Units, UnitResult{
			ID:       h.unit.ID(),
			Engine:   h.unit.Engine(),
			Features: h.unit.Features,
			Tags:     h.unit.Tags,
			Report:   h.unit.Paths.Report,
			Log:      h.unit.Paths.Log,
			State:    h.State(),
			Code:     code,
			Duration: h.Duration(),
		})
	}
	return res
}

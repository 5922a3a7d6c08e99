// Package engine defines the two test execution backends the scheduler
// drives, together with command based adapters and the report sink used by
// API runs.
package engine

import (
	"context"
	"io"
	"time"

	"github.com/ethereum-optimism/infra/op-cuke/feature"
)

// APIEngine executes an already filtered feature in process order and
// publishes scenario outcomes to the reporter. The returned value is the
// engine exit status; 0 means every scenario passed.
type APIEngine interface {
	Run(ctx context.Context, f *feature.Feature, rep Reporter, out io.Writer) (int, error)
}

// UIEngine executes features described by a command line style argument
// vector, e.g. [paths..., --format json:report.json, --tags @smoke].
type UIEngine interface {
	Run(ctx context.Context, argv []string, out io.Writer) (int, error)
}

// APIEngineFunc adapts a function to APIEngine.
type APIEngineFunc func(ctx context.Context, f *feature.Feature, rep Reporter, out io.Writer) (int, error)

func (fn APIEngineFunc) Run(ctx context.Context, f *feature.Feature, rep Reporter, out io.Writer) (int, error) {
	return fn(ctx, f, rep, out)
}

// UIEngineFunc adapts a function to UIEngine.
type UIEngineFunc func(ctx context.Context, argv []string, out io.Writer) (int, error)

func (fn UIEngineFunc) Run(ctx context.Context, argv []string, out io.Writer) (int, error) {
	return fn(ctx, argv, out)
}

// Status is the outcome of a scenario or step.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ScenarioResult is what an API engine reports for one scenario.
type ScenarioResult struct {
	Scenario feature.Scenario
	Status   Status
	Duration time.Duration
	Message  string
}

// Reporter collects the results of one API engine run.
type Reporter interface {
	// Begin is called once before any scenario is recorded.
	Begin(f *feature.Feature)
	Record(result ScenarioResult)
	// Finish flushes the collected results. It is called exactly once.
	Finish() error
}

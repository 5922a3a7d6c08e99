package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-cuke/engine"
	"github.com/ethereum-optimism/infra/op-cuke/feature"
	"github.com/ethereum-optimism/infra/op-cuke/logging"
	"github.com/ethereum-optimism/infra/op-cuke/metrics"
	"github.com/ethereum-optimism/infra/op-cuke/types"
)

// Unit is one deferred engine invocation. Execute never panics and never
// returns an error; every fault becomes types.ResultFailure.
type Unit struct {
	Mode     types.ExecutionMode
	Features []string
	Tags     []string
	Paths    UnitPaths

	log     log.Logger
	timeout time.Duration
	tracer  trace.Tracer
	parent  trace.SpanContext
	run     func(ctx context.Context, out io.Writer) (int, error)
}

// ID is the unit discriminator, shared by its report and log files.
func (u *Unit) ID() string {
	return u.Paths.Discriminator
}

// Engine is the backend the unit dispatches to.
func (u *Unit) Engine() types.Engine {
	return u.Mode.Engine()
}

// Execute runs the unit and converts the outcome into a result code.
func (u *Unit) Execute(ctx context.Context) (code types.ResultCode) {
	start := time.Now()
	code = types.ResultFailure

	if u.parent.IsValid() {
		ctx = trace.ContextWithSpanContext(ctx, u.parent)
	}
	ctx, span := u.tracer.Start(ctx, fmt.Sprintf("unit %s", u.ID()))
	span.SetAttributes(
		attribute.String("mode", u.Mode.String()),
		attribute.StringSlice("features", u.Features),
		attribute.StringSlice("tags", u.Tags),
	)
	defer func() {
		span.SetAttributes(attribute.Int("code", int(code)))
		span.End()
		metrics.RecordUnit(u.Mode, code, time.Since(start))
	}()

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	var out io.Writer = io.Discard
	if u.Paths.Log != "" {
		unitLog, err := logging.OpenUnitLog(u.Paths.Log)
		if err != nil {
			u.log.Warn("Unit log unavailable, discarding engine output", "unit", u.ID(), "err", err)
		} else {
			defer func() {
				if err := unitLog.Close(); err != nil {
					u.log.Warn("Failed to close unit log", "unit", u.ID(), "err", err)
				}
			}()
			out = unitLog
		}
	}

	u.log.Info("Running unit", "unit", u.ID(), "mode", u.Mode, "features", len(u.Features), "tags", u.Tags)

	var catcher panics.Catcher
	catcher.Try(func() {
		rc, err := u.run(ctx, out)
		if err != nil {
			u.log.Error("Unit failed", "unit", u.ID(), "err", err)
			metrics.RecordErrorDetails("unit", err)
			return
		}
		code = types.ResultCode(rc)
	})
	if r := catcher.Recovered(); r != nil {
		u.log.Error("Unit panicked", "unit", u.ID(), "panic", r.Value)
		metrics.RecordError("unit.panic")
		code = types.ResultFailure
	}

	if u.timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) && code.Succeeded() {
		code = types.ResultFailure
	}

	u.log.Info("Unit finished", "unit", u.ID(), "code", int(code), "duration", time.Since(start))
	return code
}

// UnitFactory builds units for both engines.
type UnitFactory struct {
	log     log.Logger
	api     engine.APIEngine
	ui      engine.UIEngine
	paths   *PathAllocator
	glue    []string
	timeout time.Duration
	tracer  trace.Tracer
}

// NewUnitFactory returns a factory. glue lists the UI glue packages; "none"
// entries are ignored.
func NewUnitFactory(logger log.Logger, api engine.APIEngine, ui engine.UIEngine, paths *PathAllocator, glue []string, timeout time.Duration) *UnitFactory {
	return &UnitFactory{
		log:     logger,
		api:     api,
		ui:      ui,
		paths:   paths,
		glue:    withoutNone(glue),
		timeout: timeout,
		tracer:  otel.Tracer("unit"),
	}
}

func (f *UnitFactory) newUnit(mode types.ExecutionMode, label string, features []string, tags []string) *Unit {
	return &Unit{
		Mode:     mode,
		Features: features,
		Tags:     tags,
		Paths:    f.paths.Allocate(mode, label),
		log:      f.log,
		timeout:  f.timeout,
		tracer:   f.tracer,
	}
}

// APIUnit builds a unit running one feature file through the API engine.
// When the mode filters by tag, scenarios not matching tags are pruned
// before the engine sees the feature.
func (f *UnitFactory) APIUnit(mode types.ExecutionMode, path string, tags []string) *Unit {
	u := f.newUnit(mode, featureLabel(path), []string{path}, tags)
	u.run = func(ctx context.Context, out io.Writer) (int, error) {
		if f.api == nil {
			return 1, fmt.Errorf("no API engine configured")
		}
		feat, err := feature.Load(path)
		if err != nil {
			return 1, err
		}
		if mode.FiltersTags() {
			feature.FilterByTags(feat, tags)
		}
		if !feat.HasScenarios() {
			u.log.Info("No scenarios left after tag filtering, skipping engine", "unit", u.ID(), "feature", path)
			return 0, nil
		}
		rep := engine.NewFileReporter(u.Paths.Report, u.Paths.JUnit)
		return f.api.Run(ctx, feat, rep, out)
	}
	return u
}

// UIUnit builds a unit handing features to the UI engine. Every tag other
// than "none" becomes a --tags argument.
func (f *UnitFactory) UIUnit(mode types.ExecutionMode, label string, features []string, tags []string) *Unit {
	u := f.newUnit(mode, label, features, withoutNone(tags))
	argv := UIArgs(features, u.Paths.Report, u.Tags, f.glue)
	u.run = func(ctx context.Context, out io.Writer) (int, error) {
		if f.ui == nil {
			return 1, fmt.Errorf("no UI engine configured")
		}
		return f.ui.Run(ctx, argv, out)
	}
	return u
}

// UIArgs builds the UI engine argument vector.
func UIArgs(features []string, report string, tags []string, glue []string) []string {
	argv := make([]string, 0, len(features)+4+2*len(tags)+2*len(glue))
	argv = append(argv, features...)
	argv = append(argv, "--format", "pretty", "--format", "json:"+report)
	for _, t := range tags {
		if feature.IsNone(t) {
			continue
		}
		argv = append(argv, "--tags", t)
	}
	for _, g := range glue {
		if feature.IsNone(g) {
			continue
		}
		argv = append(argv, "--glue", g)
	}
	return argv
}

func withoutNone(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v == "" || feature.IsNone(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

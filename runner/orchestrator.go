package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-cuke/config"
	"github.com/ethereum-optimism/infra/op-cuke/engine"
	"github.com/ethereum-optimism/infra/op-cuke/metrics"
	"github.com/ethereum-optimism/infra/op-cuke/reporting"
	"github.com/ethereum-optimism/infra/op-cuke/types"
)

// Config holds everything needed to run the configured modes.
type Config struct {
	Settings    *config.Settings
	BaseDir     string // relative feature roots are resolved against it
	OutputDir   string // parent of the cucumber-reports tree
	Concurrency int    // worker count; 0 means 2 x NumCPU
	UnitTimeout time.Duration
	APIEngine   engine.APIEngine
	UIEngine    engine.UIEngine
	RunID       string
	OnMode      func(ModeResult) // called after each processed mode, may be nil
	Log         log.Logger
}

// ModeResult is the outcome of one processed mode.
type ModeResult struct {
	Mode   types.ExecutionMode
	Result *BatchResult
}

// RunResult accumulates mode results over a run. It is separate from the
// per-mode batches and only read after the run.
type RunResult struct {
	RunID      string
	Modes      []ModeResult
	Skipped    []types.ExecutionMode
	Status     types.RunStatus
	Aborted    bool
	AbortErr   error
	ReportDir  string
	ReportErr  error
	Duration   time.Duration
	UnitsTotal int
	UnitsFail  int
}

// Orchestrator processes execution modes strictly in order against a single
// worker pool.
type Orchestrator struct {
	cfg    Config
	log    log.Logger
	layout Layout
	tracer trace.Tracer
}

// DefaultConcurrency is the worker count used when none is configured.
func DefaultConcurrency() int {
	return 2 * runtime.NumCPU()
}

// NewOrchestrator validates cfg and returns an orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Settings == nil {
		return nil, errors.New("settings are required")
	}
	if len(cfg.Settings.Modes) == 0 {
		return nil, errors.New("at least one execution mode is required")
	}
	for _, m := range cfg.Settings.Modes {
		if !m.IsValid() {
			return nil, fmt.Errorf("invalid execution mode %q", m)
		}
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	if cfg.Concurrency < 0 {
		return nil, errors.New("concurrency cannot be negative")
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	return &Orchestrator{
		cfg:    cfg,
		log:    cfg.Log.New("run", cfg.RunID),
		layout: NewLayout(cfg.OutputDir),
		tracer: otel.Tracer("orchestrator"),
	}, nil
}

// RunID returns the identifier of the run.
func (o *Orchestrator) RunID() string {
	return o.cfg.RunID
}

// Layout returns the report tree used by the run.
func (o *Orchestrator) Layout() Layout {
	return o.layout
}

func (o *Orchestrator) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || o.cfg.BaseDir == "" {
		return path
	}
	return filepath.Join(o.cfg.BaseDir, path)
}

// Run processes every configured mode. The error return is reserved for
// failures preparing the run; an aborted mode is reported through
// RunResult.Aborted and RunResult.AbortErr.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, fmt.Sprintf("run %s", o.cfg.RunID))
	defer span.End()

	if err := o.layout.Ensure(); err != nil {
		return nil, err
	}

	settings := o.cfg.Settings
	pool := NewPool(ctx, o.log, o.cfg.Concurrency)
	agg := NewAggregator(o.log, pool)
	units := NewUnitFactory(o.log, o.cfg.APIEngine, o.cfg.UIEngine, NewPathAllocator(o.layout), settings.GluePackages, o.cfg.UnitTimeout)
	sched := NewScheduler(o.log, Sources{
		APIRoot: o.resolve(settings.APIFeaturePath),
		UIRoot:  o.resolve(settings.FeaturePath),
		Tags:    settings.Tags,
	}, pool, agg, units)

	o.log.Info("Starting run", "modes", settings.Modes, "workers", pool.Size(), "output", o.layout.Root)

	result := &RunResult{RunID: o.cfg.RunID, ReportDir: o.layout.Root}
	for i, mode := range settings.Modes {
		modeCtx, modeSpan := o.tracer.Start(ctx, fmt.Sprintf("mode %s", mode))
		res, err := sched.Schedule(modeCtx, mode)
		modeSpan.SetAttributes(attribute.String("outcome", string(res.Outcome)))
		modeSpan.End()

		mr := ModeResult{Mode: mode, Result: res}
		result.Modes = append(result.Modes, mr)
		if o.cfg.OnMode != nil {
			o.cfg.OnMode(mr)
		}
		result.UnitsTotal += len(res.Units)
		result.UnitsFail += res.Failed()

		if err != nil {
			result.Aborted = true
			result.AbortErr = err
			result.Skipped = append(result.Skipped, settings.Modes[i+1:]...)
			o.log.Error("Mode aborted, skipping remaining modes", "mode", mode, "skipped", len(result.Skipped), "err", err)
			break
		}
	}

	// no-op after a forced shutdown
	pool.Shutdown(true)

	result.Status = types.RunStatusPass
	switch {
	case result.Aborted:
		result.Status = types.RunStatusAborted
	default:
		for _, m := range result.Modes {
			if m.Result.Outcome != types.OutcomeAllSucceeded {
				result.Status = types.RunStatusFail
			}
		}
	}
	result.Duration = time.Since(start)

	if settings.GenerateReport {
		if _, err := reporting.Generate(ctx, o.log, o.layout.Root, o.runInfo(result)); err != nil {
			result.ReportErr = err
			o.log.Error("Failed to generate aggregate report", "err", err)
			metrics.RecordErrorDetails("report", err)
		}
	}

	metrics.RecordRun(result.RunID, result.Status, result.Duration)
	span.SetAttributes(attribute.String("status", string(result.Status)))
	o.log.Info("Run finished", "status", result.Status, "modes", len(result.Modes),
		"units", result.UnitsTotal, "failed", result.UnitsFail, "duration", result.Duration)
	return result, nil
}

func (o *Orchestrator) runInfo(r *RunResult) reporting.RunInfo {
	info := reporting.RunInfo{
		RunID:       r.RunID,
		BuildName:   o.cfg.Settings.BuildName,
		BuildNumber: o.cfg.Settings.BuildNumber,
		Status:      string(r.Status),
		Duration:    r.Duration,
	}
	for _, m := range r.Modes {
		info.Modes = append(info.Modes, reporting.ModeSummary{
			Mode:    m.Mode.String(),
			Outcome: string(m.Result.Outcome),
			Units:   len(m.Result.Units),
			Failed:  m.Result.Failed(),
		})
	}
	return info
}

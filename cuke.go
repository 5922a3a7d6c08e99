package cuke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-cuke/engine"
	"github.com/ethereum-optimism/infra/op-cuke/exitcodes"
	"github.com/ethereum-optimism/infra/op-cuke/runner"
	"github.com/ethereum-optimism/infra/op-cuke/service"
	"github.com/ethereum-optimism/infra/op-cuke/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// cuke implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &cuke{}

// Runner executes every configured mode once.
type Runner interface {
	Run(ctx context.Context) (*runner.RunResult, error)
}

// cuke runs the configured execution modes once and exits.
type cuke struct {
	config   *Config
	version  string
	runner   Runner
	result   *runner.RunResult
	out      io.Writer
	service  *service.Service
	progress *progress

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(config *Config, version string, shutdownCallback func(error)) (*cuke, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.UICommand == nil || config.APICommand == nil {
		return nil, errors.New("engine commands are required")
	}

	config.Log.Debug("Creating op-cuke with config",
		"baseDir", config.BaseDir,
		"outputDir", config.OutputDir,
		"configFiles", config.ConfigFiles,
		"modes", config.Settings.Modes,
		"concurrency", config.Concurrency)

	prog := newProgress("", config.Settings.Modes)
	orch, err := runner.NewOrchestrator(runner.Config{
		Settings:    config.Settings,
		BaseDir:     config.BaseDir,
		OutputDir:   config.OutputDir,
		Concurrency: config.Concurrency,
		UnitTimeout: config.UnitTimeout,
		APIEngine:   &engine.CommandAPIEngine{Command: config.APICommand},
		UIEngine:    &engine.CommandUIEngine{Command: config.UICommand},
		OnMode:      prog.record,
		Log:         config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	prog.runID = orch.RunID()

	return &cuke{
		config:           config,
		version:          version,
		runner:           orch,
		progress:         prog,
		out:              os.Stdout,
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs every configured mode once. A passing run asks the application
// to shut down; otherwise the returned error carries the exit code.
// Start implements the cliapp.Lifecycle interface.
func (c *cuke) Start(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			c.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	c.running.Store(true)

	c.config.Log.Info("Starting op-cuke", "version", c.version, "modes", len(c.config.Settings.Modes))

	if c.progress == nil {
		c.progress = newProgress("", c.config.Settings.Modes)
	}
	if c.config.Metrics.Enabled {
		c.service = service.New(service.Config{
			MetricsAddr: service.MetricsAddr(c.config.Metrics.ListenAddr, c.config.Metrics.ListenPort),
			Status: service.StatusProvider{
				Run: func() any { return c.progress.snapshot() },
				Mode: func(name string) (any, bool) {
					return c.progress.mode(name)
				},
			},
		})
		c.service.Start(ctx)
	}

	c.progress.start()
	result, err := c.runner.Run(ctx)
	if err != nil {
		c.progress.finish(types.RunStatusAborted)
		c.config.Log.Error("Runtime error running modes", "error", err)
		return NewRuntimeError(err)
	}
	c.result = result
	c.progress.finish(result.Status)
	c.printResultsTable()

	switch result.Status {
	case types.RunStatusAborted:
		c.config.Log.Error("Run aborted", "run_id", result.RunID, "error", result.AbortErr)
		return NewRuntimeError(fmt.Errorf("run %s aborted: %w", result.RunID, result.AbortErr))
	case types.RunStatusFail:
		c.config.Log.Warn("Run completed with failures, returning exit code 1", "run_id", result.RunID)
		return NewTestFailureError(summary(result))
	}

	c.config.Log.Info("Run completed", "run_id", result.RunID, "status", result.Status)
	go func() {
		c.shutdownCallback(nil)
	}()
	return nil
}

// Stop implements the cliapp.Lifecycle interface.
func (c *cuke) Stop(ctx context.Context) error {
	c.config.Log.Info("Stopping op-cuke")
	if !c.running.Load() {
		c.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	c.running.Store(false)
	if c.service != nil {
		c.service.Shutdown()
	}
	c.config.Log.Info("op-cuke stopped successfully")
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (c *cuke) Stopped() bool {
	return !c.running.Load()
}

func summary(r *runner.RunResult) string {
	var failed []string
	for _, m := range r.Modes {
		if m.Result.Outcome != types.OutcomeAllSucceeded {
			failed = append(failed, m.Mode.String())
		}
	}
	return fmt.Sprintf("%d of %d units failed (modes: %s)", r.UnitsFail, r.UnitsTotal, strings.Join(failed, ", "))
}

// printResultsTable prints one row per mode followed by its units.
func (c *cuke) printResultsTable() {
	r := c.result
	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	t.SetTitle(fmt.Sprintf("Cucumber Results (%s)", formatDuration(r.Duration)))

	t.AppendHeader(table.Row{"Type", "ID", "Engine", "Duration", "Units", "Failed", "Result", "Report"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "ID", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Units", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Report", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, m := range r.Modes {
		res := m.Result
		t.AppendRow(table.Row{
			"Mode",
			m.Mode.String(),
			m.Mode.Engine().String(),
			formatDuration(res.Duration),
			len(res.Units),
			res.Failed(),
			outcomeString(res.Outcome),
			"",
		})
		for i, u := range res.Units {
			prefix := "├──"
			if i == len(res.Units)-1 {
				prefix = "└──"
			}
			t.AppendRow(table.Row{
				"",
				fmt.Sprintf("%s %s", prefix, u.ID),
				"",
				formatDuration(u.Duration),
				"",
				"",
				unitString(u),
				u.Report,
			})
		}
		t.AppendSeparator()
	}
	for _, m := range r.Skipped {
		t.AppendRow(table.Row{"Mode", m.String(), m.Engine().String(), "", "", "", "SKIPPED", ""})
	}

	switch r.Status {
	case types.RunStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.RunStatusFail:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	// keep the run ID in the footer as logged
	t.Style().Format.Footer = text.FormatDefault

	t.AppendFooter(table.Row{
		"TOTAL",
		r.RunID,
		"",
		formatDuration(r.Duration),
		r.UnitsTotal,
		r.UnitsFail,
		strings.ToUpper(string(r.Status)),
		r.ReportDir,
	})

	t.Render()
}

func outcomeString(o types.BatchOutcome) string {
	switch o {
	case types.OutcomeAllSucceeded:
		return "PASS"
	case types.OutcomeSomeFailed:
		return "FAIL"
	case types.OutcomeAborted:
		return "ABORTED"
	default:
		return string(o)
	}
}

func unitString(u runner.UnitResult) string {
	switch {
	case u.State == runner.HandleCancelled:
		return "CANCELLED"
	case u.Passed():
		return "PASS"
	default:
		return fmt.Sprintf("FAIL (%d)", u.Code)
	}
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

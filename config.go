package cuke

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-cuke/config"
	"github.com/ethereum-optimism/infra/op-cuke/engine"
	"github.com/ethereum-optimism/infra/op-cuke/flags"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	BaseDir     string           // Project directory, feature roots are relative to it
	OutputDir   string           // Parent of the cucumber-reports tree
	ConfigFiles []string         // Configuration files in merge order
	Settings    *config.Settings // Decoded orchestrator keys
	Concurrency int              // Number of pool workers (0 = auto-determine)
	UnitTimeout time.Duration    // Deadline for one execution unit, 0 for none
	UICommand   *engine.Command
	APICommand  *engine.Command
	Metrics     opmetrics.CLIConfig // Healthz and metrics servers run only when enabled
	Log         log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	baseDir, err := filepath.Abs(ctx.String(flags.BaseDir.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for base directory '%s': %w", ctx.String(flags.BaseDir.Name), err)
	}

	outputDir := ctx.String(flags.OutputDir.Name)
	if outputDir == "" {
		return nil, errors.New("output directory is required")
	}
	outputDir = resolvePath(baseDir, outputDir)

	configDir := resolvePath(baseDir, ctx.String(flags.ConfigDir.Name))
	var files []string
	for _, f := range ctx.StringSlice(flags.ConfigFiles.Name) {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, resolvePath(configDir, f))
		}
	}

	provider, err := config.Load(log, files, overrides(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	settings, err := provider.Settings()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	concurrency := ctx.Int(flags.Concurrency.Name)
	if concurrency < 0 {
		return nil, fmt.Errorf("concurrency cannot be negative: %d", concurrency)
	}
	unitTimeout := ctx.Duration(flags.UnitTimeout.Name)
	if unitTimeout < 0 {
		return nil, fmt.Errorf("unit timeout cannot be negative: %s", unitTimeout)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	classpath := ctx.StringSlice(flags.Classpath.Name)
	uiCmd, err := newCommand(ctx.String(flags.UICommand.Name), baseDir, classpath)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", flags.UICommand.Name, err)
	}
	apiCmd, err := newCommand(ctx.String(flags.APICommand.Name), baseDir, classpath)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", flags.APICommand.Name, err)
	}

	return &Config{
		BaseDir:     baseDir,
		OutputDir:   outputDir,
		ConfigFiles: files,
		Settings:    settings,
		Concurrency: concurrency,
		UnitTimeout: unitTimeout,
		UICommand:   uiCmd,
		APICommand:  apiCmd,
		Metrics:     metricsCfg,
		Log:         log,
	}, nil
}

// overrides collects the configuration keys explicitly set on the command
// line or through the environment. They win over every file.
func overrides(ctx *cli.Context) map[string]any {
	out := make(map[string]any)
	slices := map[string]string{
		flags.ParallelMode.Name: config.KeyParallelMode,
		flags.Tags.Name:         config.KeyTagsToRun,
		flags.Glue.Name:         config.KeyGluedPackages,
	}
	for flag, key := range slices {
		if ctx.IsSet(flag) {
			out[key] = ctx.StringSlice(flag)
		}
	}
	strs := map[string]string{
		flags.APIFeaturePath.Name: config.KeyAPIFeatureFilePath,
		flags.FeaturePath.Name:    config.KeyFeatureFilePath,
		flags.BuildName.Name:      config.KeyBuildName,
		flags.BuildNumber.Name:    config.KeyBuildNumber,
	}
	for flag, key := range strs {
		if ctx.IsSet(flag) {
			out[key] = ctx.String(flag)
		}
	}
	if ctx.IsSet(flags.GenerateReport.Name) {
		out[config.KeyGenerateReport] = ctx.Bool(flags.GenerateReport.Name)
	}
	return out
}

func newCommand(line, dir string, classpath []string) (*engine.Command, error) {
	cmd, err := engine.ParseCommand(line)
	if err != nil {
		return nil, err
	}
	cmd.Dir = dir
	cmd.Classpath = classpath
	return cmd, nil
}

func resolvePath(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

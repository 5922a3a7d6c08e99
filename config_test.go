package cuke

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-cuke/flags"
	"github.com/ethereum-optimism/infra/op-cuke/types"
)

func loadConfig(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var (
		cfg    *Config
		cfgErr error
	)
	app := &cli.App{
		Flags: flags.Flags,
		Action: func(ctx *cli.Context) error {
			cfg, cfgErr = NewConfig(ctx, log.NewLogger(log.DiscardHandler()))
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"op-cuke"}, args...)))
	return cfg, cfgErr
}

func writeProperties(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestNewConfigFromPropertyFiles(t *testing.T) {
	base := t.TempDir()
	resources := filepath.Join(base, "src", "test", "resources")
	writeProperties(t, resources, "tests.properties", `
parallelmode=API_FEATURE_PARALLEL,UI_TAG_PARALLEL
apifeaturefilepath=src/test/resources/api
featurefilepath=src/test/resources/ui
tagstorun=@smoke,@regression
gluedpackages=steps
`)
	writeProperties(t, resources, "report.properties", "generatereport=true\nbuildname=nightly\nbuildnumber=42\n")

	cfg, err := loadConfig(t, "--basedir", base, "--classpath", "lib/a.jar", "--classpath", "lib/b.jar")
	require.NoError(t, err)

	assert.Equal(t, base, cfg.BaseDir)
	assert.Equal(t, filepath.Join(base, "target"), cfg.OutputDir)
	assert.Equal(t, []string{
		filepath.Join(resources, "tests.properties"),
		filepath.Join(resources, "browser.properties"),
		filepath.Join(resources, "report.properties"),
		filepath.Join(resources, "mailer.properties"),
	}, cfg.ConfigFiles)

	s := cfg.Settings
	assert.Equal(t, []types.ExecutionMode{types.ApiFeatureParallel, types.UiTagParallel}, s.Modes)
	assert.Equal(t, "src/test/resources/api", s.APIFeaturePath)
	assert.Equal(t, []string{"@smoke", "@regression"}, s.Tags)
	assert.Equal(t, []string{"steps"}, s.GluePackages)
	assert.True(t, s.GenerateReport)
	assert.Equal(t, "nightly", s.BuildName)
	assert.Equal(t, "42", s.BuildNumber)

	assert.Equal(t, "cucumber", cfg.UICommand.Binary)
	assert.Equal(t, "karate", cfg.APICommand.Binary)
	assert.Equal(t, base, cfg.UICommand.Dir)
	assert.Equal(t, []string{"lib/a.jar", "lib/b.jar"}, cfg.APICommand.Classpath)
	assert.Zero(t, cfg.Concurrency)
	assert.Zero(t, cfg.UnitTimeout)
}

func TestNewConfigFlagsOverrideFiles(t *testing.T) {
	base := t.TempDir()
	resources := filepath.Join(base, "src", "test", "resources")
	writeProperties(t, resources, "tests.properties", `
parallelmode=UI_FEATURE_SEQUENTIAL
featurefilepath=ui
tagstorun=@smoke
generatereport=true
`)

	cfg, err := loadConfig(t,
		"--basedir", base,
		"--output-dir", "/tmp/cuke-out",
		"--parallel-mode", "ApiTagParallel",
		"--api-feature-path", "api",
		"--tags", "@nightly",
		"--generate-report=false",
		"--concurrency", "3",
		"--unit-timeout", "90s",
		"--api-command", "java -jar karate.jar",
	)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/cuke-out", cfg.OutputDir)
	assert.Equal(t, []types.ExecutionMode{types.ApiTagParallel}, cfg.Settings.Modes)
	assert.Equal(t, "api", cfg.Settings.APIFeaturePath)
	assert.Equal(t, "ui", cfg.Settings.FeaturePath)
	assert.Equal(t, []string{"@nightly"}, cfg.Settings.Tags)
	assert.False(t, cfg.Settings.GenerateReport)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.UnitTimeout)
	assert.Equal(t, "java", cfg.APICommand.Binary)
	assert.Equal(t, []string{"-jar", "karate.jar"}, cfg.APICommand.Args)
}

func TestNewConfigExplicitConfigFiles(t *testing.T) {
	base := t.TempDir()
	writeProperties(t, base, "cuke.yaml", "parallelmode:\n  - API_FEATURE_SEQUENTIAL\napifeaturefilepath: api\n")

	cfg, err := loadConfig(t, "--basedir", base, "--config-dir", ".", "--config", "cuke.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(base, "cuke.yaml")}, cfg.ConfigFiles)
	assert.Equal(t, []types.ExecutionMode{types.ApiFeatureSequential}, cfg.Settings.Modes)
}

func TestNewConfigErrors(t *testing.T) {
	base := t.TempDir()

	t.Run("no modes", func(t *testing.T) {
		_, err := loadConfig(t, "--basedir", base)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no execution modes")
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := loadConfig(t, "--basedir", base, "--parallel-mode", "EVERYTHING_AT_ONCE")
		require.Error(t, err)
	})

	t.Run("missing feature path", func(t *testing.T) {
		_, err := loadConfig(t, "--basedir", base, "--parallel-mode", "UI_FEATURE_PARALLEL")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "featurefilepath")
	})

	t.Run("negative concurrency", func(t *testing.T) {
		_, err := loadConfig(t, "--basedir", base, "--parallel-mode", "API_FEATURE_PARALLEL",
			"--api-feature-path", "api", "--concurrency", "-1")
		require.Error(t, err)
	})

	t.Run("empty engine command", func(t *testing.T) {
		_, err := loadConfig(t, "--basedir", base, "--parallel-mode", "API_FEATURE_PARALLEL",
			"--api-feature-path", "api", "--ui-command", " ")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ui-command")
	})

	t.Run("malformed config file", func(t *testing.T) {
		writeProperties(t, base, "broken.yaml", "parallelmode: [unterminated\n")
		_, err := loadConfig(t, "--basedir", base, "--config-dir", ".", "--config", "broken.yaml")
		require.Error(t, err)
	})
}

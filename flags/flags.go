package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_CUKE"

// DefaultConfigFiles are looked up in the config directory when no
// --config flag is given. Missing files are skipped.
var DefaultConfigFiles = []string{"tests.properties", "browser.properties", "report.properties", "mailer.properties"}

var (
	BaseDir = &cli.StringFlag{
		Name:    "basedir",
		Value:   ".",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "BASEDIR"),
		Usage:   "Project directory; feature roots and relative config files are resolved against it",
	}
	OutputDir = &cli.StringFlag{
		Name:    "output-dir",
		Value:   "target",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OUTPUT_DIR"),
		Usage:   "Directory receiving the cucumber-reports tree",
	}
	ConfigDir = &cli.StringFlag{
		Name:    "config-dir",
		Value:   "src/test/resources",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONFIG_DIR"),
		Usage:   "Directory holding the configuration files, relative to basedir",
	}
	ConfigFiles = &cli.StringSliceFlag{
		Name:    "config",
		Value:   cli.NewStringSlice(DefaultConfigFiles...),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONFIG"),
		Usage:   "Configuration files (.properties, .yaml, .toml) merged in order",
	}
	ParallelMode = &cli.StringSliceFlag{
		Name:    "parallel-mode",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PARALLEL_MODE"),
		Usage:   "Execution modes to run in order (eg. 'API_FEATURE_PARALLEL,UI_FEATURE_SEQUENTIAL'); overrides parallelmode",
	}
	APIFeaturePath = &cli.StringFlag{
		Name:    "api-feature-path",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "API_FEATURE_PATH"),
		Usage:   "Root of the API feature files; overrides apifeaturefilepath",
	}
	FeaturePath = &cli.StringFlag{
		Name:    "feature-path",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FEATURE_PATH"),
		Usage:   "Root of the UI feature files; overrides featurefilepath",
	}
	Tags = &cli.StringSliceFlag{
		Name:    "tags",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TAGS"),
		Usage:   "Tags to run, 'none' disables filtering; overrides tagstorun",
	}
	Glue = &cli.StringSliceFlag{
		Name:    "glue",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GLUE"),
		Usage:   "Glue packages handed to the UI engine; overrides gluedpackages",
	}
	GenerateReport = &cli.BoolFlag{
		Name:    "generate-report",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GENERATE_REPORT"),
		Usage:   "Write overview.html and summary.json after the last mode; overrides generatereport",
	}
	BuildName = &cli.StringFlag{
		Name:    "build-name",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "BUILD_NAME"),
		Usage:   "Build name shown in the aggregate report; overrides buildname",
	}
	BuildNumber = &cli.StringFlag{
		Name:    "build-number",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "BUILD_NUMBER"),
		Usage:   "Build number shown in the aggregate report; overrides buildnumber",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY"),
		Usage:   "Number of pool workers (0 = twice the number of CPUs)",
	}
	UnitTimeout = &cli.DurationFlag{
		Name:    "unit-timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "UNIT_TIMEOUT"),
		Usage:   "Deadline for a single execution unit (e.g. '30m'). 0 means no deadline.",
	}
	UICommand = &cli.StringFlag{
		Name:    "ui-command",
		Value:   "cucumber",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "UI_COMMAND"),
		Usage:   "Command line of the UI engine; features and options are appended",
	}
	APICommand = &cli.StringFlag{
		Name:    "api-command",
		Value:   "karate",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "API_COMMAND"),
		Usage:   "Command line of the API engine; a 'path:line:line' selector is appended",
	}
	Classpath = &cli.StringSliceFlag{
		Name:    "classpath",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CLASSPATH"),
		Usage:   "Classpath elements exported to both engines as CLASSPATH",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	BaseDir,
	OutputDir,
	ConfigDir,
	ConfigFiles,
	ParallelMode,
	APIFeaturePath,
	FeaturePath,
	Tags,
	Glue,
	GenerateReport,
	BuildName,
	BuildNumber,
	Concurrency,
	UnitTimeout,
	UICommand,
	APICommand,
	Classpath,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}

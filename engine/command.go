package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"

	"github.com/ethereum-optimism/infra/op-cuke/feature"
)

// waitDelay bounds how long output copying may outlive an interrupted
// process.
const waitDelay = 10 * time.Second

// Command describes an external engine process. The per-run arguments are
// appended to Args.
type Command struct {
	Binary    string
	Args      []string
	Dir       string
	Classpath []string
	Env       []string

	cmdBuilder func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// ParseCommand splits a command line such as "karate --threads 1" into a
// Command. Quoting is not supported.
func ParseCommand(line string) (*Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errors.New("engine command cannot be empty")
	}
	return &Command{Binary: fields[0], Args: fields[1:]}, nil
}

func (c *Command) build(ctx context.Context, args []string) *exec.Cmd {
	builder := c.cmdBuilder
	if builder == nil {
		builder = exec.CommandContext
	}
	cmd := builder(ctx, c.Binary, append(append([]string{}, c.Args...), args...)...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = waitDelay

	env := append(os.Environ(), c.Env...)
	if len(c.Classpath) > 0 {
		env = append(env, "CLASSPATH="+strings.Join(c.Classpath, string(os.PathListSeparator)))
	}
	cmd.Env = telemetry.InstrumentEnvironment(ctx, env)
	return cmd
}

// Run executes the command with extra arguments, streaming combined output
// to out. A non-zero exit status is returned as the code with a nil error;
// an error means the process could not be run or was interrupted.
func (c *Command) Run(ctx context.Context, extra []string, out io.Writer) (int, error) {
	if c.Binary == "" {
		return 1, errors.New("engine command cannot be empty")
	}
	cmd := c.build(ctx, extra)
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 1, fmt.Errorf("engine %s interrupted: %w", c.Binary, ctxErr)
	}
	exitErr := &exec.ExitError{}
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			code = 1
		}
		return code, nil
	}
	return 1, fmt.Errorf("failed to run engine %s: %w", c.Binary, err)
}

// CommandUIEngine hands the argument vector to an external cucumber style
// command line runner.
type CommandUIEngine struct {
	Command *Command
}

var _ UIEngine = (*CommandUIEngine)(nil)

func (e *CommandUIEngine) Run(ctx context.Context, argv []string, out io.Writer) (int, error) {
	return e.Command.Run(ctx, argv, out)
}

// CommandAPIEngine runs a feature through an external API test runner. The
// remaining scenarios are selected with a "path:line:line" argument and
// every selected scenario is reported with the outcome of the process.
type CommandAPIEngine struct {
	Command *Command
}

var _ APIEngine = (*CommandAPIEngine)(nil)

// Selector builds the "path:line:line" argument for the scenarios left in f.
func Selector(f *feature.Feature) string {
	var sb strings.Builder
	sb.WriteString(f.Path)
	for _, line := range f.ScenarioLines() {
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatInt(line, 10))
	}
	return sb.String()
}

func (e *CommandAPIEngine) Run(ctx context.Context, f *feature.Feature, rep Reporter, out io.Writer) (int, error) {
	rep.Begin(f)

	start := time.Now()
	code, runErr := e.Command.Run(ctx, []string{Selector(f)}, out)
	elapsed := time.Since(start)

	status := StatusPassed
	message := ""
	switch {
	case runErr != nil:
		status = StatusFailed
		message = runErr.Error()
	case code != 0:
		status = StatusFailed
		message = fmt.Sprintf("engine exited with status %d", code)
	}

	scenarios := f.Scenarios()
	for _, s := range scenarios {
		rep.Record(ScenarioResult{
			Scenario: s,
			Status:   status,
			Duration: elapsed / time.Duration(len(scenarios)),
			Message:  message,
		})
	}

	if err := rep.Finish(); err != nil {
		if runErr != nil {
			return code, errors.Join(runErr, err)
		}
		return 1, err
	}
	return code, runErr
}

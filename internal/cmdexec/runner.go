// Package cmdexec runs the external command-line tools the lifecycle depends on.
package cmdexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/italolelis/loan_downloader/internal/logctx"
	"github.com/italolelis/loan_downloader/internal/telemetry"
)

var commandContext = exec.CommandContext

// Result holds the captured output of a finished command.
type Result struct {
	Stdout string
	Stderr string
}

// Combined returns stdout followed by stderr.
func (r Result) Combined() string {
	return r.Stdout + r.Stderr
}

// Runner executes a command and waits for it to finish.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExitError is returned when a command cannot start or exits non-zero. The captured output
// is kept so callers can inspect it.
type ExitError struct {
	Command  string
	ExitCode int
	Result   Result
	Err      error
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Result.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Result.Stdout)
	}

	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}

	if msg == "" {
		return fmt.Sprintf("%s exited with code %d: %v", e.Command, e.ExitCode, e.Err)
	}

	return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, msg)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	logger := logctx.LoggerFromContext(ctx)

	var stdout, stderr bytes.Buffer

	cmd := commandContext(ctx, name, args...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	logger.Debug("command finished",
		"command", name,
		"args", Redact(args),
		"duration_ms", time.Since(start).Milliseconds(),
		"err", err,
	)

	if err != nil {
		exitCode := -1

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}

		return res, &ExitError{Command: filepath.Base(name), ExitCode: exitCode, Result: res, Err: err}
	}

	return res, nil
}

// Redact masks values that follow secret-bearing flags.
func Redact(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)

	for i := 0; i < len(out)-1; i++ {
		if out[i] == "--password" {
			out[i+1] = "****"
		}
	}

	return out
}

var operationPattern = regexp.MustCompile(`^[a-z][a-z_-]*$`)

// InstrumentedRunner records every invocation as a command operation.
type InstrumentedRunner struct {
	runner    Runner
	telemetry *telemetry.Telemetry
}

func NewInstrumentedRunner(runner Runner, tel *telemetry.Telemetry) *InstrumentedRunner {
	return &InstrumentedRunner{runner: runner, telemetry: tel}
}

func (r *InstrumentedRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	var res Result

	err := r.telemetry.InstrumentCommand(ctx, filepath.Base(name), Operation(args), func(ctx context.Context) error {
		var err error

		res, err = r.runner.Run(ctx, name, args...)

		return err
	})

	return res, err
}

// Operation names an invocation by its subcommand, or "run" when the first argument is not one.
func Operation(args []string) string {
	if len(args) > 0 && operationPattern.MatchString(args[0]) {
		return args[0]
	}

	return "run"
}

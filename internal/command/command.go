// Package command runs the external tools behind the pipeline collaborators.
package command

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"transcript-studio/internal/domain"
)

// Result is one process execution response.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner abstracts process execution for testability.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// Log converts an invocation into its loggable form.
func Log(name string, args []string, res Result) domain.CommandLog {
	return domain.CommandLog{
		Command:  name,
		Args:     args,
		ExitCode: res.ExitCode,
		Stdout:   trimOutput(res.Stdout),
		Stderr:   trimOutput(res.Stderr),
	}
}

// Fail builds a stage error for a failed invocation.
func Fail(stage, message string, log domain.CommandLog, err error) *domain.StageError {
	return &domain.StageError{
		Stage:      stage,
		Message:    message,
		CommandLog: log,
		Err:        err,
	}
}

// WithTimeout bounds ctx by d when d is positive.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

const maxLoggedOutput = 4096

// trimOutput keeps the tail of long tool output, where errors usually are.
func trimOutput(s string) string {
	if len(s) <= maxLoggedOutput {
		return s
	}
	return "..." + s[len(s)-maxLoggedOutput:]
}

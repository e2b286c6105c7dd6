package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a project or transcript does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput covers malformed sources, unsupported files and unsupported targets.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidState is returned when upstream media or status does not allow an operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrCollaborator marks a failed or timed-out call into an external engine.
	ErrCollaborator = errors.New("collaborator failure")
	// ErrPersistence marks a write the artifact store could not commit.
	ErrPersistence = errors.New("persistence failure")
)

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// StageError is a stage-aware collaborator error with optional command context.
type StageError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats stage failures for logs.
func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is classifies every stage error as a collaborator failure.
func (e *StageError) Is(target error) bool {
	return target == ErrCollaborator
}

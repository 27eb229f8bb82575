// Package exec abstracts running external tools so that key tool
// invocations can be replaced in tests.
package exec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// CommandExecutor runs an external command to completion.
type CommandExecutor interface {
	// Execute runs name with args and returns captured stdout and stderr.
	// A non-zero exit is reported as a non-nil error (*exec.ExitError for
	// the real executor).
	Execute(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)
}

// RealCommandExecutor executes actual commands using os/exec.
// The child inherits the parent environment unchanged; callers scope tool
// state through arguments, not environment variables.
type RealCommandExecutor struct{}

// Execute runs an actual command.
func (r *RealCommandExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// DefaultExecutor returns the standard production executor.
func DefaultExecutor() CommandExecutor {
	return &RealCommandExecutor{}
}

// ExitCode extracts the process exit code from an Execute error, or -1 when
// the command did not run to an exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

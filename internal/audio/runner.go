package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ToolError is a non-zero exit from an external tool, carrying the exit
// code and the tool's captured combined output.
type ToolError struct {
	Tool     string
	ExitCode int
	Output   string
	Err      error
}

func (e *ToolError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s failed (exit %d): %v", e.Tool, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s failed (exit %d): %v\nOutput: %s", e.Tool, e.ExitCode, e.Err, e.Output)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Runner executes one external command. Tests substitute their own.
type Runner func(ctx context.Context, name string, args ...string) error

// runCommand is the default Runner. It captures stdout and stderr
// together and wraps any failure in a ToolError.
func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return &ToolError{
		Tool:     name,
		ExitCode: exitCode,
		Output:   strings.TrimSpace(string(output)),
		Err:      err,
	}
}

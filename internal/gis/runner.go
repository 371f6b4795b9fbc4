// Package gis wraps the external geospatial tools the pipeline shells out to
// (GDAL/OGR, tippecanoe, LAStools). Each tool gets a narrow helper on top of
// a Runner so pipeline logic stays testable without the real binaries.
package gis

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner executes an external command and captures its output.
type Runner interface {
	// Run executes name with args, feeding stdin (may be nil) to the
	// process, and returns captured stdout/stderr. A non-zero exit code
	// is returned as an error wrapping *ExitError.
	Run(ctx context.Context, stdin []byte, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExitError reports a tool that started but exited non-zero.
type ExitError struct {
	Tool   string
	Args   []string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Tool, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Log *slog.Logger
}

// NewExecRunner creates a runner that logs each invocation.
func NewExecRunner(log *slog.Logger) *ExecRunner {
	if log == nil {
		log = slog.Default()
	}
	return &ExecRunner{Log: log}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	r.Log.Debug("running tool", "tool", name, "args", strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("running %s: %w", name, &ExitError{
				Tool:   name,
				Args:   args,
				Code:   exitErr.ExitCode(),
				Stderr: stderr.String(),
			})
		}
		if strings.Contains(err.Error(), "executable file not found") {
			return nil, nil, fmt.Errorf("%s is not installed or not on PATH: %w", name, err)
		}
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("running %s: %w", name, err)
	}

	return stdout.Bytes(), stderr.Bytes(), nil
}

// Package ffmpeg runs the ffmpeg and ffprobe binaries.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/aura-reels/backend/pkg/apperr"
)

// stderrTail bounds how much ffmpeg stderr is kept in error messages.
const stderrTail = 2048

// Runner executes an external tool and returns its stdout.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs binaries with os/exec.
type ExecRunner struct{}

// Output runs name with args, capturing stdout. A non-zero exit or a missing binary
// yields an apperr.ErrExternalTool error carrying the end of stderr.
func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), apperr.Wrap(apperr.ErrExternalTool, name, tail(stderr.String()), err)
	}
	return stdout.Bytes(), nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = "..." + s[len(s)-stderrTail:]
	}
	return s
}

// Transcoder invokes ffmpeg with a prepared argument list.
type Transcoder struct {
	bin    string
	runner Runner
}

// NewTranscoder creates a Transcoder for the ffmpeg binary at bin.
func NewTranscoder(bin string, runner Runner) *Transcoder {
	if bin == "" {
		bin = "ffmpeg"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Transcoder{bin: bin, runner: runner}
}

// Run executes ffmpeg with args (binary name excluded).
func (t *Transcoder) Run(ctx context.Context, args []string) error {
	if _, err := t.runner.Output(ctx, t.bin, args...); err != nil {
		return fmt.Errorf("transcode: %w", err)
	}
	return nil
}

// CommandLine renders the full invocation for logging.
func (t *Transcoder) CommandLine(args []string) string {
	return t.bin + " " + strings.Join(args, " ")
}

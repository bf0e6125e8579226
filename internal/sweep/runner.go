package sweep

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Result is the captured output of one child run.
type Result struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes a pipeline run as an isolated unit.
type Runner interface {
	Run(ctx context.Context, args []string) (Result, error)
}

// ProcessRunner re-executes a meshforge binary once per attempt.
type ProcessRunner struct {
	Binary string
	// BaseArgs precede the attempt arguments, e.g. "--config", path.
	BaseArgs []string
	Env      []string
}

// NewProcessRunner targets the running executable.
func NewProcessRunner(baseArgs ...string) (*ProcessRunner, error) {
	binary, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return &ProcessRunner{Binary: binary, BaseArgs: baseArgs}, nil
}

// Run implements Runner. The child's stdout and stderr are captured separately.
func (p *ProcessRunner) Run(ctx context.Context, args []string) (Result, error) {
	full := make([]string, 0, len(p.BaseArgs)+len(args))
	full = append(full, p.BaseArgs...)
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, p.Binary, full...) //nolint:gosec
	if len(p.Env) > 0 {
		cmd.Env = append(os.Environ(), p.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		return res, fmt.Errorf("run pipeline: %w", err)
	}
	return res, nil
}

package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Executor runs external collaborator commands.
type Executor interface {
	// Run streams combined stdout and stderr lines to onLine.
	Run(ctx context.Context, binary string, args []string, onLine func(string)) error
	// Output returns stdout; stderr is folded into the returned error.
	Output(ctx context.Context, binary string, args []string) ([]byte, error)
}

// CommandExecutor is the os/exec backed Executor.
type CommandExecutor struct{}

const outputTailLines = 20

// Run implements Executor.
func (CommandExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		scanErr error
		once    sync.Once
		tail    []string
	)

	forward := func(line string) {
		mu.Lock()
		tail = append(tail, line)
		if len(tail) > outputTailLines {
			tail = tail[len(tail)-outputTailLines:]
		}
		mu.Unlock()
		if onLine != nil {
			onLine(line)
		}
	}

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			forward(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		if detail := strings.TrimSpace(strings.Join(tail, "\n")); detail != "" {
			return fmt.Errorf("wait command: %w: %s", err, detail)
		}
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}

// Output implements Executor.
func (CommandExecutor) Output(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return out, fmt.Errorf("run command: %w: %s", err, detail)
		}
		return out, fmt.Errorf("run command: %w", err)
	}
	return out, nil
}

// WithTimeout derives a context bounded by timeout; zero leaves ctx unbounded.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// ClassifyCommandError tags a collaborator failure with ErrTimeout when the
// bounded context expired and ErrExternalTool otherwise.
func ClassifyCommandError(ctx context.Context, stage, operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Wrap(ErrTimeout, stage, operation, "command timed out", err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%s: %s: %w", stage, operation, context.Canceled)
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return Wrap(ErrConfiguration, stage, operation, "command not runnable", err)
	}
	return Wrap(ErrExternalTool, stage, operation, "command failed", err)
}

package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"meshforge/internal/config"
	"meshforge/internal/logging"
	"meshforge/internal/services"
)

// Request carries one image generation call.
type Request struct {
	Prompt     string
	Seed       *int64
	Steps      int
	Guidance   float64
	Width      int
	Height     int
	OutputPath string
}

// Generator produces an image file and returns its path.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// CommandGenerator runs a configured command that writes the image to --output.
type CommandGenerator struct {
	model   Model
	command config.Command
	exec    services.Executor
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a CommandGenerator.
type Option func(*CommandGenerator)

// WithExecutor injects a custom command executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(g *CommandGenerator) {
		if exec != nil {
			g.exec = exec
		}
	}
}

// WithTimeout bounds each invocation.
func WithTimeout(timeout time.Duration) Option {
	return func(g *CommandGenerator) {
		g.timeout = timeout
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *CommandGenerator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewCommandGenerator builds a generator for model backed by command.
func NewCommandGenerator(model Model, command config.Command, opts ...Option) (*CommandGenerator, error) {
	if len(command) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "image", "configure backend",
			fmt.Sprintf("backends.%s.command must not be empty", model), nil)
	}
	g := &CommandGenerator{
		model:   model,
		command: command,
		exec:    services.CommandExecutor{},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(logging.String("model", string(model)))
	return g, nil
}

// Generate implements Generator.
func (g *CommandGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.OutputPath) == "" {
		return "", services.Wrap(services.ErrConfiguration, "image", "generate", "output path required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return "", fmt.Errorf("create image directory: %w", err)
	}

	args := g.command.Args(
		"--prompt", req.Prompt,
		"--steps", strconv.Itoa(req.Steps),
		"--guidance", strconv.FormatFloat(req.Guidance, 'f', -1, 64),
		"--width", strconv.Itoa(req.Width),
		"--height", strconv.Itoa(req.Height),
		"--output", req.OutputPath,
	)
	if req.Seed != nil {
		args = append(args, "--seed", strconv.FormatInt(*req.Seed, 10))
	}

	runCtx, cancel := services.WithTimeout(ctx, g.timeout)
	defer cancel()

	logger := logging.WithContext(ctx, g.logger)
	logger.Debug("image generator starting", logging.String("command", g.command.String()))
	err := g.exec.Run(runCtx, g.command.Binary(), args, func(line string) {
		logger.Debug("image generator output", logging.String("line", line))
	})
	if err != nil {
		return "", services.ClassifyCommandError(runCtx, "image", "generate", err)
	}

	if _, err := os.Stat(req.OutputPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrExternalTool, "image", "verify output",
				fmt.Sprintf("generator did not create %s", req.OutputPath), err)
		}
		return "", fmt.Errorf("stat generated image: %w", err)
	}
	return req.OutputPath, nil
}

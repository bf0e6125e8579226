package validation

import (
	"context"
	"log/slog"
	"os"
	"time"

	"meshforge/internal/config"
	"meshforge/internal/logging"
	"meshforge/internal/services"
)

// Inspector runs the configured validator command against a mesh.
type Inspector struct {
	command config.Command
	exec    services.Executor
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithExecutor injects a custom command executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(i *Inspector) {
		if exec != nil {
			i.exec = exec
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Inspector) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewInspector builds an Inspector from configuration.
func NewInspector(cfg *config.Config, opts ...Option) *Inspector {
	i := &Inspector{
		command: cfg.Validation.Command,
		exec:    services.CommandExecutor{},
		timeout: cfg.CollaboratorTimeout(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Inspect validates the mesh at path and returns the decoded report.
func (i *Inspector) Inspect(ctx context.Context, path string) (Report, error) {
	if _, err := os.Stat(path); err != nil {
		return Report{}, services.Wrap(services.ErrNotFound, "validate", "inspect", "mesh file missing", err)
	}
	runCtx, cancel := services.WithTimeout(ctx, i.timeout)
	defer cancel()

	logging.WithContext(ctx, i.logger).Debug("validator starting",
		logging.String("command", i.command.String()),
		logging.String("input", path),
	)
	out, err := i.exec.Output(runCtx, i.command.Binary(), i.command.Args("--input", path))
	if err != nil {
		return Report{}, services.ClassifyCommandError(runCtx, "validate", "inspect", err)
	}
	report, err := ParseReport(out)
	if err != nil {
		return Report{}, services.Wrap(services.ErrValidation, "validate", "parse report", "", err)
	}
	return report, nil
}

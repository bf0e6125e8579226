package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"meshforge/internal/logging"
	"meshforge/internal/services"
)

// Options describes one stage execution.
type Options struct {
	Logger *slog.Logger
	Stage  string
	Action func(context.Context) error
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Outcome reports timing for a finished stage.
type Outcome struct {
	Started  time.Time
	Duration time.Duration
}

// Run executes a stage action with stage-scoped context and uniform
// start/complete/failure logging.
func Run(ctx context.Context, opts Options) (Outcome, error) {
	if opts.Action == nil {
		return Outcome{}, fmt.Errorf("stage action unavailable: %s", opts.Stage)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	stageCtx := services.WithStage(ctx, opts.Stage)
	logger := logging.WithContext(stageCtx, opts.Logger)

	outcome := Outcome{Started: now()}
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	err := opts.Action(stageCtx)
	outcome.Duration = now().Sub(outcome.Started)
	if err != nil {
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			logging.Duration("duration", outcome.Duration),
			logging.Error(err),
		}
		if errors.Is(err, context.Canceled) {
			logger.Warn("stage canceled", logging.Args(append(attrs,
				logging.String(logging.FieldImpact, "run stopped before completion"))...)...)
		} else {
			logger.Error("stage failed", logging.Args(attrs...)...)
		}
		return outcome, err
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("duration", outcome.Duration),
	)
	return outcome, nil
}

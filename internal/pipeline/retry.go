package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"meshforge/internal/config"
	"meshforge/internal/logging"
	"meshforge/internal/services"
)

// RetryPolicy decides how often a collaborator call is attempted.
type RetryPolicy interface {
	Do(ctx context.Context, operation string, fn func(context.Context) error) error
}

// NoRetry runs fn exactly once.
type NoRetry struct{}

// Do implements RetryPolicy.
func (NoRetry) Do(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

// Backoff retries retryable failures with exponential delay.
type Backoff struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Logger       *slog.Logger
	// Sleep waits between attempts; nil uses a context-aware timer.
	Sleep func(context.Context, time.Duration) error
}

// RetryPolicyFromConfig returns NoRetry unless [retry] max_attempts exceeds 1.
func RetryPolicyFromConfig(cfg config.Retry, logger *slog.Logger) RetryPolicy {
	if cfg.MaxAttempts <= 1 {
		return NoRetry{}
	}
	return &Backoff{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: time.Duration(cfg.InitialDelayMS) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.MaxDelayMS) * time.Millisecond,
		Multiplier:   cfg.Multiplier,
		Logger:       logger,
	}
}

// Do implements RetryPolicy. Configuration errors and cancellation stop immediately.
func (b *Backoff) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	attempts := b.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	logger := logging.WithContext(ctx, b.Logger)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := b.delay(attempt - 1)
			logging.WarnWithContext(logger, "retrying collaborator call", "collaborator_retry",
				logging.String("operation", operation),
				logging.Int("attempt", attempt),
				logging.Int("max_attempts", attempts),
				logging.Duration("delay", delay),
				logging.Error(lastErr),
				logging.String(logging.FieldErrorHint, services.ErrorHint(lastErr)),
				logging.String(logging.FieldImpact, "run delayed by retry"),
			)
			if err := b.sleep(ctx, delay); err != nil {
				return fmt.Errorf("%s: retry canceled: %w", operation, err)
			}
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !services.Retryable(lastErr) || ctx.Err() != nil {
			return lastErr
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}

func (b *Backoff) delay(retry int) time.Duration {
	multiplier := b.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	d := float64(b.InitialDelay) * math.Pow(multiplier, float64(retry-1))
	if b.MaxDelay > 0 && d > float64(b.MaxDelay) {
		d = float64(b.MaxDelay)
	}
	return time.Duration(d)
}

func (b *Backoff) sleep(ctx context.Context, d time.Duration) error {
	if b.Sleep != nil {
		return b.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

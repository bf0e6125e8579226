package sweep

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"meshforge/internal/fileutil"
	"meshforge/internal/logging"
	"meshforge/internal/pipeline"
	"meshforge/internal/services"
	"meshforge/internal/staging"
)

// LockFile guards a sweep root against concurrent sweeps.
const LockFile = ".sweep.lock"

// Harness runs experiments one attempt at a time.
type Harness struct {
	root    string
	runner  Runner
	logger  *slog.Logger
	out     io.Writer
	metrics *Metrics
	now     func() time.Time
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithOutput sets the progress writer.
func WithOutput(w io.Writer) Option {
	return func(h *Harness) {
		if w != nil {
			h.out = w
		}
	}
}

// WithMetrics replaces the default collectors.
func WithMetrics(m *Metrics) Option {
	return func(h *Harness) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Harness) {
		if now != nil {
			h.now = now
		}
	}
}

// New builds a harness writing under root.
func New(root string, runner Runner, opts ...Option) *Harness {
	h := &Harness{
		root:    root,
		runner:  runner,
		logger:  logging.NewNop(),
		out:     io.Discard,
		metrics: NewMetrics(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.NewComponentLogger(h.logger, "sweep")
	return h
}

// Metrics returns the harness collectors.
func (h *Harness) Metrics() *Metrics {
	return h.metrics
}

// Run executes every attempt of exps. Individual failures are recorded and
// the sweep continues; only setup errors and cancellation are returned. Temp
// directories are removed even when the sweep is interrupted.
func (h *Harness) Run(ctx context.Context, exps []Experiment) (*Summary, error) {
	if h.runner == nil {
		return nil, services.Wrap(services.ErrConfiguration, "sweep", "run", "runner not configured", nil)
	}
	root, err := filepath.Abs(h.root)
	if err != nil {
		return nil, fmt.Errorf("resolve sweep root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create sweep root: %w", err)
	}

	lock := flock.New(filepath.Join(root, LockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another sweep is already writing to %s", root)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			h.logger.Warn("failed to release sweep lock", logging.Error(err))
		}
	}()

	summary := &Summary{Root: root, StartedAt: h.now()}
	fmt.Fprintf(h.out, "Starting experiments. Results will be saved to %s\n", root)

	var runErr error
	current := ""
	for _, attempt := range Plan(root, exps) {
		if err := ctx.Err(); err != nil {
			summary.Interrupted = true
			runErr = err
			break
		}
		if attempt.Experiment != current {
			current = attempt.Experiment
			fmt.Fprintf(h.out, "\n--- Experiment: %s -> %s ---\n", current, filepath.Join(root, current))
		}
		summary.Attempts = append(summary.Attempts, h.runAttempt(ctx, attempt))
	}

	cleanupCtx := context.WithoutCancel(ctx)
	cleanup := staging.RemoveNamedDirs(cleanupCtx, root, staging.TempDirName, h.logger)
	summary.CleanedDirs = len(cleanup.Removed)
	for _, ce := range cleanup.Errors {
		summary.CleanupErrors = append(summary.CleanupErrors, fmt.Sprintf("%s: %v", ce.Path, ce.Error))
	}
	summary.FinishedAt = h.now()
	h.metrics.observeCleanup(len(cleanup.Errors), summary.FinishedAt)

	h.writeReports(root, summary)
	fmt.Fprintln(h.out, "\n--- Experiments Complete ---")
	return summary, runErr
}

func (h *Harness) runAttempt(ctx context.Context, a Attempt) (result AttemptResult) {
	ctx = services.WithExperiment(ctx, a.Experiment)
	logger := logging.WithContext(ctx, h.logger).With(
		logging.String("point", a.Point),
		logging.Int64("seed", a.Seed),
	)
	result = AttemptResult{Experiment: a.Experiment, Point: a.Point, Seed: a.Seed}
	fmt.Fprintf(h.out, "Running: %s\n", a.Progress())

	started := h.now()
	defer func() {
		d := h.now().Sub(started)
		result.DurationMS = d.Milliseconds()
		h.metrics.observeAttempt(a.Experiment, result.Outcome, d)
	}()

	if err := os.MkdirAll(a.TempDir(), 0o755); err != nil {
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		logging.ErrorWithContext(logger, "sweep attempt setup failed", "sweep_attempt_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the sweep output directory"),
		)
		return result
	}

	if a.Config.ManifestPath != "" {
		// Seeds of one point share the temp dir.
		_ = os.Remove(a.Config.ManifestPath)
	}

	res, err := h.runner.Run(ctx, CommandArgs(a.Config))
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		fmt.Fprintf(h.out, "Error running pipeline: %v\n", err)
		logging.ErrorWithContext(logger, "pipeline run failed", "sweep_attempt_failed",
			logging.Error(err),
			logging.String("stdout", tail(res.Stdout)),
			logging.String("stderr", tail(res.Stderr)),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			logging.String(logging.FieldImpact, "grid point has no artifacts; sweep continues"),
		)
		return result
	}
	result.Outcome = OutcomeSucceeded

	artifacts := h.extract(logger, a, res.Stdout)
	if moved, ok := h.relocate(logger, artifacts.ImagePath, a.ImageDestination()); ok {
		result.ImagePath = moved
		h.metrics.observeArtifact(a.Experiment, "image")
		fmt.Fprintf(h.out, "  Saved Image: %s\n", moved)
	}
	if moved, ok := h.relocate(logger, artifacts.GLBPath, a.GLBDestination()); ok {
		result.GLBPath = moved
		h.metrics.observeArtifact(a.Experiment, "glb")
		fmt.Fprintf(h.out, "  Saved GLB: %s\n", moved)
	}
	logger.Info("sweep attempt finished",
		logging.String(logging.FieldEventType, "sweep_attempt_complete"),
		logging.String("image_path", result.ImagePath),
		logging.String("glb_path", result.GLBPath),
	)
	return result
}

// extract prefers the run manifest and falls back to stdout markers.
func (h *Harness) extract(logger *slog.Logger, a Attempt, stdout []byte) pipeline.Artifacts {
	if a.Config.ManifestPath != "" {
		manifest, err := pipeline.ReadManifest(a.Config.ManifestPath)
		if err == nil {
			return manifest.Artifacts()
		}
		if !errors.Is(err, os.ErrNotExist) {
			logger.Debug("manifest unreadable, scanning output", logging.Error(err))
		}
	}
	artifacts, err := pipeline.ParseMarkers(bytes.NewReader(stdout))
	if err != nil {
		logger.Debug("marker scan incomplete", logging.Error(err))
	}
	return artifacts
}

// relocate moves src to dst when src exists. A missing artifact is not an error.
func (h *Harness) relocate(logger *slog.Logger, src, dst string) (string, bool) {
	if strings.TrimSpace(src) == "" || !fileutil.Exists(src) {
		return "", false
	}
	if err := fileutil.MoveFile(src, dst); err != nil {
		logging.WarnWithContext(logger, "artifact relocation failed", "artifact_move_failed",
			logging.String("source", src),
			logging.String("destination", dst),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions in the sweep root"),
			logging.String(logging.FieldImpact, "artifact left in the temp directory and removed at cleanup"),
		)
		return "", false
	}
	return dst, true
}

func (h *Harness) writeReports(root string, summary *Summary) {
	if err := WriteSummary(filepath.Join(root, SummaryFile), summary); err != nil {
		logging.WarnWithContext(h.logger, "sweep summary not written", "sweep_report_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "per-attempt results only available in logs"),
		)
	}
	if err := h.metrics.WriteTextfile(filepath.Join(root, MetricsFile)); err != nil {
		logging.WarnWithContext(h.logger, "sweep metrics not written", "sweep_report_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "metrics textfile stale"),
		)
	}
}

const outputTailBytes = 4096

func tail(b []byte) string {
	if len(b) > outputTailBytes {
		b = b[len(b)-outputTailBytes:]
	}
	return strings.TrimSpace(string(b))
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"meshforge/internal/jobs"
	"meshforge/internal/logging"
	"meshforge/internal/services"
)

// ErrAlreadyRunning reports that another manager holds the worker lock.
var ErrAlreadyRunning = errors.New("another meshforge worker is already running")

const stoppedMessage = "worker stopped"

// Run processes jobs until ctx is cancelled. With once set it returns after
// the queue is drained and in-flight jobs finish. Cancellation is a clean
// shutdown and returns nil.
func (m *Manager) Run(ctx context.Context, once bool) error {
	if m.runner == nil || m.store == nil {
		return services.Wrap(services.ErrConfiguration, "workflow", "start", "job store and runner required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(m.cfg.WorkerLockPath()), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	lock := flock.New(m.cfg.WorkerLockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() { _ = lock.Unlock() }()

	if !m.setRunning(true) {
		return ErrAlreadyRunning
	}
	defer m.setRunning(false)

	reset, err := m.store.ResetRunning(ctx)
	if err != nil {
		return fmt.Errorf("reset interrupted jobs: %w", err)
	}
	if reset > 0 {
		logging.WarnWithContext(m.logger, "requeued jobs interrupted by a previous worker", "jobs_requeued",
			logging.Int64("count", reset),
			logging.String(logging.FieldImpact, "interrupted jobs restart from the image stage"),
		)
	}

	m.logger.Info("worker started",
		logging.Int("workers", m.workers),
		logging.Bool("once", once),
		logging.String(logging.FieldEventType, "worker_start"),
	)

	var g errgroup.Group
	g.SetLimit(m.workers)
	// slots gate claiming so a job is only claimed once a worker is free.
	slots := make(chan struct{}, m.workers)
	loopErr := m.claimLoop(ctx, once, slots, &g)
	_ = g.Wait()

	m.logger.Info("worker stopped",
		logging.Bool("interrupted", ctx.Err() != nil),
		logging.String(logging.FieldEventType, "worker_stop"),
	)
	if loopErr != nil && !errors.Is(loopErr, context.Canceled) {
		return loopErr
	}
	return nil
}

func (m *Manager) claimLoop(ctx context.Context, once bool, slots chan struct{}, g *errgroup.Group) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case slots <- struct{}{}:
		}

		job, err := m.store.Claim(ctx)
		if err != nil {
			<-slots
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.setLastError(err)
			logging.ErrorWithContext(m.logger, "failed to claim next job", "job_claim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check job database access"),
			)
			if once {
				return err
			}
			if !m.wait(ctx, m.errorRetryInterval) {
				return ctx.Err()
			}
			continue
		}
		if job == nil {
			<-slots
			if once {
				return nil
			}
			if !m.wait(ctx, m.pollInterval) {
				return ctx.Err()
			}
			continue
		}

		m.track(job.ID, true)
		g.Go(func() error {
			defer func() {
				m.track(job.ID, false)
				<-slots
			}()
			m.process(ctx, job)
			return nil
		})
	}
}

func (m *Manager) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *Manager) process(ctx context.Context, job *jobs.Job) {
	jobCtx := services.WithJobID(ctx, job.ID)
	jobCtx = services.WithRequestID(jobCtx, uuid.NewString())
	logger := logging.WithContext(jobCtx, m.logger)

	outputDir := m.JobOutputDir(job.ID)
	started := time.Now()
	logger.Info("job started",
		logging.String("prompt", job.Prompt),
		logging.String("model", job.Model),
		logging.Int("attempt", job.Attempts),
		logging.String("output_dir", outputDir),
		logging.String(logging.FieldEventType, "job_start"),
	)

	outcome := jobs.Outcome{OutputDir: outputDir}
	runCfg, err := RunConfigFromJob(job, outputDir)
	if err == nil {
		manifest, runErr := m.runner.Run(jobCtx, runCfg)
		if manifest != nil {
			outcome.RunID = manifest.RunID
			outcome.ImagePath = manifest.ImagePath
			outcome.GLBPath = manifest.GLBPath
		}
		err = runErr
	}

	// Record results even when the worker is shutting down.
	storeCtx := context.WithoutCancel(jobCtx)
	if err != nil {
		message := err.Error()
		if ctx.Err() != nil {
			message = stoppedMessage
		}
		m.setLastError(err)
		if failErr := m.store.Fail(storeCtx, job.ID, message, outcome); failErr != nil {
			logging.ErrorWithContext(logger, "failed to record job failure", "job_update_failed",
				logging.Error(failErr),
				logging.String(logging.FieldErrorHint, "check job database access"),
			)
		}
		logging.WarnWithContext(logger, "job failed", "job_failed",
			logging.Error(err),
			logging.Duration("duration", time.Since(started)),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			logging.String(logging.FieldImpact, "no artifacts delivered for this job"),
		)
		m.setLastJob(storeCtx, job.ID)
		return
	}

	if completeErr := m.store.Complete(storeCtx, job.ID, outcome); completeErr != nil {
		m.setLastError(completeErr)
		logging.ErrorWithContext(logger, "failed to record job completion", "job_update_failed",
			logging.Error(completeErr),
			logging.String(logging.FieldErrorHint, "check job database access"),
		)
	}
	logger.Info("job succeeded",
		logging.String(logging.FieldRunID, outcome.RunID),
		logging.String("glb_path", outcome.GLBPath),
		logging.Duration("duration", time.Since(started)),
		logging.String(logging.FieldEventType, "job_complete"),
	)
	m.setLastJob(storeCtx, job.ID)
}

// JobOutputDir returns the working directory for job id.
func (m *Manager) JobOutputDir(id int64) string {
	return filepath.Join(m.cfg.Paths.JobsDir, strconv.FormatInt(id, 10))
}

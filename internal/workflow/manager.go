package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"meshforge/internal/config"
	"meshforge/internal/jobs"
	"meshforge/internal/logging"
	"meshforge/internal/pipeline"
)

// JobRunner executes one pipeline run. *pipeline.Controller satisfies it.
type JobRunner interface {
	Run(ctx context.Context, cfg pipeline.RunConfig) (*pipeline.Manifest, error)
}

// Manager coordinates job processing for a single state directory.
type Manager struct {
	cfg    *config.Config
	store  *jobs.Store
	runner JobRunner
	logger *slog.Logger

	workers            int
	pollInterval       time.Duration
	errorRetryInterval time.Duration

	mu      sync.RWMutex
	running bool
	active  map[int64]struct{}
	lastErr error
	lastJob *jobs.Job
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithWorkers overrides workflow.workers. Values below one are ignored.
func WithWorkers(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithPollInterval overrides workflow.queue_poll_interval.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *jobs.Store, runner JobRunner, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:                cfg,
		store:              store,
		runner:             runner,
		logger:             logging.NewComponentLogger(logger, "workflow"),
		workers:            max(cfg.Workflow.Workers, 1),
		pollInterval:       time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		active:             make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Workers returns the size of the worker pool.
func (m *Manager) Workers() int {
	return m.workers
}

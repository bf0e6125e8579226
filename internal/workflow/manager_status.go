package workflow

import (
	"context"
	"os"
	"sort"

	"github.com/gofrs/flock"

	"meshforge/internal/jobs"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool
	LockHeld   bool
	Workers    int
	ActiveJobs []int64
	LastError  string
	LastJob    *jobs.Job
	JobStats   map[jobs.Status]int
}

// Status returns the latest workflow information. LockHeld reports whether
// any manager, in this process or another, currently holds the worker lock.
func (m *Manager) Status(ctx context.Context) (StatusSummary, error) {
	m.mu.RLock()
	summary := StatusSummary{
		Running: m.running,
		Workers: m.workers,
		LastJob: m.lastJob,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	for id := range m.active {
		summary.ActiveJobs = append(summary.ActiveJobs, id)
	}
	m.mu.RUnlock()
	sort.Slice(summary.ActiveJobs, func(i, j int) bool { return summary.ActiveJobs[i] < summary.ActiveJobs[j] })

	summary.LockHeld = summary.Running || LockHeld(m.cfg.WorkerLockPath())
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return summary, err
	}
	summary.JobStats = stats
	return summary, nil
}

// LockHeld reports whether a worker currently holds the lock at path.
func LockHeld(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = lock.Unlock()
	}
	return !ok
}

func (m *Manager) setRunning(running bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if running && m.running {
		return false
	}
	m.running = running
	return true
}

func (m *Manager) track(id int64, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if active {
		m.active[id] = struct{}{}
		return
	}
	delete(m.active, id)
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(ctx context.Context, id int64) {
	job, err := m.store.Get(ctx, id)
	if err != nil || job == nil {
		return
	}
	m.mu.Lock()
	m.lastJob = job
	m.mu.Unlock()
}

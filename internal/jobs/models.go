package jobs

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{StatusQueued, StatusRunning, StatusSucceeded, StatusFailed}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a user-provided string into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range allStatuses {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}

// Terminal reports whether s ends processing.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Spec is the pipeline request carried by a job.
type Spec struct {
	Prompt          string
	Model           string
	Steps           int
	Guidance        float64
	Seed            *int64
	Width           int
	Height          int
	SkipMesh        bool
	SkipPostprocess bool
	MeshResolution  int
	BakeTexture     bool
	ValidateMesh    bool
}

// Outcome records what a finished job produced.
type Outcome struct {
	RunID     string
	OutputDir string
	ImagePath string
	GLBPath   string
}

// Job is a row of the job table.
type Job struct {
	ID int64
	Spec
	Status       Status
	RunID        string
	OutputDir    string
	ImagePath    string
	GLBPath      string
	ErrorMessage string
	Attempts     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// Duration returns how long the job ran, or zero when it has not finished.
func (j *Job) Duration() time.Duration {
	if j == nil || j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}

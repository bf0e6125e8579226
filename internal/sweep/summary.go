package sweep

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SummaryFile is the YAML report written at the sweep root.
const SummaryFile = "sweep_summary.yaml"

// Attempt outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// AttemptResult records what one grid point produced.
type AttemptResult struct {
	Experiment string `yaml:"experiment"`
	Point      string `yaml:"point"`
	Seed       int64  `yaml:"seed"`
	Outcome    string `yaml:"outcome"`
	ImagePath  string `yaml:"image_path,omitempty"`
	GLBPath    string `yaml:"glb_path,omitempty"`
	Error      string `yaml:"error,omitempty"`
	DurationMS int64  `yaml:"duration_ms"`
}

// Counts aggregates attempts of one experiment.
type Counts struct {
	Attempts  int
	Succeeded int
	Failed    int
	Images    int
	GLBs      int
}

// Summary is the sweep report.
type Summary struct {
	Root          string          `yaml:"root"`
	StartedAt     time.Time       `yaml:"started_at"`
	FinishedAt    time.Time       `yaml:"finished_at"`
	Interrupted   bool            `yaml:"interrupted,omitempty"`
	Attempts      []AttemptResult `yaml:"attempts"`
	CleanedDirs   int             `yaml:"cleaned_dirs"`
	CleanupErrors []string        `yaml:"cleanup_errors,omitempty"`
}

// Counts groups attempts by experiment.
func (s *Summary) Counts() map[string]Counts {
	out := make(map[string]Counts)
	for _, a := range s.Attempts {
		c := out[a.Experiment]
		c.Attempts++
		if a.Outcome == OutcomeSucceeded {
			c.Succeeded++
		} else {
			c.Failed++
		}
		if a.ImagePath != "" {
			c.Images++
		}
		if a.GLBPath != "" {
			c.GLBs++
		}
		out[a.Experiment] = c
	}
	return out
}

// Failed returns the number of failed attempts.
func (s *Summary) Failed() int {
	n := 0
	for _, a := range s.Attempts {
		if a.Outcome != OutcomeSucceeded {
			n++
		}
	}
	return n
}

// WriteSummary stores s as YAML at path.
func WriteSummary(path string, s *Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode sweep summary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create summary directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sweep summary: %w", err)
	}
	return nil
}

// ReadSummary loads a summary written by WriteSummary.
func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode sweep summary: %w", err)
	}
	return &s, nil
}

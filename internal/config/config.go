package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Command is an argv prefix for an external collaborator. The first element is
// the executable; the rest are fixed leading arguments.
type Command []string

// Binary returns the executable name, or "" when the command is empty.
func (c Command) Binary() string {
	if len(c) == 0 {
		return ""
	}
	return c[0]
}

// Args returns a copy of the fixed leading arguments with extra appended.
func (c Command) Args(extra ...string) []string {
	if len(c) == 0 {
		return append([]string(nil), extra...)
	}
	args := make([]string, 0, len(c)-1+len(extra))
	args = append(args, c[1:]...)
	return append(args, extra...)
}

// String renders the command for logs.
func (c Command) String() string {
	return strings.Join(c, " ")
}

// Paths contains directory configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	StateDir  string `toml:"state_dir"`
	JobsDir   string `toml:"jobs_dir"`
	LogDir    string `toml:"log_dir"`
}

// Backend configures the image generation command for one model.
type Backend struct {
	Command Command `toml:"command"`
}

// Mesh configures the reconstruction, cleanup, and conversion commands.
type Mesh struct {
	ReconstructCommand Command `toml:"reconstruct_command"`
	CleanupCommand     Command `toml:"cleanup_command"`
	ConvertCommand     Command `toml:"convert_command"`
	Resolution         int     `toml:"resolution"`
	ForegroundRatio    float64 `toml:"foreground_ratio"`
	TextureResolution  int     `toml:"texture_resolution"`
}

// Validation configures the mesh validator command.
type Validation struct {
	Command Command `toml:"command"`
}

// Collaborators holds settings shared by every external command.
type Collaborators struct {
	// TimeoutSeconds bounds each collaborator invocation. Zero disables the limit.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Retry configures the collaborator retry policy. MaxAttempts of 1 disables retries.
type Retry struct {
	MaxAttempts    int     `toml:"max_attempts"`
	InitialDelayMS int     `toml:"initial_delay_ms"`
	MaxDelayMS     int     `toml:"max_delay_ms"`
	Multiplier     float64 `toml:"multiplier"`
}

// Workflow contains configuration for the job worker pool.
type Workflow struct {
	Workers            int `toml:"workers"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Delivery configures artifact upload to S3-compatible object storage.
type Delivery struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for meshforge.
//
// Configuration sections by subsystem:
//   - Paths: output, state, job, and log directories
//   - Backends: image generation command per model
//   - Mesh: reconstruction, cleanup, and conversion commands
//   - Validation: mesh validator command
//   - Collaborators: timeouts shared by every external command
//   - Retry: collaborator retry policy
//   - Workflow: worker pool size and polling intervals
//   - Delivery: object storage upload of final artifacts
//   - Logging: log format and level
type Config struct {
	Paths         Paths              `toml:"paths"`
	Backends      map[string]Backend `toml:"backends"`
	Mesh          Mesh               `toml:"mesh"`
	Validation    Validation         `toml:"validation"`
	Collaborators Collaborators      `toml:"collaborators"`
	Retry         Retry              `toml:"retry"`
	Workflow      Workflow           `toml:"workflow"`
	Delivery      Delivery           `toml:"delivery"`
	Logging       Logging            `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state, job, and log directories. The output
// directory is created lazily by the pipeline.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.JobsDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobsDatabasePath returns the SQLite database that backs the job table.
func (c *Config) JobsDatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// WorkerLockPath returns the lock file guarding a single worker manager.
func (c *Config) WorkerLockPath() string {
	return filepath.Join(c.Paths.StateDir, "worker.lock")
}

// CollaboratorTimeout returns the per-invocation limit, or zero for none.
func (c *Config) CollaboratorTimeout() time.Duration {
	if c.Collaborators.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Collaborators.TimeoutSeconds) * time.Second
}

// BackendCommand returns the configured command for a model identifier.
func (c *Config) BackendCommand(model string) (Command, bool) {
	backend, ok := c.Backends[model]
	if !ok || len(backend.Command) == 0 {
		return nil, false
	}
	return backend.Command, true
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

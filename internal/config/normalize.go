package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBackends()
	c.normalizeMesh()
	c.normalizeRetry()
	c.normalizeDelivery()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("MESHFORGE_OUTPUT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.OutputDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if strings.TrimSpace(c.Paths.JobsDir) == "" {
		c.Paths.JobsDir = defaultJobsDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}

	var err error
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.JobsDir, err = expandPath(c.Paths.JobsDir); err != nil {
		return fmt.Errorf("paths.jobs_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBackends() {
	normalized := make(map[string]Backend, len(c.Backends))
	for name, backend := range c.Backends {
		key := strings.ToLower(strings.TrimSpace(name))
		backend.Command = trimCommand(backend.Command)
		normalized[key] = backend
	}
	c.Backends = normalized
}

func (c *Config) normalizeMesh() {
	c.Mesh.ReconstructCommand = trimCommand(c.Mesh.ReconstructCommand)
	c.Mesh.CleanupCommand = trimCommand(c.Mesh.CleanupCommand)
	c.Mesh.ConvertCommand = trimCommand(c.Mesh.ConvertCommand)
	c.Validation.Command = trimCommand(c.Validation.Command)
}

func (c *Config) normalizeRetry() {
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = defaultRetryMaxAttempts
	}
	if c.Retry.Multiplier <= 0 {
		c.Retry.Multiplier = defaultRetryMultiplier
	}
}

func (c *Config) normalizeDelivery() {
	c.Delivery.Endpoint = strings.TrimSpace(c.Delivery.Endpoint)
	c.Delivery.Bucket = strings.TrimSpace(c.Delivery.Bucket)
	c.Delivery.Region = strings.TrimSpace(c.Delivery.Region)
	c.Delivery.Prefix = strings.Trim(strings.TrimSpace(c.Delivery.Prefix), "/")
	c.Delivery.AccessKey = strings.TrimSpace(c.Delivery.AccessKey)
	if c.Delivery.AccessKey == "" {
		if value, ok := os.LookupEnv("MESHFORGE_S3_ACCESS_KEY"); ok {
			c.Delivery.AccessKey = strings.TrimSpace(value)
		}
	}
	c.Delivery.SecretKey = strings.TrimSpace(c.Delivery.SecretKey)
	if c.Delivery.SecretKey == "" {
		if value, ok := os.LookupEnv("MESHFORGE_S3_SECRET_KEY"); ok {
			c.Delivery.SecretKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func trimCommand(cmd Command) Command {
	if len(cmd) == 0 {
		return nil
	}
	out := make(Command, 0, len(cmd))
	for _, part := range cmd {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

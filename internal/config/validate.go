package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackends(); err != nil {
		return err
	}
	if err := c.validateMesh(); err != nil {
		return err
	}
	if err := c.validateCollaborators(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateBackends() error {
	if len(c.Backends) == 0 {
		return errors.New("backends must define at least one model command")
	}
	names := make([]string, 0, len(c.Backends))
	for name := range c.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == "" {
			return errors.New("backends entries must be named")
		}
		if len(c.Backends[name].Command) == 0 {
			return fmt.Errorf("backends.%s.command must not be empty", name)
		}
	}
	return nil
}

func (c *Config) validateMesh() error {
	if len(c.Mesh.ReconstructCommand) == 0 {
		return errors.New("mesh.reconstruct_command must not be empty")
	}
	if len(c.Mesh.CleanupCommand) == 0 {
		return errors.New("mesh.cleanup_command must not be empty")
	}
	if len(c.Mesh.ConvertCommand) == 0 {
		return errors.New("mesh.convert_command must not be empty")
	}
	if len(c.Validation.Command) == 0 {
		return errors.New("validation.command must not be empty")
	}
	if err := ensurePositiveMap(map[string]int{
		"mesh.resolution":         c.Mesh.Resolution,
		"mesh.texture_resolution": c.Mesh.TextureResolution,
	}); err != nil {
		return err
	}
	if c.Mesh.ForegroundRatio <= 0 || c.Mesh.ForegroundRatio > 1 {
		return errors.New("mesh.foreground_ratio must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateCollaborators() error {
	if c.Collaborators.TimeoutSeconds < 0 {
		return errors.New("collaborators.timeout_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.InitialDelayMS < 0 {
		return errors.New("retry.initial_delay_ms must be >= 0")
	}
	if c.Retry.MaxDelayMS < c.Retry.InitialDelayMS {
		return errors.New("retry.max_delay_ms must be >= retry.initial_delay_ms")
	}
	if c.Retry.Multiplier < 1 {
		return errors.New("retry.multiplier must be >= 1")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.workers":              c.Workflow.Workers,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	})
}

func (c *Config) validateDelivery() error {
	if !c.Delivery.Enabled {
		return nil
	}
	if c.Delivery.Endpoint == "" {
		return errors.New("delivery.endpoint must be set when delivery.enabled is true")
	}
	if c.Delivery.Bucket == "" {
		return errors.New("delivery.bucket must be set when delivery.enabled is true")
	}
	if c.Delivery.AccessKey == "" || c.Delivery.SecretKey == "" {
		return errors.New("delivery.access_key and delivery.secret_key must be set when delivery.enabled is true (or set MESHFORGE_S3_ACCESS_KEY and MESHFORGE_S3_SECRET_KEY)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

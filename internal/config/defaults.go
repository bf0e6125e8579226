package config

const (
	defaultConfigPath          = "~/.config/meshforge/config.toml"
	projectConfigName          = "meshforge.toml"
	defaultOutputDir           = "outputs"
	defaultStateDir            = "~/.local/share/meshforge"
	defaultJobsDir             = "~/.local/share/meshforge/jobs"
	defaultLogDir              = "~/.local/share/meshforge/logs"
	defaultMeshResolution      = 512
	defaultForegroundRatio     = 0.9
	defaultTextureResolution   = 4096
	defaultRetryMaxAttempts    = 1
	defaultRetryInitialDelayMS = 1000
	defaultRetryMaxDelayMS     = 30000
	defaultRetryMultiplier     = 2.0
	defaultWorkers             = 1
	defaultQueuePollInterval   = 5
	defaultErrorRetryInterval  = 10
	defaultDeliveryPrefix      = "runs"
	defaultDeliveryRegion      = "us-east-1"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
			JobsDir:   defaultJobsDir,
			LogDir:    defaultLogDir,
		},
		Backends: map[string]Backend{
			"baseline": {Command: Command{"python3", "src/generate_image.py"}},
			"fast":     {Command: Command{"python3", "src/generate_image_turbo.py"}},
			"high-res": {Command: Command{"python3", "src/generate_image_pixart.py"}},
		},
		Mesh: Mesh{
			ReconstructCommand: Command{"python3", "q9_triposr/run.py"},
			CleanupCommand:     Command{"python3", "src/postprocess.py", "clean"},
			ConvertCommand:     Command{"python3", "src/postprocess.py", "convert"},
			Resolution:         defaultMeshResolution,
			ForegroundRatio:    defaultForegroundRatio,
			TextureResolution:  defaultTextureResolution,
		},
		Validation: Validation{
			Command: Command{"python3", "src/validation.py"},
		},
		Retry: Retry{
			MaxAttempts:    defaultRetryMaxAttempts,
			InitialDelayMS: defaultRetryInitialDelayMS,
			MaxDelayMS:     defaultRetryMaxDelayMS,
			Multiplier:     defaultRetryMultiplier,
		},
		Workflow: Workflow{
			Workers:            defaultWorkers,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Delivery: Delivery{
			Region: defaultDeliveryRegion,
			Prefix: defaultDeliveryPrefix,
			UseSSL: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

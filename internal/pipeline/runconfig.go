package pipeline

import (
	"fmt"
	"strings"

	"meshforge/internal/backend"
	"meshforge/internal/services"
)

// Defaults applied by DefaultRunConfig.
const (
	DefaultSteps          = 25
	DefaultGuidance       = 7.5
	DefaultMeshResolution = 512
	DefaultOutputDir      = "outputs"
)

// RunConfig is the immutable parameter set of one pipeline run. Derive
// variants with the With helpers; they return modified copies.
type RunConfig struct {
	Prompt          string
	Model           backend.Model
	Steps           int
	Guidance        float64
	Seed            *int64
	Width           int
	Height          int
	OutputDir       string
	SkipImage       bool
	InputImage      string
	SkipMesh        bool
	SkipPostprocess bool
	MeshResolution  int
	BakeTexture     bool
	// ValidateMesh runs the validator on the final mesh.
	ValidateMesh bool
	ManifestPath string
}

// DefaultRunConfig returns the command-line defaults.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Model:          backend.ModelBaseline,
		Steps:          DefaultSteps,
		Guidance:       DefaultGuidance,
		OutputDir:      DefaultOutputDir,
		MeshResolution: DefaultMeshResolution,
		BakeTexture:    true,
	}
}

// NewRunConfig fills unset mesh resolution and validates cfg.
func NewRunConfig(cfg RunConfig) (RunConfig, error) {
	if cfg.MeshResolution == 0 {
		cfg.MeshResolution = DefaultMeshResolution
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Validate reports flag combinations that cannot run. It never touches the
// filesystem or any collaborator.
func (c RunConfig) Validate() error {
	invalid := func(msg string) error {
		return services.Wrap(services.ErrConfiguration, "config", "validate run", msg, nil)
	}
	if c.SkipImage && strings.TrimSpace(c.InputImage) == "" {
		return invalid("--skip-image requires --input-image")
	}
	if !c.SkipImage && strings.TrimSpace(c.Prompt) == "" {
		return invalid("prompt is required")
	}
	if _, err := backend.ParseModel(string(c.Model)); err != nil {
		return err
	}
	if c.Steps <= 0 {
		return invalid(fmt.Sprintf("steps must be positive (got %d)", c.Steps))
	}
	if c.Guidance < 0 {
		return invalid(fmt.Sprintf("guidance must be >= 0 (got %g)", c.Guidance))
	}
	if c.Width < 0 || c.Height < 0 {
		return invalid("width and height must be >= 0")
	}
	if c.MeshResolution <= 0 {
		return invalid(fmt.Sprintf("mesh resolution must be positive (got %d)", c.MeshResolution))
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return invalid("output directory is required")
	}
	return nil
}

// SeedValue returns the seed and whether one is set.
func (c RunConfig) SeedValue() (int64, bool) {
	if c.Seed == nil {
		return 0, false
	}
	return *c.Seed, true
}

func (c RunConfig) WithPrompt(prompt string) RunConfig {
	c.Prompt = prompt
	return c
}

func (c RunConfig) WithModel(m backend.Model) RunConfig {
	c.Model = m
	return c
}

func (c RunConfig) WithSteps(steps int) RunConfig {
	c.Steps = steps
	return c
}

func (c RunConfig) WithGuidance(guidance float64) RunConfig {
	c.Guidance = guidance
	return c
}

func (c RunConfig) WithSeed(seed int64) RunConfig {
	c.Seed = &seed
	return c
}

func (c RunConfig) WithResolution(width, height int) RunConfig {
	c.Width, c.Height = width, height
	return c
}

func (c RunConfig) WithOutputDir(dir string) RunConfig {
	c.OutputDir = dir
	return c
}

func (c RunConfig) WithManifestPath(path string) RunConfig {
	c.ManifestPath = path
	return c
}

func (c RunConfig) WithSkipMesh(skip bool) RunConfig {
	c.SkipMesh = skip
	return c
}

func (c RunConfig) WithMeshResolution(resolution int) RunConfig {
	c.MeshResolution = resolution
	return c
}

package main

import (
	"strings"

	"github.com/spf13/cobra"

	"meshforge/internal/backend"
	"meshforge/internal/pipeline"
	"meshforge/internal/services"
)

// runFlags are the pipeline parameters shared by "run" and "queue add".
type runFlags struct {
	prompt          string
	model           string
	steps           int
	guidance        float64
	seed            int64
	width           int
	height          int
	skipMesh        bool
	skipPostprocess bool
	meshResolution  int
	noBakeTexture   bool
	validate        bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	defaults := pipeline.DefaultRunConfig()
	flags := cmd.Flags()
	flags.StringVar(&f.prompt, "prompt", "", "Text prompt for image generation")
	flags.StringVar(&f.model, "model", string(defaults.Model), "Image model (baseline, fast, high-res)")
	flags.IntVar(&f.steps, "steps", defaults.Steps, "Number of inference steps")
	flags.Float64Var(&f.guidance, "guidance", defaults.Guidance, "Classifier-free guidance scale")
	flags.Int64Var(&f.seed, "seed", 0, "Random seed (unset for nondeterministic)")
	flags.IntVar(&f.width, "width", 0, "Image width (model default when unset)")
	flags.IntVar(&f.height, "height", 0, "Image height (model default when unset)")
	flags.BoolVar(&f.skipMesh, "skip-mesh", false, "Stop after image generation")
	flags.BoolVar(&f.skipPostprocess, "skip-postprocess", false, "Stop after mesh reconstruction")
	flags.IntVar(&f.meshResolution, "mesh-resolution", defaults.MeshResolution, "Marching cubes resolution")
	flags.BoolVar(&f.noBakeTexture, "no-bake-texture", false, "Use vertex colors instead of a baked texture")
	flags.BoolVar(&f.validate, "validate", false, "Validate the final mesh")
	_ = cmd.MarkFlagRequired("prompt")
}

// runConfig assembles the run configuration; it is validated by the caller.
func (f *runFlags) runConfig(cmd *cobra.Command) (pipeline.RunConfig, error) {
	if strings.TrimSpace(f.prompt) == "" {
		return pipeline.RunConfig{}, services.Wrap(services.ErrConfiguration, "config", "parse flags", "--prompt must not be blank", nil)
	}
	model, err := backend.ParseModel(f.model)
	if err != nil {
		return pipeline.RunConfig{}, err
	}
	cfg := pipeline.DefaultRunConfig().
		WithPrompt(f.prompt).
		WithModel(model).
		WithSteps(f.steps).
		WithGuidance(f.guidance).
		WithResolution(f.width, f.height).
		WithSkipMesh(f.skipMesh).
		WithMeshResolution(f.meshResolution)
	if cmd.Flags().Changed("seed") {
		cfg = cfg.WithSeed(f.seed)
	}
	cfg.SkipPostprocess = f.skipPostprocess
	cfg.BakeTexture = !f.noBakeTexture
	cfg.ValidateMesh = f.validate
	return cfg, nil
}

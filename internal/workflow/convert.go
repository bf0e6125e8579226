package workflow

import (
	"path/filepath"

	"meshforge/internal/backend"
	"meshforge/internal/jobs"
	"meshforge/internal/pipeline"
)

// ManifestFile is the manifest name inside each job's output directory.
const ManifestFile = "manifest.json"

// SpecFromRunConfig captures the queueable parameters of cfg. Output paths
// are assigned by the worker, and image-less runs cannot be queued.
func SpecFromRunConfig(cfg pipeline.RunConfig) jobs.Spec {
	spec := jobs.Spec{
		Prompt:          cfg.Prompt,
		Model:           string(cfg.Model),
		Steps:           cfg.Steps,
		Guidance:        cfg.Guidance,
		Width:           cfg.Width,
		Height:          cfg.Height,
		SkipMesh:        cfg.SkipMesh,
		SkipPostprocess: cfg.SkipPostprocess,
		MeshResolution:  cfg.MeshResolution,
		BakeTexture:     cfg.BakeTexture,
		ValidateMesh:    cfg.ValidateMesh,
	}
	if seed, ok := cfg.SeedValue(); ok {
		spec.Seed = &seed
	}
	return spec
}

// RunConfigFromJob rebuilds the run configuration of job with outputs rooted
// at outputDir.
func RunConfigFromJob(job *jobs.Job, outputDir string) (pipeline.RunConfig, error) {
	model, err := backend.ParseModel(job.Model)
	if err != nil {
		return pipeline.RunConfig{}, err
	}
	cfg := pipeline.DefaultRunConfig().
		WithPrompt(job.Prompt).
		WithModel(model).
		WithSteps(job.Steps).
		WithGuidance(job.Guidance).
		WithResolution(job.Width, job.Height).
		WithOutputDir(outputDir).
		WithManifestPath(filepath.Join(outputDir, ManifestFile)).
		WithSkipMesh(job.SkipMesh).
		WithMeshResolution(job.MeshResolution)
	if job.Seed != nil {
		cfg = cfg.WithSeed(*job.Seed)
	}
	cfg.SkipPostprocess = job.SkipPostprocess
	cfg.BakeTexture = job.BakeTexture
	cfg.ValidateMesh = job.ValidateMesh
	return pipeline.NewRunConfig(cfg)
}

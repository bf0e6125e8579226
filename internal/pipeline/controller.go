package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"meshforge/internal/backend"
	"meshforge/internal/layout"
	"meshforge/internal/logging"
	"meshforge/internal/mesh"
	"meshforge/internal/services"
	"meshforge/internal/stageexec"
	"meshforge/internal/validation"
)

// ImageGenerator dispatches an image request to the backend for model.
type ImageGenerator interface {
	Generate(ctx context.Context, model backend.Model, req backend.Request) (string, error)
}

// Inspector validates a finished mesh.
type Inspector interface {
	Inspect(ctx context.Context, path string) (validation.Report, error)
}

// Publisher uploads finished artifacts and returns their remote locations.
type Publisher interface {
	Publish(ctx context.Context, runID string, paths ...string) ([]string, error)
}

// Collaborators bundles the external stages. Inspector and Publisher are optional.
type Collaborators struct {
	Images        ImageGenerator
	Reconstructor mesh.Reconstructor
	Cleaner       mesh.Cleaner
	Converter     mesh.Converter
	Inspector     Inspector
	Publisher     Publisher
}

// Controller sequences the stages of one run.
type Controller struct {
	collab        Collaborators
	retry         RetryPolicy
	logger        *slog.Logger
	out           io.Writer
	now           func() time.Time
	disambiguator func() string
}

// Option configures a Controller.
type Option func(*Controller)

// WithRetryPolicy replaces the default NoRetry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Controller) {
		if p != nil {
			c.retry = p
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOutput sets the writer receiving artifact markers (stdout by default).
func WithOutput(w io.Writer) Option {
	return func(c *Controller) {
		c.out = w
	}
}

// WithClock overrides the time source used for run identifiers.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithDisambiguator overrides the run identifier suffix generator.
func WithDisambiguator(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.disambiguator = fn
		}
	}
}

// NewController builds a Controller.
func NewController(collab Collaborators, opts ...Option) *Controller {
	c := &Controller{
		collab:        collab,
		retry:         NoRetry{},
		logger:        logging.NewNop(),
		out:           os.Stdout,
		now:           time.Now,
		disambiguator: layout.NewDisambiguator,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "pipeline")
	return c
}

type run struct {
	cfg      RunConfig
	layout   layout.Layout
	manifest *Manifest
}

// Run executes cfg and returns the manifest. On failure the manifest records
// the failing stage and is returned together with the error.
func (c *Controller) Run(ctx context.Context, cfg RunConfig) (*Manifest, error) {
	manifest := &Manifest{
		Model:          string(cfg.Model),
		Prompt:         cfg.Prompt,
		Seed:           cfg.Seed,
		Steps:          cfg.Steps,
		Guidance:       cfg.Guidance,
		MeshResolution: cfg.MeshResolution,
	}
	if err := cfg.Validate(); err != nil {
		manifest.Status = StateFailed
		manifest.Error = err.Error()
		c.persist(ctx, cfg, manifest)
		return manifest, err
	}
	if err := c.checkCollaborators(cfg); err != nil {
		manifest.Status = StateFailed
		manifest.Error = err.Error()
		c.persist(ctx, cfg, manifest)
		return manifest, err
	}

	res := backend.ResolveResolution(cfg.Model, cfg.Width, cfg.Height)
	manifest.Width, manifest.Height = res.Width, res.Height
	manifest.RunID = layout.NewIdentity(c.now(), string(cfg.Model), c.disambiguator()).String()

	ctx = services.WithRunID(ctx, manifest.RunID)
	r := &run{cfg: cfg, layout: layout.New(cfg.OutputDir), manifest: manifest}
	logger := logging.WithContext(ctx, c.logger)
	logger.Info("run started",
		logging.String("model", manifest.Model),
		logging.String("output_dir", cfg.OutputDir),
		logging.String(logging.FieldEventType, "run_start"),
	)

	state := StateImage
	for !state.Terminal() {
		next, err := c.step(ctx, r, state)
		if err != nil {
			manifest.Status = StateFailed
			manifest.FailedStage = state
			manifest.Error = err.Error()
			c.persist(ctx, cfg, manifest)
			return manifest, err
		}
		state = next
	}
	if state == StateSkipped {
		c.skipRemaining(manifest)
	}
	manifest.Status = state
	c.persist(ctx, cfg, manifest)

	logger.Info("run finished",
		logging.String("status", string(state)),
		logging.String("image_path", manifest.ImagePath),
		logging.String("glb_path", manifest.GLBPath),
		logging.String(logging.FieldEventType, "run_complete"),
	)
	return manifest, nil
}

func (c *Controller) checkCollaborators(cfg RunConfig) error {
	missing := func(name string) error {
		return services.Wrap(services.ErrConfiguration, "config", "wire collaborators", name+" collaborator not configured", nil)
	}
	if !cfg.SkipImage && c.collab.Images == nil {
		return missing("image")
	}
	if cfg.SkipMesh {
		return nil
	}
	if c.collab.Reconstructor == nil {
		return missing("reconstruction")
	}
	if !cfg.SkipPostprocess && (c.collab.Cleaner == nil || c.collab.Converter == nil) {
		return missing("postprocess")
	}
	if cfg.ValidateMesh && c.collab.Inspector == nil {
		return missing("validation")
	}
	return nil
}

func (c *Controller) step(ctx context.Context, r *run, state State) (State, error) {
	switch state {
	case StateImage:
		if r.cfg.SkipImage {
			if _, err := os.Stat(r.cfg.InputImage); err != nil {
				return StateFailed, services.Wrap(services.ErrNotFound, string(StateImage), "use input image", r.cfg.InputImage, err)
			}
			r.manifest.ImagePath = r.cfg.InputImage
			c.record(r.manifest, StateImage, StageSkipped, 0, nil, r.cfg.InputImage)
		} else if err := c.runStage(ctx, r, StateImage, c.image); err != nil {
			return StateFailed, err
		}
		if r.cfg.SkipMesh {
			return StateSkipped, nil
		}
		return StateMesh, nil
	case StateMesh:
		if err := c.runStage(ctx, r, StateMesh, c.mesh); err != nil {
			return StateFailed, err
		}
		if r.cfg.SkipPostprocess {
			return StateSkipped, nil
		}
		return StatePostprocess, nil
	case StatePostprocess:
		if err := c.runStage(ctx, r, StatePostprocess, c.postprocess); err != nil {
			return StateFailed, err
		}
		return StateValidate, nil
	case StateValidate:
		if !r.cfg.ValidateMesh {
			c.record(r.manifest, StateValidate, StageSkipped, 0, nil)
			return StateDeliver, nil
		}
		if err := c.runStage(ctx, r, StateValidate, c.validate); err != nil {
			return StateFailed, err
		}
		return StateDeliver, nil
	case StateDeliver:
		if c.collab.Publisher == nil {
			c.record(r.manifest, StateDeliver, StageSkipped, 0, nil)
			return StateDone, nil
		}
		if err := c.runStage(ctx, r, StateDeliver, c.deliver); err != nil {
			return StateFailed, err
		}
		return StateDone, nil
	default:
		return StateFailed, fmt.Errorf("unexpected pipeline state %q", state)
	}
}

type stageFunc func(ctx context.Context, r *run) ([]string, error)

func (c *Controller) runStage(ctx context.Context, r *run, state State, fn stageFunc) error {
	var artifacts []string
	outcome, err := stageexec.Run(ctx, stageexec.Options{
		Logger: c.logger,
		Stage:  string(state),
		Action: func(stageCtx context.Context) error {
			var err error
			artifacts, err = fn(stageCtx, r)
			return err
		},
	})
	c.record(r.manifest, state, statusFor(err), outcome.Duration, err, artifacts...)
	return err
}

func statusFor(err error) StageStatus {
	if err != nil {
		return StageFailed
	}
	return StageCompleted
}

func (c *Controller) image(ctx context.Context, r *run) ([]string, error) {
	output := r.layout.ImagePath(r.manifest.RunID)
	req := backend.Request{
		Prompt:     r.cfg.Prompt,
		Seed:       r.cfg.Seed,
		Steps:      r.cfg.Steps,
		Guidance:   r.cfg.Guidance,
		Width:      r.manifest.Width,
		Height:     r.manifest.Height,
		OutputPath: output,
	}
	var path string
	err := c.retry.Do(ctx, "generate image", func(ctx context.Context) error {
		var err error
		path, err = c.collab.Images.Generate(ctx, r.cfg.Model, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.manifest.ImagePath = path
	announce(c.out, ImageMarker, path)
	return []string{path}, nil
}

func (c *Controller) mesh(ctx context.Context, r *run) ([]string, error) {
	meshID := layout.MeshID(r.manifest.ImagePath)
	req := mesh.ReconstructRequest{
		ImagePath:   r.manifest.ImagePath,
		OutputOBJ:   r.layout.RawMeshPath(meshID),
		BakeTexture: r.cfg.BakeTexture,
		Resolution:  r.cfg.MeshResolution,
	}
	var path string
	err := c.retry.Do(ctx, "reconstruct mesh", func(ctx context.Context) error {
		var err error
		path, err = c.collab.Reconstructor.Reconstruct(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.manifest.RawMeshPath = path
	return []string{path}, nil
}

func (c *Controller) postprocess(ctx context.Context, r *run) ([]string, error) {
	meshID := layout.MeshIDFromRawMesh(r.manifest.RawMeshPath)
	var cleaned string
	err := c.retry.Do(ctx, "clean mesh", func(ctx context.Context) error {
		var err error
		cleaned, err = c.collab.Cleaner.Clean(ctx, r.manifest.RawMeshPath, r.layout.CleanedMeshPath(meshID))
		return err
	})
	if err != nil {
		return nil, err
	}
	r.manifest.CleanedMeshPath = cleaned

	var glb string
	err = c.retry.Do(ctx, "convert mesh", func(ctx context.Context) error {
		var err error
		glb, err = c.collab.Converter.Convert(ctx, cleaned, r.layout.GLBPath(meshID))
		return err
	})
	if err != nil {
		return []string{cleaned}, err
	}
	r.manifest.GLBPath = glb
	announce(c.out, GLBMarker, glb)
	return []string{cleaned, glb}, nil
}

func (c *Controller) validate(ctx context.Context, r *run) ([]string, error) {
	var report validation.Report
	err := c.retry.Do(ctx, "validate mesh", func(ctx context.Context) error {
		var err error
		report, err = c.collab.Inspector.Inspect(ctx, r.manifest.GLBPath)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.manifest.Validation = &report
	if report.Empty() {
		return nil, services.Wrap(services.ErrValidation, string(StateValidate), "inspect", "mesh has no geometry", nil)
	}
	return []string{r.manifest.GLBPath}, nil
}

func (c *Controller) deliver(ctx context.Context, r *run) ([]string, error) {
	var locations []string
	err := c.retry.Do(ctx, "deliver artifacts", func(ctx context.Context) error {
		var err error
		locations, err = c.collab.Publisher.Publish(ctx, r.manifest.RunID, r.manifest.ImagePath, r.manifest.GLBPath)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.manifest.Delivered = locations
	return locations, nil
}

func (c *Controller) record(m *Manifest, state State, status StageStatus, d time.Duration, err error, artifacts ...string) {
	result := StageResult{Stage: state, Status: status, Artifacts: artifacts, DurationMS: d.Milliseconds()}
	if err != nil {
		result.Error = err.Error()
	}
	m.Stages = append(m.Stages, result)
}

func (c *Controller) skipRemaining(m *Manifest) {
	seen := make(map[State]bool, len(m.Stages))
	for _, s := range m.Stages {
		seen[s.Stage] = true
	}
	for _, state := range stageOrder {
		if !seen[state] {
			c.record(m, state, StageSkipped, 0, nil)
		}
	}
}

func (c *Controller) persist(ctx context.Context, cfg RunConfig, m *Manifest) {
	if cfg.ManifestPath == "" {
		return
	}
	if err := WriteManifest(cfg.ManifestPath, m); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "manifest write failed", "manifest_write_failed",
			logging.String("path", cfg.ManifestPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the manifest directory"),
			logging.String(logging.FieldImpact, "callers fall back to stdout markers"),
		)
	}
}

// IsConfigurationError reports whether err was raised before any collaborator ran.
func IsConfigurationError(err error) bool {
	return errors.Is(err, services.ErrConfiguration)
}

package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"

	"meshforge/internal/backend"
	"meshforge/internal/layout"
	"meshforge/internal/mesh"
	"meshforge/internal/pipeline"
	"meshforge/internal/services"
	"meshforge/internal/validation"
)

type fakeCollaborators struct {
	calls      []string
	imageReq   backend.Request
	imageModel backend.Model
	meshReq    mesh.ReconstructRequest
	failOn     string
	failErr    error
	report     validation.Report
}

func (f *fakeCollaborators) fail(name string) error {
	f.calls = append(f.calls, name)
	if f.failOn == name {
		if f.failErr != nil {
			return f.failErr
		}
		return services.Wrap(services.ErrExternalTool, name, "run", "exit status 1", nil)
	}
	return nil
}

func (f *fakeCollaborators) Generate(_ context.Context, m backend.Model, req backend.Request) (string, error) {
	f.imageModel, f.imageReq = m, req
	if err := f.fail("image"); err != nil {
		return "", err
	}
	return req.OutputPath, nil
}

func (f *fakeCollaborators) Reconstruct(_ context.Context, req mesh.ReconstructRequest) (string, error) {
	f.meshReq = req
	if err := f.fail("reconstruct"); err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(req.OutputOBJ), layout.NestedOutputDir, layout.RawMeshFile), nil
}

func (f *fakeCollaborators) Clean(_ context.Context, _, out string) (string, error) {
	if err := f.fail("clean"); err != nil {
		return "", err
	}
	return out, nil
}

func (f *fakeCollaborators) Convert(_ context.Context, _, out string) (string, error) {
	if err := f.fail("convert"); err != nil {
		return "", err
	}
	return out, nil
}

func (f *fakeCollaborators) Inspect(_ context.Context, path string) (validation.Report, error) {
	if err := f.fail("validate"); err != nil {
		return validation.Report{}, err
	}
	r := f.report
	r.Filename = filepath.Base(path)
	return r, nil
}

func (f *fakeCollaborators) Publish(_ context.Context, runID string, paths ...string) ([]string, error) {
	if err := f.fail("deliver"); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, "s3://bucket/"+runID+"/"+filepath.Base(p))
	}
	return out, nil
}

func (f *fakeCollaborators) collaborators() pipeline.Collaborators {
	return pipeline.Collaborators{
		Images:        f,
		Reconstructor: f,
		Cleaner:       f,
		Converter:     f,
		Inspector:     f,
	}
}

var fixedClock = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }

func newController(f *fakeCollaborators, out *bytes.Buffer, opts ...pipeline.Option) *pipeline.Controller {
	base := []pipeline.Option{
		pipeline.WithOutput(out),
		pipeline.WithClock(fixedClock),
		pipeline.WithDisambiguator(func() string { return "abcd1234" }),
	}
	return pipeline.NewController(f.collaborators(), append(base, opts...)...)
}

func baseConfig(t *testing.T) pipeline.RunConfig {
	t.Helper()
	return pipeline.DefaultRunConfig().WithPrompt("a robot").WithOutputDir(t.TempDir())
}

func TestControllerRunsAllStages(t *testing.T) {
	f := &fakeCollaborators{}
	var out bytes.Buffer
	cfg := baseConfig(t).WithManifestPath(filepath.Join(t.TempDir(), "manifest.json"))

	manifest, err := newController(f, &out).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	runID := "20240309_140507_baseline_abcd1234"
	if manifest.RunID != runID {
		t.Fatalf("unexpected run id: got %q want %q", manifest.RunID, runID)
	}
	l := layout.New(cfg.OutputDir)
	wantImage := l.ImagePath(runID)
	meshID := "img_" + runID
	wantGLB := l.GLBPath(meshID)
	if manifest.ImagePath != wantImage {
		t.Fatalf("unexpected image path: got %q want %q", manifest.ImagePath, wantImage)
	}
	if manifest.GLBPath != wantGLB {
		t.Fatalf("unexpected glb path: got %q want %q", manifest.GLBPath, wantGLB)
	}
	if manifest.CleanedMeshPath != l.CleanedMeshPath(meshID) {
		t.Fatalf("unexpected cleaned path: %q", manifest.CleanedMeshPath)
	}
	if f.meshReq.OutputOBJ != l.RawMeshPath(meshID) {
		t.Fatalf("unexpected requested obj: %q", f.meshReq.OutputOBJ)
	}
	if manifest.Status != pipeline.StateDone {
		t.Fatalf("unexpected status: %s", manifest.Status)
	}
	if diff := cmp.Diff([]string{"image", "reconstruct", "clean", "convert"}, f.calls); diff != "" {
		t.Fatalf("unexpected collaborator order (-want +got):\n%s", diff)
	}
	if f.imageReq.Width != 1024 || f.imageReq.Height != 1024 {
		t.Fatalf("expected default resolution before dispatch, got %dx%d", f.imageReq.Width, f.imageReq.Height)
	}

	wantOut := "Image saved to: " + wantImage + "\nFinal GLB: " + wantGLB + "\n"
	if out.String() != wantOut {
		t.Fatalf("unexpected markers: got %q want %q", out.String(), wantOut)
	}

	stored, err := pipeline.ReadManifest(cfg.ManifestPath)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if diff := cmp.Diff(manifest.Artifacts(), stored.Artifacts()); diff != "" {
		t.Fatalf("stored manifest differs (-want +got):\n%s", diff)
	}
	var statuses []pipeline.StageStatus
	for _, s := range stored.Stages {
		statuses = append(statuses, s.Status)
	}
	want := []pipeline.StageStatus{
		pipeline.StageCompleted, pipeline.StageCompleted, pipeline.StageCompleted,
		pipeline.StageSkipped, pipeline.StageSkipped,
	}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Fatalf("unexpected stage statuses (-want +got):\n%s", diff)
	}
}

func TestControllerSkipMeshStopsAfterImage(t *testing.T) {
	f := &fakeCollaborators{}
	var out bytes.Buffer
	manifest, err := newController(f, &out).Run(context.Background(), baseConfig(t).WithSkipMesh(true))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if manifest.Status != pipeline.StateSkipped {
		t.Fatalf("unexpected status: %s", manifest.Status)
	}
	if diff := cmp.Diff([]string{"image"}, f.calls); diff != "" {
		t.Fatalf("unexpected calls (-want +got):\n%s", diff)
	}
	if strings.Contains(out.String(), pipeline.GLBMarker) {
		t.Fatalf("GLB marker printed for skipped mesh: %q", out.String())
	}
	if len(manifest.Stages) != 5 {
		t.Fatalf("expected every stage recorded, got %d", len(manifest.Stages))
	}
}

func TestControllerSkipPostprocess(t *testing.T) {
	f := &fakeCollaborators{}
	var out bytes.Buffer
	cfg := baseConfig(t)
	cfg.SkipPostprocess = true
	manifest, err := newController(f, &out).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if manifest.Status != pipeline.StateSkipped || manifest.RawMeshPath == "" || manifest.GLBPath != "" {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}
}

func TestControllerUsesInputImage(t *testing.T) {
	f := &fakeCollaborators{}
	var out bytes.Buffer
	input := filepath.Join(t.TempDir(), "chair.png")
	if err := os.WriteFile(input, []byte("png"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	cfg := pipeline.DefaultRunConfig().WithOutputDir(t.TempDir())
	cfg.SkipImage = true
	cfg.InputImage = input

	manifest, err := newController(f, &out).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if f.calls[0] != "reconstruct" {
		t.Fatalf("expected image generation skipped, calls %v", f.calls)
	}
	if got := layout.MeshIDFromRawMesh(manifest.RawMeshPath); got != "chair" {
		t.Fatalf("unexpected mesh id: %q", got)
	}
	if strings.Contains(out.String(), pipeline.ImageMarker) {
		t.Fatalf("image marker printed for supplied image: %q", out.String())
	}
}

func TestControllerFailureWritesManifest(t *testing.T) {
	f := &fakeCollaborators{failOn: "clean"}
	var out bytes.Buffer
	cfg := baseConfig(t).WithManifestPath(filepath.Join(t.TempDir(), "run", "manifest.json"))

	manifest, err := newController(f, &out).Run(context.Background(), cfg)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if manifest.FailedStage != pipeline.StatePostprocess {
		t.Fatalf("unexpected failed stage: %s", manifest.FailedStage)
	}
	if diff := cmp.Diff([]string{"image", "reconstruct", "clean"}, f.calls); diff != "" {
		t.Fatalf("conversion ran after failed cleanup (-want +got):\n%s", diff)
	}
	stored, err := pipeline.ReadManifest(cfg.ManifestPath)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if stored.Status != pipeline.StateFailed || stored.Error == "" {
		t.Fatalf("unexpected stored manifest: %+v", stored)
	}
	if strings.Contains(out.String(), pipeline.GLBMarker) {
		t.Fatalf("GLB marker printed after failure: %q", out.String())
	}
}

func TestControllerValidateAndDeliver(t *testing.T) {
	volume := 1.5
	f := &fakeCollaborators{report: validation.Report{Vertices: 8, Faces: 12, IsWatertight: true, Volume: &volume}}
	var out bytes.Buffer
	collab := f.collaborators()
	collab.Publisher = f
	controller := pipeline.NewController(collab,
		pipeline.WithOutput(&out),
		pipeline.WithClock(fixedClock),
		pipeline.WithDisambiguator(func() string { return "0000ffff" }),
	)
	cfg := baseConfig(t)
	cfg.ValidateMesh = true

	manifest, err := controller.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if manifest.Validation == nil || manifest.Validation.Filename != layout.GLBFile {
		t.Fatalf("expected validation report, got %+v", manifest.Validation)
	}
	if len(manifest.Delivered) != 2 || !strings.HasPrefix(manifest.Delivered[0], "s3://bucket/"+manifest.RunID+"/") {
		t.Fatalf("unexpected delivery: %v", manifest.Delivered)
	}
}

func TestControllerRejectsEmptyMesh(t *testing.T) {
	f := &fakeCollaborators{}
	var out bytes.Buffer
	cfg := baseConfig(t)
	cfg.ValidateMesh = true
	_, err := newController(f, &out).Run(context.Background(), cfg)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestControllerRetriesTransientFailures(t *testing.T) {
	f := &fakeCollaborators{}
	attempts := 0
	flaky := &flakyGenerator{inner: f, failures: 2, attempts: &attempts}
	collab := f.collaborators()
	collab.Images = flaky
	var out bytes.Buffer
	controller := pipeline.NewController(collab,
		pipeline.WithOutput(&out),
		pipeline.WithRetryPolicy(&pipeline.Backoff{
			MaxAttempts: 3,
			Multiplier:  2,
			Sleep:       func(context.Context, time.Duration) error { return nil },
		}),
	)
	if _, err := controller.Run(context.Background(), baseConfig(t).WithSkipMesh(true)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("unexpected attempts: got %d want 3", attempts)
	}
}

type flakyGenerator struct {
	inner    pipeline.ImageGenerator
	failures int
	attempts *int
}

func (g *flakyGenerator) Generate(ctx context.Context, m backend.Model, req backend.Request) (string, error) {
	*g.attempts++
	if *g.attempts <= g.failures {
		return "", services.Wrap(services.ErrExternalTool, "image", "generate", "CUDA out of memory", nil)
	}
	return g.inner.Generate(ctx, m, req)
}

func TestControllerSkipImageRequiresInputBeforeAnyCollaborator(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := &fakeCollaborators{}
		var out bytes.Buffer
		cfg := pipeline.DefaultRunConfig().WithOutputDir(os.TempDir())
		cfg.Prompt = rapid.StringMatching(`[a-z ]{0,12}`).Draw(rt, "prompt")
		cfg.SkipImage = true
		cfg.InputImage = rapid.SampledFrom([]string{"", " ", "\t"}).Draw(rt, "input")
		cfg.SkipMesh = rapid.Bool().Draw(rt, "skip_mesh")
		cfg.SkipPostprocess = rapid.Bool().Draw(rt, "skip_postprocess")

		manifest, err := newController(f, &out).Run(context.Background(), cfg)
		if !pipeline.IsConfigurationError(err) {
			rt.Fatalf("expected configuration error, got %v", err)
		}
		if len(f.calls) != 0 {
			rt.Fatalf("collaborators invoked on configuration error: %v", f.calls)
		}
		if manifest.Status != pipeline.StateFailed || out.Len() != 0 {
			rt.Fatalf("unexpected result: status=%s out=%q", manifest.Status, out.String())
		}
	})
}

func TestControllerMissingCollaboratorIsConfigurationError(t *testing.T) {
	var out bytes.Buffer
	controller := pipeline.NewController(pipeline.Collaborators{}, pipeline.WithOutput(&out))
	_, err := controller.Run(context.Background(), baseConfig(t))
	if !pipeline.IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

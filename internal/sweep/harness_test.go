package sweep_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"meshforge/internal/pipeline"
	"meshforge/internal/sweep"
)

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

// fakeRunner emulates "meshforge run" by writing artifacts into --output-dir.
type fakeRunner struct {
	calls       int
	markersOnly bool
	failSeed    string
	cancel      context.CancelFunc
	cancelAfter int
}

func flagValue(args []string, name string) string {
	if i := slices.Index(args, name); i >= 0 && i+1 < len(args) {
		return args[i+1]
	}
	return ""
}

func (f *fakeRunner) Run(_ context.Context, args []string) (sweep.Result, error) {
	f.calls++
	if f.cancel != nil && f.calls == f.cancelAfter {
		f.cancel()
	}
	if seed := flagValue(args, "--seed"); seed == f.failSeed {
		return sweep.Result{Stdout: []byte("loading\n"), Stderr: []byte("CUDA out of memory\n")}, errors.New("run pipeline: exit status 1")
	}
	outDir := flagValue(args, "--output-dir")
	image := filepath.Join(outDir, "images", "img_"+flagValue(args, "--seed")+".png")
	if err := os.MkdirAll(filepath.Dir(image), 0o755); err != nil {
		return sweep.Result{}, err
	}
	if err := os.WriteFile(image, []byte("png"), 0o644); err != nil {
		return sweep.Result{}, err
	}
	m := &pipeline.Manifest{ImagePath: image, Status: pipeline.StateSkipped}
	stdout := pipeline.ImageMarker + " " + image + "\n"
	if !slices.Contains(args, "--skip-mesh") {
		glb := filepath.Join(outDir, "processed_meshes", "img", "mesh.glb")
		if err := os.MkdirAll(filepath.Dir(glb), 0o755); err != nil {
			return sweep.Result{}, err
		}
		if err := os.WriteFile(glb, []byte("glTF"), 0o644); err != nil {
			return sweep.Result{}, err
		}
		m.GLBPath = glb
		m.Status = pipeline.StateDone
		stdout += pipeline.GLBMarker + " " + glb + "\n"
	}
	if !f.markersOnly {
		if err := pipeline.WriteManifest(flagValue(args, "--manifest"), m); err != nil {
			return sweep.Result{}, err
		}
	}
	return sweep.Result{Stdout: []byte(stdout)}, nil
}

func selectExperiments(t *testing.T, names ...string) []sweep.Experiment {
	t.Helper()
	exps, err := sweep.Select(sweep.Experiments(), names)
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	return exps
}

func tempDirsUnder(t *testing.T, root string) []string {
	t.Helper()
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == "temp" {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return found
}

func TestHarnessStepsSweepRelocatesArtifacts(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{}
	var out strings.Builder
	h := sweep.New(root, runner, sweep.WithOutput(&out))

	summary, err := h.Run(context.Background(), selectExperiments(t, "steps_variation"))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if runner.calls != 9 || len(summary.Attempts) != 9 {
		t.Fatalf("unexpected attempts: calls=%d recorded=%d", runner.calls, len(summary.Attempts))
	}
	for _, steps := range []int{15, 30, 50} {
		for _, seed := range sweep.Seeds {
			path := filepath.Join(root, "steps_variation", fmt.Sprintf("steps_%d", steps), "seed_"+itoa(seed)+".png")
			if _, err := os.Stat(path); err != nil {
				t.Fatalf("expected relocated image %s: %v", path, err)
			}
		}
	}
	if dirs := tempDirsUnder(t, root); len(dirs) != 0 {
		t.Fatalf("temp directories left behind: %v", dirs)
	}
	if summary.CleanedDirs != 3 {
		t.Fatalf("unexpected cleaned dirs: %d", summary.CleanedDirs)
	}
	if !strings.Contains(out.String(), "Running: Steps=15, Seed=42") {
		t.Fatalf("missing progress output:\n%s", out.String())
	}

	stored, err := sweep.ReadSummary(filepath.Join(root, sweep.SummaryFile))
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	counts := stored.Counts()["steps_variation"]
	if counts.Attempts != 9 || counts.Succeeded != 9 || counts.Images != 9 || counts.GLBs != 0 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	metrics, err := os.ReadFile(filepath.Join(root, sweep.MetricsFile))
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	want := `meshforge_sweep_attempts_total{experiment="steps_variation",outcome="succeeded"} 9`
	if !strings.Contains(string(metrics), want) {
		t.Fatalf("metrics missing %q:\n%s", want, metrics)
	}
}

func TestHarnessContinuesPastFailures(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{failSeed: "123"}
	h := sweep.New(root, runner)

	summary, err := h.Run(context.Background(), selectExperiments(t, "resolution_variation"))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(summary.Attempts) != 6 {
		t.Fatalf("expected every attempt to run, got %d", len(summary.Attempts))
	}
	if summary.Failed() != 2 {
		t.Fatalf("unexpected failures: %d", summary.Failed())
	}
	failed := filepath.Join(root, "resolution_variation", "res_768x768", "seed_123.png")
	if _, err := os.Stat(failed); !os.IsNotExist(err) {
		t.Fatalf("failed attempt produced an artifact: %v", err)
	}
	ok := filepath.Join(root, "resolution_variation", "res_768x768", "seed_999.png")
	if _, err := os.Stat(ok); err != nil {
		t.Fatalf("expected artifact after a failed attempt: %v", err)
	}
}

func TestHarnessFallsBackToMarkers(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{markersOnly: true}
	h := sweep.New(root, runner)

	summary, err := h.Run(context.Background(), selectExperiments(t, "mesh_quality"))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	counts := summary.Counts()["mesh_quality"]
	if counts.Images != 6 || counts.GLBs != 6 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	glb := filepath.Join(root, "mesh_quality", "mesh_res_128", "seed_42.glb")
	if _, err := os.Stat(glb); err != nil {
		t.Fatalf("expected relocated glb: %v", err)
	}
}

func TestHarnessCleansUpAfterCancel(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := &fakeRunner{cancel: cancel, cancelAfter: 2}
	h := sweep.New(root, runner)

	summary, err := h.Run(ctx, selectExperiments(t, "steps_variation"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if !summary.Interrupted || len(summary.Attempts) != 2 {
		t.Fatalf("unexpected summary: interrupted=%v attempts=%d", summary.Interrupted, len(summary.Attempts))
	}
	if dirs := tempDirsUnder(t, root); len(dirs) != 0 {
		t.Fatalf("temp directories left behind: %v", dirs)
	}
}

func TestHarnessRefusesConcurrentSweep(t *testing.T) {
	root := t.TempDir()
	held := flock.New(filepath.Join(root, sweep.LockFile))
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock: locked=%v err=%v", locked, err)
	}
	defer func() { _ = held.Unlock() }()

	runner := &fakeRunner{}
	if _, err := sweep.New(root, runner).Run(context.Background(), sweep.Experiments()); err == nil {
		t.Fatal("expected lock contention error")
	}
	if runner.calls != 0 {
		t.Fatalf("runner invoked while locked: %d", runner.calls)
	}
}

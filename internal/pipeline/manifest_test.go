package pipeline_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"

	"meshforge/internal/pipeline"
)

func TestParseMarkers(t *testing.T) {
	stdout := strings.Join([]string{
		"Loading pipeline...",
		"Image saved to: outputs/images/img_1.png",
		"step 3/25",
		"Final GLB:   outputs/processed_meshes/img_1/mesh.glb  ",
	}, "\n")
	got, err := pipeline.ParseMarkers(strings.NewReader(stdout))
	if err != nil {
		t.Fatalf("ParseMarkers returned error: %v", err)
	}
	want := pipeline.Artifacts{
		ImagePath: "outputs/images/img_1.png",
		GLBPath:   "outputs/processed_meshes/img_1/mesh.glb",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected artifacts (-want +got):\n%s", diff)
	}
}

func TestParseMarkersMissing(t *testing.T) {
	got, err := pipeline.ParseMarkers(strings.NewReader("Traceback (most recent call last):\n"))
	if err != nil {
		t.Fatalf("ParseMarkers returned error: %v", err)
	}
	if got != (pipeline.Artifacts{}) {
		t.Fatalf("expected no artifacts, got %+v", got)
	}
}

func TestParseMarkersIgnoresInterleavedNoise(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		image := "outputs/images/" + rapid.StringMatching(`[a-z0-9_]{1,16}`).Draw(rt, "image") + ".png"
		glb := "outputs/processed/" + rapid.StringMatching(`[a-z0-9_]{1,16}`).Draw(rt, "glb") + ".glb"
		noise := rapid.SliceOf(rapid.StringMatching(`[a-z0-9 ./%]{0,30}`)).Draw(rt, "noise")

		lines := append([]string{}, noise...)
		imageAt := rapid.IntRange(0, len(lines)).Draw(rt, "image_at")
		lines = append(lines[:imageAt], append([]string{pipeline.ImageMarker + " " + image}, lines[imageAt:]...)...)
		glbAt := rapid.IntRange(0, len(lines)).Draw(rt, "glb_at")
		lines = append(lines[:glbAt], append([]string{pipeline.GLBMarker + " " + glb}, lines[glbAt:]...)...)

		got, err := pipeline.ParseMarkers(strings.NewReader(strings.Join(lines, "\n")))
		if err != nil {
			rt.Fatalf("ParseMarkers returned error: %v", err)
		}
		if got.ImagePath != image || got.GLBPath != glb {
			rt.Fatalf("unexpected artifacts %+v for lines %q", got, lines)
		}
	})
}

func TestManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "manifest.json")
	seed := int64(42)
	in := &pipeline.Manifest{
		RunID:     "20240101_000000_fast_deadbeef",
		Model:     "fast",
		Prompt:    "a low-poly sword",
		Seed:      &seed,
		Steps:     30,
		Guidance:  7.5,
		Width:     512,
		Height:    512,
		ImagePath: "images/img_x.png",
		Status:    pipeline.StateSkipped,
		Stages: []pipeline.StageResult{
			{Stage: pipeline.StateImage, Status: pipeline.StageCompleted, Artifacts: []string{"images/img_x.png"}, DurationMS: 1200},
			{Stage: pipeline.StateMesh, Status: pipeline.StageSkipped},
		},
	}
	if err := pipeline.WriteManifest(path, in); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary manifest left behind: %v", err)
	}
	out, err := pipeline.ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("manifest changed on disk (-want +got):\n%s", diff)
	}
}

func TestReadManifestRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte("Image saved to: x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := pipeline.ReadManifest(path); err == nil {
		t.Fatal("expected decode error")
	}
}

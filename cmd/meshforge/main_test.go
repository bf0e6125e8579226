package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meshforge/internal/pipeline"
	"meshforge/internal/services"
	"meshforge/internal/testsupport"
	"meshforge/internal/validation"
)

func TestRunCommandPrintsArtifactMarkers(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedCollaborators())
	manifestPath := filepath.Join(env.baseDir, "run", "manifest.json")

	stdout, _, err := runCLI(t, []string{
		"run", "--prompt", "a red cube", "--model", "turbo", "--seed", "42", "--manifest", manifestPath,
	}, env.configPath)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	artifacts := parseMarkers(t, stdout)
	if artifacts.ImagePath == "" || artifacts.GLBPath == "" {
		t.Fatalf("expected both markers in output:\n%s", stdout)
	}
	if !strings.HasPrefix(artifacts.GLBPath, env.cfg.Paths.OutputDir) {
		t.Fatalf("GLB written outside configured output dir: %q", artifacts.GLBPath)
	}
	manifest, err := pipeline.ReadManifest(manifestPath)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if manifest.Model != "fast" || manifest.Seed == nil || *manifest.Seed != 42 {
		t.Fatalf("unexpected manifest: model=%q seed=%v", manifest.Model, manifest.Seed)
	}
}

func TestRunCommandSkipMeshStopsAfterImage(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedCollaborators())
	outputDir := filepath.Join(env.baseDir, "custom")

	stdout, _, err := runCLI(t, []string{
		"run", "--prompt", "a red cube", "--skip-mesh", "--output-dir", outputDir,
	}, env.configPath)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	artifacts := parseMarkers(t, stdout)
	if !strings.HasPrefix(artifacts.ImagePath, outputDir) {
		t.Fatalf("image not under --output-dir: %q", artifacts.ImagePath)
	}
	if artifacts.GLBPath != "" {
		t.Fatalf("unexpected GLB for --skip-mesh: %q", artifacts.GLBPath)
	}
}

func TestRunCommandRejectsInvalidFlags(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedCollaborators())
	cases := [][]string{
		{"run", "--prompt", "x", "--skip-image"},
		{"run", "--prompt", "  ", "--skip-image", "--input-image", "in.png"},
		{"run", "--prompt", "x", "--model", "dalle"},
		{"run", "--prompt", "x", "--steps", "0"},
	}
	for _, args := range cases {
		_, _, err := runCLI(t, args, env.configPath)
		if err == nil {
			t.Fatalf("expected %v to fail", args)
		}
		if !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("expected configuration error for %v, got %v", args, err)
		}
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.OutputDir, "images")); !os.IsNotExist(err) {
		t.Fatalf("invalid flags must not touch the output dir: %v", err)
	}
}

func TestRunCommandRequiresPrompt(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedCollaborators())
	input := filepath.Join(env.baseDir, "input.png")
	testsupport.WriteArtifact(t, input, 32)

	for _, args := range [][]string{
		{"run"},
		{"run", "--skip-image", "--input-image", input},
	} {
		_, _, err := runCLI(t, args, env.configPath)
		if err == nil {
			t.Fatalf("expected %v to fail without --prompt", args)
		}
		if !strings.Contains(err.Error(), `"prompt"`) {
			t.Fatalf("unexpected error for %v: %v", args, err)
		}
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.OutputDir, "raw_meshes")); !os.IsNotExist(err) {
		t.Fatalf("missing --prompt must not start the pipeline: %v", err)
	}
}

func TestRunCommandFailsWhenCollaboratorFails(t *testing.T) {
	env := setupCLITestEnv(t,
		testsupport.WithStubbedCollaborators(),
		testsupport.WithFailingCommand("convert"),
	)
	stdout, _, err := runCLI(t, []string{"run", "--prompt", "a red cube"}, env.configPath)
	if err == nil {
		t.Fatal("expected conversion failure to fail the run")
	}
	artifacts := parseMarkers(t, stdout)
	if artifacts.ImagePath == "" || artifacts.GLBPath != "" {
		t.Fatalf("unexpected markers after failed conversion:\n%s", stdout)
	}
}

func TestQueueAndWorkerCommands(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedCollaborators())

	stdout, _, err := runCLI(t, []string{"queue", "add", "--prompt", "a teapot", "--model", "fast", "--skip-mesh"}, env.configPath)
	if err != nil {
		t.Fatalf("queue add: %v", err)
	}
	if !strings.Contains(stdout, "Queued job 1 (fast)") {
		t.Fatalf("unexpected add output: %q", stdout)
	}
	if _, _, err := runCLI(t, []string{"queue", "add", "--prompt", "a lamp"}, env.configPath); err != nil {
		t.Fatalf("queue add: %v", err)
	}

	stdout, _, err = runCLI(t, []string{"queue", "list", "--status", "queued"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if !strings.Contains(stdout, "a teapot") || !strings.Contains(stdout, "a lamp") {
		t.Fatalf("queued jobs missing from list:\n%s", stdout)
	}

	stdout, _, err = runCLI(t, []string{"worker", "--once", "--workers", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("worker: %v", err)
	}
	if !strings.Contains(stdout, "2 succeeded, 0 failed, 0 queued") {
		t.Fatalf("unexpected worker output: %q", stdout)
	}

	stdout, _, err = runCLI(t, []string{"queue", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	if !strings.Contains(stdout, "Succeeded") || !strings.Contains(stdout, "not running") {
		t.Fatalf("unexpected status output:\n%s", stdout)
	}

	stdout, _, err = runCLI(t, []string{"queue", "remove", "1", "99"}, env.configPath)
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	if !strings.Contains(stdout, "Job 1 removed") || !strings.Contains(stdout, "Job 99 not found or running") {
		t.Fatalf("unexpected remove output: %q", stdout)
	}

	stdout, _, err = runCLI(t, []string{"queue", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	if !strings.Contains(stdout, "Cleared 1 jobs") {
		t.Fatalf("unexpected clear output: %q", stdout)
	}
}

func TestQueueRetryFailedJob(t *testing.T) {
	env := setupCLITestEnv(t,
		testsupport.WithStubbedCollaborators(),
		testsupport.WithFailingCommand("generate"),
	)
	if _, _, err := runCLI(t, []string{"queue", "add", "--prompt", "a lamp"}, env.configPath); err != nil {
		t.Fatalf("queue add: %v", err)
	}
	stdout, _, err := runCLI(t, []string{"worker", "--once"}, env.configPath)
	if err != nil {
		t.Fatalf("worker: %v", err)
	}
	if !strings.Contains(stdout, "0 succeeded, 1 failed") {
		t.Fatalf("unexpected worker output: %q", stdout)
	}

	stdout, _, err = runCLI(t, []string{"queue", "retry", "1", "7"}, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	if !strings.Contains(stdout, "Job 1 reset for retry") || !strings.Contains(stdout, "Job 7 not found") {
		t.Fatalf("unexpected retry output: %q", stdout)
	}

	if _, _, err := runCLI(t, []string{"queue", "retry", "abc"}, env.configPath); err == nil {
		t.Fatal("expected invalid job id to be rejected")
	}
	if _, _, err := runCLI(t, []string{"queue", "list", "--status", "paused"}, env.configPath); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestSweepDryRunListsPlan(t *testing.T) {
	env := setupCLITestEnv(t)
	root := filepath.Join(env.baseDir, "sweep")

	stdout, _, err := runCLI(t, []string{"sweep", "--dry-run", "--output-dir", root}, env.configPath)
	if err != nil {
		t.Fatalf("sweep --dry-run: %v", err)
	}
	if !strings.Contains(stdout, "39 attempts planned") {
		t.Fatalf("unexpected plan summary:\n%s", stdout)
	}
	if !strings.Contains(stdout, filepath.Join(root, "steps_variation", "steps_15", "seed_42.png")) {
		t.Fatalf("expected first destination in plan:\n%s", stdout)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatalf("dry run must not create the sweep root: %v", err)
	}

	stdout, _, err = runCLI(t, []string{"sweep", "--dry-run", "--output-dir", root, "--only", "mesh_quality"}, env.configPath)
	if err != nil {
		t.Fatalf("sweep --only: %v", err)
	}
	if !strings.Contains(stdout, "6 attempts planned") {
		t.Fatalf("unexpected filtered plan:\n%s", stdout)
	}

	if _, _, err := runCLI(t, []string{"sweep", "--dry-run", "--only", "bogus"}, env.configPath); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected unknown experiment to be rejected, got %v", err)
	}
}

func TestValidateCommandPrintsReport(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedCollaborators())
	root := filepath.Join(env.baseDir, "renders")
	testsupport.WriteArtifact(t, filepath.Join(root, "processed_meshes", "20240101_000000_fast_abcd1234", "mesh.glb"), 128)

	stdout, stderr, err := runCLI(t, []string{"validate", "--root", root}, env.configPath)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(stderr, "mesh.glb") {
		t.Fatalf("expected selected mesh on stderr, got %q", stderr)
	}
	var report validation.Report
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, stdout)
	}
	if report.Vertices != 8 || !report.Printable() {
		t.Fatalf("unexpected report: %+v", report)
	}

	if _, _, err := runCLI(t, []string{"validate", "--root", filepath.Join(env.baseDir, "empty")}, env.configPath); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for empty root, got %v", err)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(env.baseDir, "nested", "meshforge.toml")

	stdout, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(stdout, target) {
		t.Fatalf("unexpected init output: %q", stdout)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	env.cfg.Delivery.AccessKey = "minio"
	env.cfg.Delivery.SecretKey = "s3cr3t"
	writeTestConfig(t, env.configPath, env.cfg)
	stdout, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(stdout, "s3cr3t") || !strings.Contains(stdout, redacted) {
		t.Fatalf("secrets not redacted:\n%s", stdout)
	}

	stdout, _, err = runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(stdout, "Configuration valid") || !strings.Contains(stdout, "Delivery enabled: no") {
		t.Fatalf("unexpected validate output: %q", stdout)
	}
}

func TestDepsCommandReportsStubs(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedCollaborators())
	if err := os.MkdirAll(env.cfg.Paths.OutputDir, 0o755); err != nil {
		t.Fatalf("mkdir output dir: %v", err)
	}
	stdout, _, err := runCLI(t, []string{"deps"}, env.configPath)
	if err != nil {
		t.Fatalf("deps: %v\n%s", err, stdout)
	}
	if !strings.Contains(stdout, "Mesh reconstruction:") || strings.Contains(stdout, "[ERROR]") {
		t.Fatalf("unexpected deps output:\n%s", stdout)
	}
}

func TestDepsCommandFailsOnMissingCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Mesh.ReconstructCommand = []string{"clearly-not-present-binary"}
	writeTestConfig(t, env.configPath, env.cfg)
	stdout, _, err := runCLI(t, []string{"deps"}, env.configPath)
	if err == nil {
		t.Fatalf("expected missing command to fail deps:\n%s", stdout)
	}
	if !strings.Contains(stdout, `binary "clearly-not-present-binary" not found`) {
		t.Fatalf("missing binary not reported:\n%s", stdout)
	}
}

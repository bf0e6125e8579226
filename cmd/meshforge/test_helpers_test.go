package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meshforge/internal/config"
	"meshforge/internal/pipeline"
	"meshforge/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MESHFORGE_OUTPUT_DIR", "")
	t.Setenv("MESHFORGE_S3_ACCESS_KEY", "")
	t.Setenv("MESHFORGE_S3_SECRET_KEY", "")

	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	flags = append(flags, "--log-level", "error")
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// parseMarkers extracts the artifact markers a run printed on stdout.
func parseMarkers(t *testing.T, stdout string) pipeline.Artifacts {
	t.Helper()
	artifacts, err := pipeline.ParseMarkers(strings.NewReader(stdout))
	if err != nil {
		t.Fatalf("parse markers: %v", err)
	}
	return artifacts
}

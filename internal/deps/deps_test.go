package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	present := writeStub(t, t.TempDir(), "reconstruct")
	results := CheckBinaries([]Requirement{
		{Name: "Mesh reconstruction", Command: " " + present + " "},
		{Name: "Image backend", Command: "meshforge-test-no-such-binary"},
		{Name: "Mesh cleanup", Command: "  "},
	})
	if len(results) != 3 {
		t.Fatalf("unexpected result count: got %d want 3", len(results))
	}

	if !results[0].Available || results[0].Path != present || results[0].Detail != "" {
		t.Fatalf("unexpected status for present binary: %#v", results[0])
	}
	if results[0].Command != present {
		t.Fatalf("command not trimmed: got %q want %q", results[0].Command, present)
	}
	if results[1].Available || results[1].Detail != `binary "meshforge-test-no-such-binary" not found` {
		t.Fatalf("unexpected status for missing binary: %#v", results[1])
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected status for unset command: %#v", results[2])
	}
}

func TestCheckResolvesFromPath(t *testing.T) {
	dir := t.TempDir()
	writeStub(t, dir, "gen-image")
	t.Setenv("PATH", dir)

	status := Check(Requirement{Name: "Image backend", Command: "gen-image"})
	if !status.Available {
		t.Fatalf("expected PATH lookup to succeed: %#v", status)
	}
	if status.Path != filepath.Join(dir, "gen-image") {
		t.Fatalf("unexpected resolved path: got %q", status.Path)
	}
}

func TestMissingIgnoresOptional(t *testing.T) {
	statuses := []Status{
		{Requirement: Requirement{Name: "ok"}, Available: true},
		{Requirement: Requirement{Name: "required"}},
		{Requirement: Requirement{Name: "optional", Optional: true}},
	}
	missing := Missing(statuses)
	if len(missing) != 1 || missing[0].Name != "required" {
		t.Fatalf("unexpected missing set: %#v", missing)
	}
}

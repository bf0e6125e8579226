package testsupport

import (
	"context"
	"testing"

	"meshforge/internal/config"
	"meshforge/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Enqueue adds a job with prompt for tests, skipping the mesh stage unless withMesh is set.
func Enqueue(t testing.TB, store *jobs.Store, prompt string, withMesh bool) *jobs.Job {
	t.Helper()

	job, err := store.Enqueue(context.Background(), jobs.Spec{
		Prompt:         prompt,
		Model:          "fast",
		Steps:          4,
		Guidance:       0,
		SkipMesh:       !withMesh,
		MeshResolution: 256,
		BakeTexture:    true,
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}

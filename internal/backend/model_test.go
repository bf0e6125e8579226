package backend_test

import (
	"errors"
	"testing"

	"pgregory.net/rapid"

	"meshforge/internal/backend"
	"meshforge/internal/services"
)

func TestParseModelAcceptsAliases(t *testing.T) {
	tests := map[string]backend.Model{
		"baseline": backend.ModelBaseline,
		"SD15":     backend.ModelBaseline,
		"fast":     backend.ModelFast,
		"turbo":    backend.ModelFast,
		"high-res": backend.ModelHighRes,
		" pixart ": backend.ModelHighRes,
	}
	for input, want := range tests {
		got, err := backend.ParseModel(input)
		if err != nil {
			t.Fatalf("ParseModel(%q) returned error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseModel(%q) = %q want %q", input, got, want)
		}
	}
}

func TestParseModelRejectsUnknown(t *testing.T) {
	_, err := backend.ParseModel("dalle")
	if err == nil {
		t.Fatal("expected error for unknown model")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration marker, got %v", err)
	}
}

func TestDefaultResolutionTable(t *testing.T) {
	tests := map[backend.Model]backend.Resolution{
		backend.ModelBaseline: {Width: 1024, Height: 1024},
		backend.ModelFast:     {Width: 512, Height: 512},
		backend.ModelHighRes:  {Width: 1024, Height: 1024},
	}
	for model, want := range tests {
		if got := backend.DefaultResolution(model); got != want {
			t.Fatalf("DefaultResolution(%s) = %s want %s", model, got, want)
		}
	}
}

func TestDefaultResolutionIsPure(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		model := rapid.SampledFrom(backend.Models()).Draw(t, "model")
		first := backend.DefaultResolution(model)
		second := backend.DefaultResolution(model)
		if first != second {
			t.Fatalf("DefaultResolution(%s) changed between calls: %s vs %s", model, first, second)
		}
	})
}

func TestResolveResolutionFillsOnlyUnsetDimensions(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		model := rapid.SampledFrom(backend.Models()).Draw(t, "model")
		width := rapid.IntRange(0, 2048).Draw(t, "width")
		height := rapid.IntRange(0, 2048).Draw(t, "height")
		got := backend.ResolveResolution(model, width, height)
		def := backend.DefaultResolution(model)
		if width > 0 && got.Width != width {
			t.Fatalf("explicit width %d replaced by %d", width, got.Width)
		}
		if width == 0 && got.Width != def.Width {
			t.Fatalf("unset width resolved to %d want %d", got.Width, def.Width)
		}
		if height > 0 && got.Height != height {
			t.Fatalf("explicit height %d replaced by %d", height, got.Height)
		}
		if height == 0 && got.Height != def.Height {
			t.Fatalf("unset height resolved to %d want %d", got.Height, def.Height)
		}
	})
}

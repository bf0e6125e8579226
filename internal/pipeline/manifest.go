package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"meshforge/internal/validation"
)

// Stdout markers announcing produced artifacts.
const (
	ImageMarker = "Image saved to:"
	GLBMarker   = "Final GLB:"
)

// Manifest is the structured record of a run, written to RunConfig.ManifestPath.
type Manifest struct {
	RunID           string             `json:"run_id"`
	Model           string             `json:"model"`
	Prompt          string             `json:"prompt"`
	Seed            *int64             `json:"seed,omitempty"`
	Steps           int                `json:"steps"`
	Guidance        float64            `json:"guidance"`
	Width           int                `json:"width"`
	Height          int                `json:"height"`
	MeshResolution  int                `json:"mesh_resolution"`
	ImagePath       string             `json:"image_path,omitempty"`
	RawMeshPath     string             `json:"raw_mesh_path,omitempty"`
	CleanedMeshPath string             `json:"cleaned_mesh_path,omitempty"`
	GLBPath         string             `json:"glb_path,omitempty"`
	Delivered       []string           `json:"delivered,omitempty"`
	Validation      *validation.Report `json:"validation,omitempty"`
	Status          State              `json:"status"`
	FailedStage     State              `json:"failed_stage,omitempty"`
	Error           string             `json:"error,omitempty"`
	Stages          []StageResult      `json:"stages"`
}

// Artifacts are the paths a finished run announces.
type Artifacts struct {
	ImagePath string
	GLBPath   string
}

// Artifacts returns the manifest's announced paths.
func (m *Manifest) Artifacts() Artifacts {
	if m == nil {
		return Artifacts{}
	}
	return Artifacts{ImagePath: m.ImagePath, GLBPath: m.GLBPath}
}

// WriteManifest stores m as indented JSON, replacing path atomically.
func WriteManifest(path string, m *Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return &m, nil
}

// ParseMarkers scans a captured output stream for artifact markers. For each
// marker the text after its first occurrence on the line is taken; a later
// line overrides an earlier one.
func ParseMarkers(r io.Reader) (Artifacts, error) {
	var out Artifacts
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if value, ok := afterMarker(line, ImageMarker); ok {
			out.ImagePath = value
		}
		if value, ok := afterMarker(line, GLBMarker); ok {
			out.GLBPath = value
		}
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("scan output: %w", err)
	}
	return out, nil
}

func afterMarker(line, marker string) (string, bool) {
	_, value, found := strings.Cut(line, marker)
	if !found {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func announce(w io.Writer, marker, path string) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", marker, path)
}

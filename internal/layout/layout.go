package layout

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimestampFormat renders run timestamps at second resolution.
const TimestampFormat = "20060102_150405"

const (
	imagesDir          = "images"
	rawMeshesDir       = "raw_meshes"
	processedMeshesDir = "processed_meshes"

	// RawMeshFile is the obj name requested from the reconstructor.
	RawMeshFile = "mesh.obj"
	// CleanedMeshFile is the cleanup output inside the processed directory.
	CleanedMeshFile = "mesh_cleaned.obj"
	// GLBFile is the conversion output inside the processed directory.
	GLBFile = "mesh.glb"
	// NestedOutputDir is the per-image folder the reconstructor writes into.
	NestedOutputDir = "0"
)

// RunID returns "{timestamp}_{model}".
func RunID(ts time.Time, model string) string {
	return ts.Format(TimestampFormat) + "_" + model
}

// Identity names one pipeline run. Two runs started in the same second with
// the same model differ by Disambiguator.
type Identity struct {
	Timestamp     time.Time
	Model         string
	Disambiguator string
}

// NewIdentity builds an identity; an empty disambiguator is generated.
func NewIdentity(ts time.Time, model, disambiguator string) Identity {
	if strings.TrimSpace(disambiguator) == "" {
		disambiguator = NewDisambiguator()
	}
	return Identity{Timestamp: ts, Model: model, Disambiguator: disambiguator}
}

// NewDisambiguator returns 8 lowercase hex characters from a random UUID.
func NewDisambiguator() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}

// String renders "{timestamp}_{model}_{disambiguator}".
func (i Identity) String() string {
	base := RunID(i.Timestamp, i.Model)
	if i.Disambiguator == "" {
		return base
	}
	return base + "_" + i.Disambiguator
}

// ImageFilename returns the image artifact name for a run.
func ImageFilename(runID string) string {
	return fmt.Sprintf("img_%s.png", runID)
}

// Layout derives artifact locations under one output root.
type Layout struct {
	Root string
}

// New returns a Layout rooted at root.
func New(root string) Layout {
	return Layout{Root: root}
}

// ImagesDir is {root}/images.
func (l Layout) ImagesDir() string {
	return filepath.Join(l.Root, imagesDir)
}

// ImagePath is {root}/images/img_{run_id}.png.
func (l Layout) ImagePath(runID string) string {
	return filepath.Join(l.ImagesDir(), ImageFilename(runID))
}

// RawMeshDir is {root}/raw_meshes/{mesh_id}.
func (l Layout) RawMeshDir(meshID string) string {
	return filepath.Join(l.Root, rawMeshesDir, meshID)
}

// RawMeshPath is the obj path requested from the reconstructor.
func (l Layout) RawMeshPath(meshID string) string {
	return filepath.Join(l.RawMeshDir(meshID), RawMeshFile)
}

// ProcessedMeshDir is {root}/processed_meshes/{mesh_id}.
func (l Layout) ProcessedMeshDir(meshID string) string {
	return filepath.Join(l.Root, processedMeshesDir, meshID)
}

// CleanedMeshPath is {root}/processed_meshes/{mesh_id}/mesh_cleaned.obj.
func (l Layout) CleanedMeshPath(meshID string) string {
	return filepath.Join(l.ProcessedMeshDir(meshID), CleanedMeshFile)
}

// GLBPath is {root}/processed_meshes/{mesh_id}/mesh.glb.
func (l Layout) GLBPath(meshID string) string {
	return filepath.Join(l.ProcessedMeshDir(meshID), GLBFile)
}

// ProcessedRoot is {root}/processed_meshes.
func (l Layout) ProcessedRoot() string {
	return filepath.Join(l.Root, processedMeshesDir)
}

// MeshID returns the filename stem of an artifact path.
func MeshID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// MeshIDFromRawMesh returns the mesh folder name for a reconstructed obj,
// stepping over a purely numeric nesting folder such as "0".
func MeshIDFromRawMesh(path string) string {
	dir := filepath.Dir(path)
	name := filepath.Base(dir)
	if isNumeric(name) {
		parent := filepath.Base(filepath.Dir(dir))
		if parent != "." && parent != string(filepath.Separator) && parent != "" {
			return parent
		}
	}
	return name
}

func isNumeric(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

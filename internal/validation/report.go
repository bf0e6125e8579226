package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Report is the validator's JSON output.
type Report struct {
	Filename            string       `json:"filename"`
	Vertices            int          `json:"vertices"`
	Faces               int          `json:"faces"`
	IsWatertight        bool         `json:"is_watertight"`
	IsWindingConsistent bool         `json:"is_winding_consistent"`
	EulerNumber         int          `json:"euler_number"`
	Volume              *float64     `json:"volume"`
	Bounds              [][3]float64 `json:"bounds"`
	HasTexture          bool         `json:"has_texture"`
}

// Printable reports whether the mesh is closed and consistently wound.
func (r Report) Printable() bool {
	return r.IsWatertight && r.IsWindingConsistent
}

// Empty reports whether the mesh has no geometry.
func (r Report) Empty() bool {
	return r.Vertices == 0 || r.Faces == 0
}

// Extent returns the bounding box size per axis, or false when bounds are absent.
func (r Report) Extent() ([3]float64, bool) {
	if len(r.Bounds) != 2 {
		return [3]float64{}, false
	}
	var out [3]float64
	for i := range out {
		out[i] = r.Bounds[1][i] - r.Bounds[0][i]
	}
	return out, true
}

// ParseReport decodes the first JSON object in output. Validators may print
// progress lines before the report.
func ParseReport(output []byte) (Report, error) {
	start := bytes.IndexByte(output, '{')
	if start < 0 {
		return Report{}, fmt.Errorf("no JSON report in validator output")
	}
	var report Report
	dec := json.NewDecoder(bytes.NewReader(output[start:]))
	if err := dec.Decode(&report); err != nil {
		return Report{}, fmt.Errorf("decode validation report: %w", err)
	}
	return report, nil
}

package backend

import (
	"fmt"
	"strings"

	"meshforge/internal/services"
)

// Model identifies an image generation backend.
type Model string

const (
	ModelBaseline Model = "baseline"
	ModelFast     Model = "fast"
	ModelHighRes  Model = "high-res"
)

var modelAliases = map[string]Model{
	"baseline": ModelBaseline,
	"sd15":     ModelBaseline,
	"fast":     ModelFast,
	"turbo":    ModelFast,
	"high-res": ModelHighRes,
	"highres":  ModelHighRes,
	"pixart":   ModelHighRes,
}

// Models returns every supported model in display order.
func Models() []Model {
	return []Model{ModelBaseline, ModelFast, ModelHighRes}
}

// ParseModel accepts canonical names and their legacy aliases.
func ParseModel(value string) (Model, error) {
	key := strings.ToLower(strings.TrimSpace(value))
	if m, ok := modelAliases[key]; ok {
		return m, nil
	}
	return "", services.Wrap(services.ErrConfiguration, "image", "parse model",
		fmt.Sprintf("unknown model %q (want baseline, fast, or high-res)", value), nil)
}

func (m Model) String() string {
	return string(m)
}

// Resolution is an image size in pixels.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// DefaultResolution returns the native size for a model.
func DefaultResolution(m Model) Resolution {
	switch m {
	case ModelFast:
		return Resolution{Width: 512, Height: 512}
	default:
		return Resolution{Width: 1024, Height: 1024}
	}
}

// ResolveResolution fills zero dimensions from the model default.
func ResolveResolution(m Model, width, height int) Resolution {
	def := DefaultResolution(m)
	if width <= 0 {
		width = def.Width
	}
	if height <= 0 {
		height = def.Height
	}
	return Resolution{Width: width, Height: height}
}

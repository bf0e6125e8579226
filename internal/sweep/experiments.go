package sweep

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"meshforge/internal/backend"
	"meshforge/internal/pipeline"
	"meshforge/internal/services"
	"meshforge/internal/staging"
)

// Sweep prompts.
const (
	PromptMascot = "a cute stylized robot mascot, round body, thick arms and legs, glossy metal surface, full body centered, studio lighting, 3d animation render style, smooth edges, clear silhouette"
	PromptSword  = "low poly fantasy sword, hand painted texture, white background"
)

// Baseline values held constant on every axis not under test.
const (
	BaseModel    = backend.ModelBaseline
	BaseSteps    = 30
	BaseGuidance = 7.5
	BaseWidth    = 512
	BaseHeight   = 512
)

// ManifestFile is the manifest name written inside each grid point's temp dir.
const ManifestFile = "manifest.json"

var (
	Prompts         = []string{PromptMascot, PromptSword}
	StepsValues     = []int{15, 30, 50}
	GuidanceValues  = []float64{5.0, 7.5, 12.0}
	Seeds           = []int64{42, 123, 999}
	Resolutions     = []backend.Resolution{{Width: 512, Height: 512}, {Width: 768, Height: 768}}
	MeshResolutions = []int{128, 256}
)

// Point is one value of an experiment's axis.
type Point struct {
	// Folder is the point's subdirectory inside the experiment folder.
	Folder string
	// Label describes the axis value in progress output, e.g. "Steps=15".
	Label  string
	Config pipeline.RunConfig
}

// Experiment is a named parameter grid.
type Experiment struct {
	Name   string
	Title  string
	Points []Point
	// Seeds repeats every point once per seed. Empty runs each point once
	// with the seed already set on its config.
	Seeds []int64
	// Filename names the relocated artifacts of a run with seed.
	Filename func(seed int64) string
}

// Attempt is a single planned pipeline invocation.
type Attempt struct {
	Experiment string
	Point      string
	PointDir   string
	Label      string
	Seed       int64
	// SeedAxis marks attempts whose point value is the seed itself.
	SeedAxis bool
	// Name is the artifact basename without extension.
	Name   string
	Config pipeline.RunConfig
}

// Progress describes the attempt in a "Running:" line. The seed is appended
// unless the point label already is the seed.
func (a Attempt) Progress() string {
	if a.SeedAxis {
		return a.Label
	}
	return fmt.Sprintf("%s, Seed=%d", a.Label, a.Seed)
}

// TempDir is the attempt's working directory.
func (a Attempt) TempDir() string {
	return filepath.Join(a.PointDir, staging.TempDirName)
}

// ImageDestination is {point}/{name}.png.
func (a Attempt) ImageDestination() string {
	return filepath.Join(a.PointDir, a.Name+".png")
}

// GLBDestination is {point}/{name}.glb.
func (a Attempt) GLBDestination() string {
	return filepath.Join(a.PointDir, a.Name+".glb")
}

func seedFilename(seed int64) string {
	return fmt.Sprintf("seed_%d", seed)
}

func baseConfig() pipeline.RunConfig {
	cfg := pipeline.DefaultRunConfig().
		WithPrompt(PromptMascot).
		WithModel(BaseModel).
		WithSteps(BaseSteps).
		WithGuidance(BaseGuidance).
		WithResolution(BaseWidth, BaseHeight).
		WithSkipMesh(true)
	return cfg
}

// FormatGuidance renders guidance with at least one decimal place ("5.0", "7.5").
func FormatGuidance(g float64) string {
	s := strconv.FormatFloat(g, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

// Experiments returns the six sweeps in execution order.
func Experiments() []Experiment {
	base := baseConfig()
	var exps []Experiment

	steps := Experiment{Name: "steps_variation", Title: "Steps Variation", Seeds: Seeds, Filename: seedFilename}
	for _, n := range StepsValues {
		steps.Points = append(steps.Points, Point{
			Folder: fmt.Sprintf("steps_%d", n),
			Label:  fmt.Sprintf("Steps=%d", n),
			Config: base.WithSteps(n),
		})
	}
	exps = append(exps, steps)

	guidance := Experiment{Name: "guidance_variation", Title: "Guidance Variation", Seeds: Seeds, Filename: seedFilename}
	for _, g := range GuidanceValues {
		guidance.Points = append(guidance.Points, Point{
			Folder: "guidance_" + FormatGuidance(g),
			Label:  "Guidance=" + FormatGuidance(g),
			Config: base.WithGuidance(g),
		})
	}
	exps = append(exps, guidance)

	seeds := Experiment{Name: "seed_variation", Title: "Seed Variation", Filename: func(int64) string { return "output" }}
	for _, s := range Seeds {
		seeds.Points = append(seeds.Points, Point{
			Folder: fmt.Sprintf("seed_%d", s),
			Label:  fmt.Sprintf("Seed=%d", s),
			Config: base.WithSeed(s),
		})
	}
	exps = append(exps, seeds)

	prompts := Experiment{Name: "prompt_variation", Title: "Prompt Variation", Seeds: Seeds, Filename: seedFilename}
	for i, p := range Prompts {
		prompts.Points = append(prompts.Points, Point{
			Folder: fmt.Sprintf("prompt_%d", i+1),
			Label:  fmt.Sprintf("Prompt %d", i+1),
			Config: base.WithPrompt(p),
		})
	}
	exps = append(exps, prompts)

	res := Experiment{Name: "resolution_variation", Title: "Resolution Variation", Seeds: Seeds, Filename: seedFilename}
	for _, r := range Resolutions {
		res.Points = append(res.Points, Point{
			Folder: fmt.Sprintf("res_%dx%d", r.Width, r.Height),
			Label:  "Resolution=" + r.String(),
			Config: base.WithResolution(r.Width, r.Height),
		})
	}
	exps = append(exps, res)

	meshQuality := Experiment{Name: "mesh_quality", Title: "Mesh Quality Variation", Seeds: Seeds, Filename: seedFilename}
	for _, r := range MeshResolutions {
		meshQuality.Points = append(meshQuality.Points, Point{
			Folder: fmt.Sprintf("mesh_res_%d", r),
			Label:  fmt.Sprintf("Mesh Resolution=%d", r),
			Config: base.WithSkipMesh(false).WithMeshResolution(r),
		})
	}
	exps = append(exps, meshQuality)

	return exps
}

// Select filters exps to the named experiments, keeping execution order.
// An empty list selects everything.
func Select(exps []Experiment, names []string) ([]Experiment, error) {
	if len(names) == 0 {
		return exps, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[strings.TrimSpace(name)] = true
	}
	var out []Experiment
	for _, exp := range exps {
		if wanted[exp.Name] {
			out = append(out, exp)
			delete(wanted, exp.Name)
		}
	}
	if len(wanted) > 0 {
		unknown := make([]string, 0, len(wanted))
		for name := range wanted {
			unknown = append(unknown, name)
		}
		sort.Strings(unknown)
		return nil, services.Wrap(services.ErrConfiguration, "sweep", "select",
			fmt.Sprintf("unknown experiment(s): %s", strings.Join(unknown, ", ")), nil)
	}
	return out, nil
}

// Plan expands exps into attempts rooted at root, in execution order.
func Plan(root string, exps []Experiment) []Attempt {
	var attempts []Attempt
	for _, exp := range exps {
		expDir := filepath.Join(root, exp.Name)
		for _, point := range exp.Points {
			pointDir := filepath.Join(expDir, point.Folder)
			seeds := exp.Seeds
			seedAxis := len(seeds) == 0
			if seedAxis {
				seed, _ := point.Config.SeedValue()
				seeds = []int64{seed}
			}
			for _, seed := range seeds {
				a := Attempt{
					Experiment: exp.Name,
					Point:      point.Folder,
					PointDir:   pointDir,
					Label:      point.Label,
					Seed:       seed,
					SeedAxis:   seedAxis,
					Name:       exp.Filename(seed),
				}
				a.Config = point.Config.
					WithSeed(seed).
					WithOutputDir(a.TempDir()).
					WithManifestPath(filepath.Join(a.TempDir(), ManifestFile))
				attempts = append(attempts, a)
			}
		}
	}
	return attempts
}

// CommandArgs renders cfg as "meshforge run" arguments.
func CommandArgs(cfg pipeline.RunConfig) []string {
	args := []string{
		"run",
		"--prompt", cfg.Prompt,
		"--model", string(cfg.Model),
		"--steps", strconv.Itoa(cfg.Steps),
		"--guidance", FormatGuidance(cfg.Guidance),
	}
	if seed, ok := cfg.SeedValue(); ok {
		args = append(args, "--seed", strconv.FormatInt(seed, 10))
	}
	args = append(args, "--output-dir", cfg.OutputDir)
	if cfg.SkipMesh {
		args = append(args, "--skip-mesh")
	}
	if cfg.Width > 0 {
		args = append(args, "--width", strconv.Itoa(cfg.Width))
	}
	if cfg.Height > 0 {
		args = append(args, "--height", strconv.Itoa(cfg.Height))
	}
	if !cfg.SkipMesh {
		args = append(args, "--mesh-resolution", strconv.Itoa(cfg.MeshResolution))
	}
	if cfg.ManifestPath != "" {
		args = append(args, "--manifest", cfg.ManifestPath)
	}
	return args
}

package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"meshforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "outputs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.JobsDir = filepath.Join(base, "jobs")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Workflow.QueuePollInterval = 1
	cfgVal.Workflow.ErrorRetryInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Workers = n
	}
}

// WithStubbedCollaborators writes shell scripts honouring the collaborator
// command contracts and points every configured command at them. Each script
// creates the output it is asked for, so a full pipeline run succeeds.
func WithStubbedCollaborators() ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		write := func(name, body string) config.Command {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, []byte("#!/bin/sh\nset -e\n"+body), 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
			return config.Command{target}
		}

		generate := write("generate", stubGenerate)
		for name := range b.cfg.Backends {
			b.cfg.Backends[name] = config.Backend{Command: generate}
		}
		b.cfg.Mesh.ReconstructCommand = write("reconstruct", stubReconstruct)
		b.cfg.Mesh.CleanupCommand = write("clean", stubTransform)
		b.cfg.Mesh.ConvertCommand = write("convert", stubTransform)
		b.cfg.Validation.Command = write("validate", stubValidate)
	}
}

// WithFailingCommand replaces the named stub ("generate", "reconstruct",
// "clean", "convert", "validate") with a script that exits 1.
func WithFailingCommand(name string) ConfigOption {
	return func(b *configBuilder) {
		target := filepath.Join(b.baseDir, "bin", name)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := "#!/bin/sh\necho \"" + name + " exploded\" >&2\nexit 1\n"
		if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
			b.t.Fatalf("write failing stub %s: %v", name, err)
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

const stubGenerate = `out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
mkdir -p "$(dirname "$out")"
printf 'png' > "$out"
echo "generated $out"
`

const stubReconstruct = `dir=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output-dir) dir="$2"; shift 2 ;;
    *) shift ;;
  esac
done
mkdir -p "$dir/0"
printf 'v 0 0 0\n' > "$dir/0/mesh.obj"
`

const stubTransform = `in=""
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --input) in="$2"; shift 2 ;;
    --output) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
mkdir -p "$(dirname "$out")"
cp "$in" "$out"
`

const stubValidate = `echo "Loading mesh..."
echo '{"filename":"mesh.glb","vertices":8,"faces":12,"is_watertight":true,"is_winding_consistent":true,"euler_number":2,"volume":1.0,"bounds":[[0,0,0],[1,1,1]],"has_texture":false}'
`

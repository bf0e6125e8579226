package backend_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"meshforge/internal/backend"
	"meshforge/internal/config"
	"meshforge/internal/services"
)

type recordingGenerator struct {
	name     string
	requests []backend.Request
}

func (g *recordingGenerator) Generate(_ context.Context, req backend.Request) (string, error) {
	g.requests = append(g.requests, req)
	return req.OutputPath, nil
}

func newTable() (map[backend.Model]backend.Generator, map[backend.Model]*recordingGenerator) {
	recs := map[backend.Model]*recordingGenerator{}
	gens := map[backend.Model]backend.Generator{}
	for _, m := range backend.Models() {
		rec := &recordingGenerator{name: string(m)}
		recs[m] = rec
		gens[m] = rec
	}
	return gens, recs
}

func TestDispatcherSelectsExactModel(t *testing.T) {
	gens, recs := newTable()
	d, err := backend.NewDispatcher(gens)
	if err != nil {
		t.Fatalf("NewDispatcher returned error: %v", err)
	}
	for _, m := range backend.Models() {
		g, err := d.Select(m)
		if err != nil {
			t.Fatalf("Select(%s) returned error: %v", m, err)
		}
		if g.(*recordingGenerator).name != recs[m].name {
			t.Fatalf("Select(%s) returned generator %s", m, g.(*recordingGenerator).name)
		}
	}
	if _, err := d.Select(backend.Model("other")); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown model, got %v", err)
	}
}

func TestNewDispatcherRequiresEveryModel(t *testing.T) {
	gens, _ := newTable()
	delete(gens, backend.ModelFast)
	if _, err := backend.NewDispatcher(gens); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestDispatcherGenerateResolvesDefaults(t *testing.T) {
	gens, recs := newTable()
	d, err := backend.NewDispatcher(gens)
	if err != nil {
		t.Fatalf("NewDispatcher returned error: %v", err)
	}
	seed := int64(42)
	req := backend.Request{Prompt: "robot", Seed: &seed, Steps: 30, Guidance: 7.5, Width: 768, OutputPath: "/out/img.png"}
	if _, err := d.Generate(context.Background(), backend.ModelFast, req); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	want := req
	want.Height = 512
	if diff := cmp.Diff([]backend.Request{want}, recs[backend.ModelFast].requests); diff != "" {
		t.Fatalf("unexpected requests (-want +got):\n%s", diff)
	}
	if len(recs[backend.ModelBaseline].requests) != 0 {
		t.Fatal("baseline generator should not be invoked")
	}
}

type fakeExecutor struct {
	binary string
	args   []string
	write  bool
	err    error
}

func (f *fakeExecutor) Run(_ context.Context, binary string, args []string, onLine func(string)) error {
	f.binary = binary
	f.args = append([]string(nil), args...)
	if onLine != nil {
		onLine("loading weights")
	}
	if f.err != nil {
		return f.err
	}
	if f.write {
		for i, arg := range args {
			if arg == "--output" && i+1 < len(args) {
				return os.WriteFile(args[i+1], []byte("png"), 0o644)
			}
		}
	}
	return nil
}

func (f *fakeExecutor) Output(context.Context, string, []string) ([]byte, error) {
	return nil, errors.New("not used")
}

func TestCommandGeneratorBuildsArguments(t *testing.T) {
	exec := &fakeExecutor{write: true}
	g, err := backend.NewCommandGenerator(backend.ModelBaseline, config.Command{"python3", "gen.py"}, backend.WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewCommandGenerator returned error: %v", err)
	}
	out := filepath.Join(t.TempDir(), "images", "img_x.png")
	seed := int64(123)
	path, err := g.Generate(context.Background(), backend.Request{
		Prompt: "a sword", Seed: &seed, Steps: 15, Guidance: 5, Width: 512, Height: 512, OutputPath: out,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if path != out {
		t.Fatalf("unexpected path: %q", path)
	}
	if exec.binary != "python3" {
		t.Fatalf("unexpected binary: %q", exec.binary)
	}
	want := "gen.py --prompt a sword --steps 15 --guidance 5 --width 512 --height 512 --output " + out + " --seed 123"
	if got := strings.Join(exec.args, " "); got != want {
		t.Fatalf("unexpected args:\n got %q\nwant %q", got, want)
	}
}

func TestCommandGeneratorOmitsUnsetSeed(t *testing.T) {
	exec := &fakeExecutor{write: true}
	g, err := backend.NewCommandGenerator(backend.ModelFast, config.Command{"gen"}, backend.WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewCommandGenerator returned error: %v", err)
	}
	out := filepath.Join(t.TempDir(), "img.png")
	if _, err := g.Generate(context.Background(), backend.Request{Prompt: "p", Steps: 1, Width: 1, Height: 1, OutputPath: out}); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	for _, arg := range exec.args {
		if arg == "--seed" {
			t.Fatalf("unexpected --seed in %q", exec.args)
		}
	}
}

func TestCommandGeneratorFailsWhenImageMissing(t *testing.T) {
	exec := &fakeExecutor{}
	g, err := backend.NewCommandGenerator(backend.ModelFast, config.Command{"gen"}, backend.WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewCommandGenerator returned error: %v", err)
	}
	_, err = g.Generate(context.Background(), backend.Request{Prompt: "p", Steps: 1, Width: 1, Height: 1, OutputPath: filepath.Join(t.TempDir(), "img.png")})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestCommandGeneratorWrapsCommandFailure(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("exit status 1")}
	g, err := backend.NewCommandGenerator(backend.ModelFast, config.Command{"gen"}, backend.WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewCommandGenerator returned error: %v", err)
	}
	_, err = g.Generate(context.Background(), backend.Request{Prompt: "p", Steps: 1, Width: 1, Height: 1, OutputPath: filepath.Join(t.TempDir(), "img.png")})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestFromConfigRejectsUnknownBackendKey(t *testing.T) {
	cfg := config.Default()
	cfg.Backends["dalle"] = config.Backend{Command: config.Command{"dalle"}}
	if _, err := backend.FromConfig(&cfg); err == nil {
		t.Fatal("expected error for unknown backend key")
	}
}

func TestFromConfigRequiresAllModels(t *testing.T) {
	cfg := config.Default()
	delete(cfg.Backends, "high-res")
	if _, err := backend.FromConfig(&cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

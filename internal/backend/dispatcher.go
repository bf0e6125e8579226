package backend

import (
	"context"
	"fmt"
	"sort"

	"meshforge/internal/config"
	"meshforge/internal/services"
)

// Dispatcher maps each model to its generator. Selection never falls back.
type Dispatcher struct {
	generators map[Model]Generator
}

// NewDispatcher requires a generator for every supported model.
func NewDispatcher(generators map[Model]Generator) (*Dispatcher, error) {
	table := make(map[Model]Generator, len(generators))
	for _, m := range Models() {
		g, ok := generators[m]
		if !ok || g == nil {
			return nil, services.Wrap(services.ErrConfiguration, "image", "configure backends",
				fmt.Sprintf("no generator for model %s", m), nil)
		}
		table[m] = g
	}
	return &Dispatcher{generators: table}, nil
}

// FromConfig builds command-backed generators from [backends.<model>]. Keys may
// use legacy aliases; a canonical key wins over an alias for the same model.
func FromConfig(cfg *config.Config, opts ...Option) (*Dispatcher, error) {
	commands := make(map[Model]config.Command, len(cfg.Backends))
	names := make([]string, 0, len(cfg.Backends))
	for name := range cfg.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m, err := ParseModel(name)
		if err != nil {
			return nil, fmt.Errorf("backends.%s: %w", name, err)
		}
		if _, seen := commands[m]; seen && name != string(m) {
			continue
		}
		if command, ok := cfg.BackendCommand(name); ok {
			commands[m] = command
		}
	}

	generators := make(map[Model]Generator, len(commands))
	for _, m := range Models() {
		command, ok := commands[m]
		if !ok {
			return nil, services.Wrap(services.ErrConfiguration, "image", "configure backends",
				fmt.Sprintf("backends.%s.command is not configured", m), nil)
		}
		allOpts := append([]Option{WithTimeout(cfg.CollaboratorTimeout())}, opts...)
		g, err := NewCommandGenerator(m, command, allOpts...)
		if err != nil {
			return nil, err
		}
		generators[m] = g
	}
	return NewDispatcher(generators)
}

// Select returns the generator for m.
func (d *Dispatcher) Select(m Model) (Generator, error) {
	g, ok := d.generators[m]
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "image", "select backend",
			fmt.Sprintf("unknown model %q", m), nil)
	}
	return g, nil
}

// Generate resolves unset dimensions from the model default and dispatches.
func (d *Dispatcher) Generate(ctx context.Context, m Model, req Request) (string, error) {
	g, err := d.Select(m)
	if err != nil {
		return "", err
	}
	res := ResolveResolution(m, req.Width, req.Height)
	req.Width, req.Height = res.Width, res.Height
	return g.Generate(ctx, req)
}

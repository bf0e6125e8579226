package pipeline

import (
	"log/slog"

	"meshforge/internal/backend"
	"meshforge/internal/config"
	"meshforge/internal/delivery"
	"meshforge/internal/logging"
	"meshforge/internal/mesh"
	"meshforge/internal/services"
	"meshforge/internal/validation"
)

// FromConfig builds a Controller backed by the configured collaborator
// commands. Delivery is attached only when [delivery] is enabled.
func FromConfig(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "config", "wire pipeline", "configuration required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	images, err := backend.FromConfig(cfg, backend.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	meshes := mesh.NewClient(cfg, mesh.WithLogger(logger))
	collab := Collaborators{
		Images:        images,
		Reconstructor: meshes,
		Cleaner:       meshes,
		Converter:     meshes,
		Inspector:     validation.NewInspector(cfg, validation.WithLogger(logger)),
	}
	if cfg.Delivery.Enabled {
		publisher, err := delivery.NewPublisher(cfg.Delivery, delivery.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		collab.Publisher = publisher
	}
	all := append([]Option{
		WithLogger(logger),
		WithRetryPolicy(RetryPolicyFromConfig(cfg.Retry, logger)),
	}, opts...)
	return NewController(collab, all...), nil
}

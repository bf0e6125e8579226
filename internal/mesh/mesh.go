package mesh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"meshforge/internal/config"
	"meshforge/internal/layout"
	"meshforge/internal/logging"
	"meshforge/internal/services"
)

// ReconstructRequest describes one image-to-mesh call.
type ReconstructRequest struct {
	ImagePath string
	// OutputOBJ is the requested obj; its directory becomes the reconstructor's
	// output directory.
	OutputOBJ   string
	BakeTexture bool
	// Resolution is the marching cubes resolution; zero uses mesh.resolution.
	Resolution int
}

// Reconstructor converts an image into a raw mesh.
type Reconstructor interface {
	Reconstruct(ctx context.Context, req ReconstructRequest) (string, error)
}

// Cleaner repairs a raw mesh.
type Cleaner interface {
	Clean(ctx context.Context, inputPath, outputPath string) (string, error)
}

// Converter converts a cleaned mesh to the delivery format.
type Converter interface {
	Convert(ctx context.Context, inputPath, outputPath string) (string, error)
}

// Client runs the configured mesh commands and implements all three roles.
type Client struct {
	settings config.Mesh
	exec     services.Executor
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithExecutor injects a custom command executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a mesh client from configuration.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		settings: cfg.Mesh,
		exec:     services.CommandExecutor{},
		timeout:  cfg.CollaboratorTimeout(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reconstruct runs the reconstruction command. The tool nests its output in a
// per-image folder, so the returned path is {dir}/0/mesh.obj.
func (c *Client) Reconstruct(ctx context.Context, req ReconstructRequest) (string, error) {
	if strings.TrimSpace(req.ImagePath) == "" || strings.TrimSpace(req.OutputOBJ) == "" {
		return "", services.Wrap(services.ErrConfiguration, "mesh", "reconstruct", "image and output paths required", nil)
	}
	if _, err := os.Stat(req.ImagePath); err != nil {
		return "", services.Wrap(services.ErrNotFound, "mesh", "reconstruct", "input image missing", err)
	}
	outputDir := filepath.Dir(req.OutputOBJ)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create mesh directory: %w", err)
	}

	resolution := req.Resolution
	if resolution <= 0 {
		resolution = c.settings.Resolution
	}
	args := c.settings.ReconstructCommand.Args(
		req.ImagePath,
		"--output-dir", outputDir,
		"--mc-resolution", strconv.Itoa(resolution),
		"--foreground-ratio", strconv.FormatFloat(c.settings.ForegroundRatio, 'f', -1, 64),
	)
	if req.BakeTexture {
		args = append(args, "--bake-texture", "--texture-resolution", strconv.Itoa(c.settings.TextureResolution))
	}

	if err := c.run(ctx, "reconstruct", c.settings.ReconstructCommand, args); err != nil {
		return "", err
	}
	actual := filepath.Join(outputDir, layout.NestedOutputDir, layout.RawMeshFile)
	return verifyOutput("reconstruct", actual)
}

// Clean runs the cleanup command with --input and --output.
func (c *Client) Clean(ctx context.Context, inputPath, outputPath string) (string, error) {
	return c.transform(ctx, "clean", c.settings.CleanupCommand, inputPath, outputPath)
}

// Convert runs the conversion command with --input and --output.
func (c *Client) Convert(ctx context.Context, inputPath, outputPath string) (string, error) {
	return c.transform(ctx, "convert", c.settings.ConvertCommand, inputPath, outputPath)
}

func (c *Client) transform(ctx context.Context, operation string, command config.Command, inputPath, outputPath string) (string, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return "", services.Wrap(services.ErrNotFound, "postprocess", operation, "input mesh missing", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", fmt.Errorf("create processed directory: %w", err)
	}
	args := command.Args("--input", inputPath, "--output", outputPath)
	if err := c.run(ctx, operation, command, args); err != nil {
		return "", err
	}
	return verifyOutput(operation, outputPath)
}

func (c *Client) run(ctx context.Context, operation string, command config.Command, args []string) error {
	runCtx, cancel := services.WithTimeout(ctx, c.timeout)
	defer cancel()

	logger := logging.WithContext(ctx, c.logger).With(logging.String("operation", operation))
	logger.Debug("mesh command starting", logging.String("command", command.String()))
	err := c.exec.Run(runCtx, command.Binary(), args, func(line string) {
		logger.Debug("mesh command output", logging.String("line", line))
	})
	return services.ClassifyCommandError(runCtx, "mesh", operation, err)
}

func verifyOutput(operation, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrExternalTool, "mesh", operation,
				fmt.Sprintf("expected output %s was not created", path), err)
		}
		return "", fmt.Errorf("stat %s output: %w", operation, err)
	}
	return path, nil
}

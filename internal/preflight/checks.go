package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sys/unix"

	"meshforge/internal/backend"
	"meshforge/internal/config"
	"meshforge/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckObjectStore verifies the delivery bucket is reachable with the
// configured credentials. It uses a 5-second timeout and does not create the
// bucket.
func CheckObjectStore(ctx context.Context, cfg config.Delivery) Result {
	const name = "Object storage"

	if strings.TrimSpace(cfg.Endpoint) == "" {
		return Result{Name: name, Detail: "missing endpoint"}
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return Result{Name: name, Detail: "missing credentials"}
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid endpoint (%v)", err)}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(checkCtx, cfg.Bucket)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Result{Name: name, Detail: "bucket check timed out (endpoint unresponsive)"}
	case err != nil:
		return Result{Name: name, Detail: fmt.Sprintf("bucket check failed (%v)", err)}
	case !exists:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable; bucket %q will be created on first upload", cfg.Bucket)}
	default:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("bucket %q reachable", cfg.Bucket)}
	}
}

// CheckSystemDeps evaluates every configured collaborator command. Both the
// deps command and the worker use this to avoid duplicating the list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	var requirements []deps.Requirement
	for _, m := range backend.Models() {
		command, _ := cfg.BackendCommand(string(m))
		requirements = append(requirements, deps.Requirement{
			Name:        "Image backend (" + m.String() + ")",
			Command:     command.Binary(),
			Description: "Required for image generation with --model " + m.String(),
		})
	}
	requirements = append(requirements,
		deps.Requirement{
			Name:        "Mesh reconstruction",
			Command:     cfg.Mesh.ReconstructCommand.Binary(),
			Description: "Required unless --skip-mesh",
		},
		deps.Requirement{
			Name:        "Mesh cleanup",
			Command:     cfg.Mesh.CleanupCommand.Binary(),
			Description: "Required unless --skip-postprocess",
		},
		deps.Requirement{
			Name:        "GLB conversion",
			Command:     cfg.Mesh.ConvertCommand.Binary(),
			Description: "Required unless --skip-postprocess",
		},
		deps.Requirement{
			Name:        "Mesh validation",
			Command:     cfg.Validation.Command.Binary(),
			Description: "Used by meshforge validate",
			Optional:    true,
		},
	)
	return deps.CheckBinaries(requirements)
}

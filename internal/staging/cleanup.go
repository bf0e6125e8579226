package staging

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"meshforge/internal/logging"
)

// TempDirName is the per-grid-point working directory name.
const TempDirName = "temp"

// CleanupResult contains the outcome of a best-effort cleanup pass.
type CleanupResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// OK reports whether every removal succeeded.
func (r CleanupResult) OK() bool {
	return len(r.Errors) == 0
}

// RemoveNamedDirs removes every directory under root whose base name is exactly
// name. Removed directories are not descended into. Failures are collected and
// logged, never returned as an error.
func RemoveNamedDirs(ctx context.Context, root, name string, logger *slog.Logger) CleanupResult {
	result := CleanupResult{}
	root = strings.TrimSpace(root)
	if root == "" || name == "" {
		return result
	}

	var targets []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path != root {
				result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			return err
		}
		if d.IsDir() && d.Name() == name && path != root {
			targets = append(targets, path)
			return fs.SkipDir
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, fs.ErrNotExist) {
		result.Errors = append(result.Errors, CleanupError{Path: root, Error: walkErr})
	}

	sort.Strings(targets)
	for _, dir := range targets {
		if err := os.RemoveAll(dir); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
			continue
		}
		result.Removed = append(result.Removed, dir)
	}

	logResult(logger, root, name, result)
	return result
}

func logResult(logger *slog.Logger, root, name string, result CleanupResult) {
	if logger == nil {
		return
	}
	for _, failure := range result.Errors {
		logger.Warn("failed to remove working directory",
			logging.String("path", failure.Path),
			logging.Error(failure.Error),
			logging.String(logging.FieldEventType, "cleanup_failed"),
			logging.String(logging.FieldErrorHint, "check permissions under the sweep output directory"),
			logging.String(logging.FieldImpact, "intermediate files left on disk"),
		)
	}
	logger.Info("working directories removed",
		logging.String("root", root),
		logging.String("name", name),
		logging.Int("removed", len(result.Removed)),
		logging.Int("errors", len(result.Errors)),
		logging.String(logging.FieldEventType, "cleanup"),
	)
}

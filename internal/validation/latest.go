package validation

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"meshforge/internal/layout"
	"meshforge/internal/services"
)

// Latest returns the most recently modified GLB under {root}/processed_meshes,
// falling back to the newest *_cleaned.obj when no GLB exists.
func Latest(root string) (string, error) {
	processed := layout.New(root).ProcessedRoot()
	var (
		glbPath, objPath string
		glbTime, objTime time.Time
	)
	err := filepath.WalkDir(processed, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		isGLB := strings.HasSuffix(name, ".glb")
		isCleaned := strings.HasSuffix(name, "_cleaned.obj")
		if !isGLB && !isCleaned {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		mod := info.ModTime()
		if isGLB && (glbPath == "" || mod.After(glbTime)) {
			glbPath, glbTime = path, mod
		}
		if isCleaned && (objPath == "" || mod.After(objTime)) {
			objPath, objTime = path, mod
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", services.Wrap(services.ErrNotFound, "validate", "find latest",
				fmt.Sprintf("%s does not exist", processed), nil)
		}
		return "", fmt.Errorf("scan processed meshes: %w", err)
	}
	if glbPath != "" {
		return glbPath, nil
	}
	if objPath != "" {
		return objPath, nil
	}
	return "", services.Wrap(services.ErrNotFound, "validate", "find latest",
		fmt.Sprintf("no processed mesh under %s", processed), nil)
}

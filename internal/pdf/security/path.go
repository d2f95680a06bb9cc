package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathValidator confines file access to a set of root directories. The first
// root resolves relative paths.
type PathValidator struct {
	roots []string
}

// NewPathValidator creates a validator for the given directories
func NewPathValidator(roots ...string) (*PathValidator, error) {
	v := &PathValidator{}
	for _, root := range roots {
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve directory %s: %w", root, err)
		}
		v.roots = append(v.roots, filepath.Clean(abs))
	}
	if len(v.roots) == 0 {
		return nil, fmt.Errorf("configured directory cannot be empty")
	}
	return v, nil
}

// Root returns the directory relative paths resolve against
func (v *PathValidator) Root() string {
	return v.roots[0]
}

// Resolve returns the absolute, cleaned form of path after checking it lies
// within one of the roots
func (v *PathValidator) Resolve(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(v.Root(), path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if err := v.ValidatePath(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// ValidatePath checks that path lies within one of the roots
func (v *PathValidator) ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	for _, root := range v.roots {
		if within(abs, root) {
			return nil
		}
	}
	return fmt.Errorf("path is outside configured directories: %s", path)
}

// within reports whether path is root or below it, following symlinks of
// both when they exist
func within(path, root string) bool {
	clean := filepath.Clean(path)
	real := clean
	if resolved, err := filepath.EvalSymlinks(clean); err == nil {
		real = resolved
	} else if resolved, err := filepath.EvalSymlinks(filepath.Dir(clean)); err == nil {
		// files about to be written do not exist yet
		real = filepath.Join(resolved, filepath.Base(clean))
	}

	realRoot := root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		realRoot = resolved
	}

	return (hasPrefix(clean, root) || hasPrefix(clean, realRoot)) &&
		(hasPrefix(real, root) || hasPrefix(real, realRoot))
}

func hasPrefix(path, dir string) bool {
	if path == dir {
		return true
	}
	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}
	return strings.HasPrefix(path, dir)
}

// ValidateDirectory checks that dir lies within the roots and, when it
// exists, is a directory
func (v *PathValidator) ValidateDirectory(dir string) error {
	if err := v.ValidatePath(dir); err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}
	return nil
}

// Package adapter contains infrastructure adapters: the external build tool, the filesystem,
// the displayed node tree and persisted reports.
package adapter

import (
	"fmt"
	"os"
	"path/filepath"

	m "tessel.dev/pkg/tessel/internal/model"
)

// workspaceMarkers are the files that mark a workspace root, in lookup order.
var workspaceMarkers = []string{"MODULE.bazel", "WORKSPACE.bazel", "WORKSPACE"}

// buildFileNames are the package build file names, in lookup order.
var buildFileNames = []string{"BUILD.bazel", "BUILD"}

// SourceFSAdapter abstracts filesystem operations the domain layer needs. It hides direct
// `os` access so discovery, reconciliation and report parsing can be tested without a disk.
type SourceFSAdapter interface {
	// Walk traverses the provided root path. When recursive is false the
	// implementation limits itself to the root directory (no sub-dirs).
	Walk(root m.Path, recursive bool, fn FilepathWalkFunc) error

	// ReadFile loads a file from disk and returns its contents.
	ReadFile(path m.Path) ([]byte, error)

	// FileInfo returns metadata for a path.
	FileInfo(path m.Path) (os.FileInfo, error)

	// Exists reports whether path exists.
	Exists(path m.Path) bool

	// FindWorkspaceRoot searches for a workspace marker walking up the directory tree.
	FindWorkspaceRoot(startPath m.Path) (m.Path, error)

	// BuildFile returns the build file of the package directory, if there is one.
	BuildFile(pkgDir m.Path) (m.Path, bool)

	// RelPath returns the relative path from base to target.
	RelPath(base, target m.Path) (m.Path, error)

	// JoinPath joins path elements into a single path.
	JoinPath(elem ...string) m.Path
}

// FilepathWalkFunc mirrors the callback shape used by filepath.Walk. It is
// defined here to avoid leaking the standard-library type into the domain layer.
type FilepathWalkFunc func(path string, info os.FileInfo, err error) error

// LocalSourceFSAdapter is the os-backed SourceFSAdapter.
type LocalSourceFSAdapter struct{}

// NewLocalSourceFSAdapter constructs a LocalSourceFSAdapter.
func NewLocalSourceFSAdapter() *LocalSourceFSAdapter {
	return &LocalSourceFSAdapter{}
}

// Walk iterates over files under root, optionally descending into subdirectories.
func (a *LocalSourceFSAdapter) Walk(root m.Path, recursive bool, fn FilepathWalkFunc) error {
	rootStr := string(root)

	return filepath.Walk(rootStr, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fn(path, info, err)
		}

		if info.IsDir() && !recursive && path != rootStr {
			return filepath.SkipDir
		}

		return fn(path, info, nil)
	})
}

// ReadFile loads file contents from disk.
func (a *LocalSourceFSAdapter) ReadFile(path m.Path) ([]byte, error) {
	return os.ReadFile(string(path))
}

// FileInfo returns os.FileInfo metadata for the given path.
func (a *LocalSourceFSAdapter) FileInfo(path m.Path) (os.FileInfo, error) {
	return os.Stat(string(path))
}

// Exists reports whether the path exists.
func (a *LocalSourceFSAdapter) Exists(path m.Path) bool {
	if path == "" {
		return false
	}

	_, err := os.Stat(string(path))

	return err == nil
}

// FindWorkspaceRoot searches for a workspace marker walking up the directory tree.
func (a *LocalSourceFSAdapter) FindWorkspaceRoot(startPath m.Path) (m.Path, error) {
	dir, err := filepath.Abs(string(startPath))
	if err != nil {
		return "", err
	}

	if info, statErr := os.Stat(dir); statErr == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	for {
		for _, marker := range workspaceMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return m.Path(dir), nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("workspace root not found in any parent directory of %s", startPath)
		}

		dir = parent
	}
}

// BuildFile returns BUILD.bazel or BUILD inside pkgDir.
func (a *LocalSourceFSAdapter) BuildFile(pkgDir m.Path) (m.Path, bool) {
	for _, name := range buildFileNames {
		candidate := filepath.Join(string(pkgDir), name)
		if _, err := os.Stat(candidate); err == nil {
			return m.Path(candidate), true
		}
	}

	return "", false
}

// RelPath returns the relative path from base to target.
func (a *LocalSourceFSAdapter) RelPath(base, target m.Path) (m.Path, error) {
	rel, err := filepath.Rel(string(base), string(target))
	if err != nil {
		return "", err
	}

	return m.Path(rel), nil
}

// JoinPath joins path elements into a single path.
func (a *LocalSourceFSAdapter) JoinPath(elem ...string) m.Path {
	return m.Path(filepath.Join(elem...))
}

// IsBuildFile reports whether the base name of path is a build or workspace file.
func IsBuildFile(path string) bool {
	base := filepath.Base(path)

	for _, name := range buildFileNames {
		if base == name {
			return true
		}
	}

	for _, name := range workspaceMarkers {
		if base == name {
			return true
		}
	}

	return false
}

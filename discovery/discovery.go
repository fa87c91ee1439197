// Package discovery resolves packages and their test and post-process scripts
// from a packages root directory using file name conventions.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/log"

	"github.com/sot/testr/types"
)

// Resolver enumerates packages and scripts under a packages root
type Resolver struct {
	root string
	log  log.Logger
}

// NewResolver creates a resolver rooted at packagesDir
func NewResolver(packagesDir string, logger log.Logger) *Resolver {
	if logger == nil {
		logger = log.Root()
	}
	return &Resolver{root: packagesDir, log: logger}
}

// Packages returns every sub-directory of the packages root in lexicographic order.
// An unreadable root is returned as an error.
func (r *Resolver) Packages() ([]types.Package, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read packages directory %s: %w", r.root, err)
	}

	absRoot, err := filepath.Abs(r.root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for %s: %w", r.root, err)
	}

	var packages []types.Package
	for _, entry := range entries {
		if !isDir(filepath.Join(absRoot, entry.Name()), entry) {
			continue
		}
		packages = append(packages, types.Package{
			Name: entry.Name(),
			Path: filepath.Join(absRoot, entry.Name()),
		})
	}

	// os.ReadDir already sorts by name, keep the guarantee explicit
	sort.Slice(packages, func(i, j int) bool { return packages[i].Name < packages[j].Name })
	return packages, nil
}

// Scripts returns the ordered script entries of one package: tests first, then
// post-process scripts, each in file name order.
func (r *Resolver) Scripts(pkg types.Package) ([]types.ScriptEntry, error) {
	entries, err := os.ReadDir(pkg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory %s: %w", pkg.Path, err)
	}

	var scripts []types.ScriptEntry
	for _, entry := range entries {
		info, err := fileInfo(filepath.Join(pkg.Path, entry.Name()), entry)
		if err != nil {
			r.log.Warn("Skipping unreadable file", "package", pkg.Name, "file", entry.Name(), "error", err)
			continue
		}
		kind, interpreter, ok := types.ClassifyScript(entry.Name(), info.Mode())
		if !ok {
			continue
		}
		scripts = append(scripts, types.ScriptEntry{
			Package:     pkg.Name,
			File:        entry.Name(),
			Kind:        kind,
			Interpreter: interpreter,
		})
	}

	sort.SliceStable(scripts, func(i, j int) bool { return types.ScriptLess(scripts[i], scripts[j]) })
	return scripts, nil
}

// Resolve returns the packages together with the ordered script entries of all of
// them. A package directory that cannot be listed is skipped with a warning.
func (r *Resolver) Resolve() ([]types.Package, []types.ScriptEntry, error) {
	packages, err := r.Packages()
	if err != nil {
		return nil, nil, err
	}

	var all []types.ScriptEntry
	for _, pkg := range packages {
		scripts, err := r.Scripts(pkg)
		if err != nil {
			r.log.Warn("Skipping package that cannot be listed", "package", pkg.Name, "error", err)
			continue
		}
		r.log.Debug("Resolved package", "package", pkg.Name, "scripts", len(scripts))
		all = append(all, scripts...)
	}
	return packages, all, nil
}

// isDir follows symlinks so that linked package directories are accepted
func isDir(path string, entry os.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileInfo(path string, entry os.DirEntry) (os.FileInfo, error) {
	if entry.Type()&os.ModeSymlink != 0 {
		return os.Stat(path)
	}
	return entry.Info()
}

package logging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

const (
	// LastLinkName is the symlink in the outputs dir that points at the latest run
	LastLinkName = "last"
	// RunLogFilename is the log of the whole run inside the run directory
	RunLogFilename = "test.log"
)

// PrepareRunDir creates <outputsDir>/<subdir> and points the `last` link at it.
// An existing directory is reused with a warning unless overwrite is set, in
// which case it is removed first.
func PrepareRunDir(outputsDir, subdir string, overwrite bool, logger log.Logger) (string, error) {
	runDir := filepath.Join(outputsDir, subdir)

	_, err := os.Stat(runDir)
	switch {
	case err == nil && overwrite:
		logger.Info("Removing existing output directory", "dir", runDir)
		if err := os.RemoveAll(runDir); err != nil {
			return "", fmt.Errorf("failed to remove output directory %s: %w", runDir, err)
		}
	case err == nil:
		logger.Warn("Reusing existing output directory", "dir", runDir)
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("failed to stat output directory %s: %w", runDir, err)
	}

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", runDir, err)
	}
	if err := updateLastLink(outputsDir, subdir); err != nil {
		return "", err
	}
	return runDir, nil
}

func updateLastLink(outputsDir, subdir string) error {
	link := filepath.Join(outputsDir, LastLinkName)
	if _, err := os.Lstat(link); err == nil {
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("failed to remove %s: %w", link, err)
		}
	}
	if err := os.Symlink(subdir, link); err != nil {
		return fmt.Errorf("failed to link %s: %w", link, err)
	}
	return nil
}

// Workspace lays out one run: each package is copied from the packages dir
// into the run directory and its scripts run in that copy.
type Workspace struct {
	packagesDir string
	runDir      string
	regressDir  string
	log         log.Logger
}

// NewWorkspace creates a Workspace
func NewWorkspace(packagesDir, runDir, regressDir string, logger log.Logger) *Workspace {
	if logger == nil {
		logger = log.Root()
	}
	return &Workspace{
		packagesDir: packagesDir,
		runDir:      runDir,
		regressDir:  regressDir,
		log:         logger,
	}
}

// PackageOutDir is where the scripts of pkg run
func (w *Workspace) PackageOutDir(pkg string) string {
	return filepath.Join(w.runDir, pkg)
}

// RegressDir is where the scripts of pkg put files for regression comparison
func (w *Workspace) RegressDir(pkg string) string {
	return filepath.Join(w.regressDir, pkg)
}

// PreparePackage replaces any previous copy of pkg in the run directory with a
// fresh copy of its input directory.
func (w *Workspace) PreparePackage(pkg string) (string, error) {
	src := filepath.Join(w.packagesDir, pkg)
	dst := w.PackageOutDir(pkg)

	if _, err := os.Lstat(dst); err == nil {
		w.log.Info("Removing existing output dir", "dir", dst)
		if err := os.RemoveAll(dst); err != nil {
			return "", fmt.Errorf("failed to remove %s: %w", dst, err)
		}
	}

	w.log.Info("Copying input tests to output dir", "src", src, "dst", dst)
	if err := CopyTree(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// CopyTree copies the directory src to dst, preserving file modes and
// symlinks. Editor backup files ending in ~ are left out.
func CopyTree(src, dst string) error {
	root, err := filepath.EvalSymlinks(src)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", src, err)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if strings.HasSuffix(d.Name(), "~") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0700)
		case info.Mode()&fs.ModeSymlink != 0:
			dest, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(dest, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

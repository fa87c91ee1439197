package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sot/testr/types"
)

func writeFile(t *testing.T, path string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), mode))
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "py_package", "test_unit.py"), 0644)
	writeFile(t, filepath.Join(root, "py_package", "post_check_logs.py"), 0644)
	writeFile(t, filepath.Join(root, "py_package", "helpers.py"), 0644)
	writeFile(t, filepath.Join(root, "py_package", "test_data.txt"), 0644)
	writeFile(t, filepath.Join(root, "other_package", "test_regress_long.sh"), 0644)
	writeFile(t, filepath.Join(root, "other_package", "test_native"), 0755)
	writeFile(t, filepath.Join(root, "other_package", "post_a.sh"), 0644)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty_package"), 0755))
	writeFile(t, filepath.Join(root, "README.md"), 0644)

	r := NewResolver(root, log.New())
	packages, scripts, err := r.Resolve()
	require.NoError(t, err)

	var names []string
	for _, p := range packages {
		names = append(names, p.Name)
		assert.True(t, filepath.IsAbs(p.Path))
	}
	assert.Equal(t, []string{"empty_package", "other_package", "py_package"}, names)

	var paths []string
	for _, s := range scripts {
		paths = append(paths, s.Path())
	}
	assert.Equal(t, []string{
		"other_package/test_native",
		"other_package/test_regress_long.sh",
		"other_package/post_a.sh",
		"py_package/test_unit.py",
		"py_package/post_check_logs.py",
	}, paths)

	assert.Equal(t, types.InterpreterNative, scripts[0].Interpreter)
	assert.Equal(t, types.InterpreterShell, scripts[1].Interpreter)
	assert.Equal(t, types.KindPost, scripts[2].Kind)
	assert.Equal(t, types.InterpreterPython, scripts[3].Interpreter)
}

func TestResolveEmptyPackageIsLegal(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "nothing_here"), 0755))

	packages, scripts, err := NewResolver(root, log.New()).Resolve()
	require.NoError(t, err)
	assert.Len(t, packages, 1)
	assert.Empty(t, scripts)
}

func TestResolveMissingRoot(t *testing.T) {
	_, _, err := NewResolver(filepath.Join(t.TempDir(), "missing"), log.New()).Resolve()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read packages directory")
}

func TestResolveFollowsSymlinks(t *testing.T) {
	root := t.TempDir()
	elsewhere := t.TempDir()
	writeFile(t, filepath.Join(elsewhere, "linked", "test_linked.sh"), 0644)
	require.NoError(t, os.Symlink(filepath.Join(elsewhere, "linked"), filepath.Join(root, "linked")))

	packages, scripts, err := NewResolver(root, log.New()).Resolve()
	require.NoError(t, err)
	require.Len(t, packages, 1)
	assert.Equal(t, "linked", packages[0].Name)
	require.Len(t, scripts, 1)
	assert.Equal(t, "linked/test_linked.sh", scripts[0].Path())
}

func TestResolveSkipsUnlistablePackage(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "good", "test_a.sh"), 0644)
	writeFile(t, filepath.Join(root, "locked", "test_b.sh"), 0644)
	require.NoError(t, os.Chmod(filepath.Join(root, "locked"), 0))
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(root, "locked"), 0755) })

	packages, scripts, err := NewResolver(root, log.New()).Resolve()
	require.NoError(t, err)
	assert.Len(t, packages, 2)
	require.Len(t, scripts, 1)
	assert.Equal(t, "good/test_a.sh", scripts[0].Path())
}

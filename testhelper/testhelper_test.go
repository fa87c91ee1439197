package testhelper

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPathsAndDirs(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	assert.True(t, HasPaths(dir, file))
	assert.False(t, HasPaths(dir, filepath.Join(dir, "missing")))
	assert.True(t, HasDirs(dir))
	assert.False(t, HasDirs(file))

	t.Setenv("TESTHELPER_DIR", dir)
	assert.True(t, HasDirs("$TESTHELPER_DIR"))
	assert.True(t, HasPaths("${TESTHELPER_DIR}/file.txt"))
}

func TestPlatformChecks(t *testing.T) {
	assert.Equal(t, runtime.GOOS == "linux", IsLinux())
	assert.Equal(t, runtime.GOOS == "darwin", IsMac())
	assert.Equal(t, runtime.GOOS == "windows", IsWindows())
	count := 0
	for _, b := range []bool{IsLinux(), IsMac(), IsWindows()} {
		if b {
			count++
		}
	}
	assert.LessOrEqual(t, count, 1)
}

func TestHasSybase(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SYBASE", dir)
	t.Setenv("SYBASE_OCS", "OCS-16_0")
	assert.False(t, HasSybase())

	lib := filepath.Join(dir, "OCS-16_0", "python", "python34_64r", "lib")
	require.NoError(t, os.MkdirAll(lib, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(lib, "sybpydb.so"), nil, 0644))
	assert.True(t, HasSybase())
}

func TestIsHeadAddress(t *testing.T) {
	assert.True(t, isHeadAddress("131.142.52.10"))
	assert.True(t, isHeadAddress("131.142.184.3"))
	assert.False(t, isHeadAddress("131.142.60.1"))
	assert.False(t, isHeadAddress("10.0.0.1"))
	assert.False(t, isHeadAddress("not-an-ip"))
}

func TestLookup(t *testing.T) {
	fn, err := Lookup("is_linux")
	require.NoError(t, err)
	assert.Equal(t, IsLinux(), fn())

	_, err = Lookup("is_amiga")
	require.Error(t, err)
}

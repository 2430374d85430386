package pwsfile

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/pwsafe/pkg/field"
)

func TestCheckDiskSpace(t *testing.T) {
	dir := t.TempDir()

	info, err := CheckDiskSpace(filepath.Join(dir, "not-yet.psafe3"))
	require.NoError(t, err)
	assert.NotZero(t, info.Total)
	assert.LessOrEqual(t, info.Available, info.Total)
	assert.GreaterOrEqual(t, info.UsedPct, 0)
	assert.LessOrEqual(t, info.UsedPct, 100)
}

func TestDiskSpaceInfo(t *testing.T) {
	info := newDiskSpaceInfo(1000, 50, 40)
	assert.Equal(t, 95, info.UsedPct)
	assert.True(t, info.Low())

	info = newDiskSpaceInfo(1000, 500, 500)
	assert.Equal(t, 50, info.UsedPct)
	assert.False(t, info.Low())

	assert.Zero(t, newDiskSpaceInfo(0, 0, 0).UsedPct)
}

func TestCheckPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on Windows")
	}
	path := filepath.Join(t.TempDir(), "db.psafe3")
	f, err := New(field.V3)
	require.NoError(t, err)
	require.NoError(t, f.Save(path, passphrase))

	assert.NoError(t, CheckPermissions(path))

	require.NoError(t, os.Chmod(path, 0644))
	assert.ErrorIs(t, CheckPermissions(path), ErrInsecurePermissions)

	assert.ErrorIs(t, CheckPermissions(filepath.Join(t.TempDir(), "missing")), os.ErrNotExist)
}

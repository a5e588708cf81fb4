package pid_test

import (
	"os"
	"testing"

	"codeberg.org/mutker/vitalsim/internal/errors"
	"codeberg.org/mutker/vitalsim/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := pid.AcquireIn(dir, "device-1")
	require.NoError(t, err)
	assert.FileExists(t, pid.Path(dir, "device-1"))

	require.NoError(t, lock.Release())
	assert.NoFileExists(t, pid.Path(dir, "device-1"))
	require.NoError(t, lock.Release())
}

func TestAcquireHeldDevice(t *testing.T) {
	dir := t.TempDir()

	lock, err := pid.AcquireIn(dir, "device-1")
	require.NoError(t, err)
	defer lock.Release()

	_, err = pid.AcquireIn(dir, "device-1")
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))

	other, err := pid.AcquireIn(dir, "device-2")
	require.NoError(t, err)
	require.NoError(t, other.Release())
}

func TestAcquireTakesOverStaleFile(t *testing.T) {
	dir := t.TempDir()
	path := pid.Path(dir, "device-1")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o600))

	lock, err := pid.AcquireIn(dir, "device-1")
	require.NoError(t, err)
	defer lock.Release()
}

func TestPathSanitizesDeviceID(t *testing.T) {
	assert.Equal(t, "/run/vitalsim-ward_3_bed_1.pid", pid.Path("/run", "ward/3 bed:1"))
}

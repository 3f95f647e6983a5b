package envelope

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegularDirectorySymlink(t *testing.T) {
	now := time.Now()

	reg := NewRegular(now)
	assert.True(t, reg.Mode&ModeTypeMask == ModeRegular)
	assert.False(t, reg.IsDir())
	assert.False(t, reg.IsSymlink())

	dir := NewDirectory(now)
	assert.True(t, dir.IsDir())
	assert.EqualValues(t, 4, dir.Size)

	link := NewSymlink(now, 7)
	assert.True(t, link.IsSymlink())
	assert.EqualValues(t, 7, link.Size)
}

func TestHeadersRoundTrip(t *testing.T) {
	now := time.Now()
	e := NewRegular(now)
	e.Size = 42

	headers := e.ToHeaders()
	got := FromHeaders(headers, false, false, 0, now)

	assert.Equal(t, e.Mode, got.Mode)
	assert.Equal(t, e.Atime, got.Atime)
	assert.Equal(t, e.Mtime, got.Mtime)
	assert.Equal(t, e.Size, got.Size)
	assert.Equal(t, e.ACL, got.ACL)
}

func TestFromHeadersDefaultsWhenMissing(t *testing.T) {
	now := time.Now()
	got := FromHeaders(nil, true, false, 0, now)
	assert.True(t, got.IsDir())
	assert.EqualValues(t, 4, got.Size)

	got = FromHeaders(nil, false, false, 99, now)
	assert.EqualValues(t, ModeRegular|DefaultRegularPerm, got.Mode)
	assert.EqualValues(t, 99, got.Size)
}

func TestSidecarRoundTrip(t *testing.T) {
	e := NewRegular(time.Now())
	e.Fn = "bucket/path/file.txt"
	e.Size = 10

	var buf bytes.Buffer
	require.NoError(t, WriteSidecar(&buf, e))

	got, err := ReadSidecar(&buf)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestReadSidecarFile(t *testing.T) {
	e := NewRegular(time.Now())
	e.Fn = "bucket/key"

	dir := t.TempDir()
	path := filepath.Join(dir, "sidecar")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteSidecar(f, e))
	require.NoError(t, f.Close())

	got, err := ReadSidecarFile(path)
	require.NoError(t, err)
	assert.Equal(t, e.Fn, got.Fn)
	assert.Equal(t, e.Mode, got.Mode)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCredentialsValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(path, []byte("AKIAEXAMPLE\nsecretvalue\n"), 0o600))

	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "AKIAEXAMPLE", creds.AccessKeyID)
	assert.Equal(t, "secretvalue", creds.SecretAccessKey)
}

func TestLoadCredentialsRejectsWrongLineCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(path, []byte("onlyoneline\n"), 0o600))

	_, err := LoadCredentials(path)
	assert.Error(t, err)
}

func TestLoadCredentialsRejectsBlankLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(path, []byte("key\n\n"), 0o600))

	_, err := LoadCredentials(path)
	assert.Error(t, err)
}

func TestLoadCredentialsMissingFile(t *testing.T) {
	_, err := LoadCredentials(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultFile(), f)
}

func TestLoadOverlaysOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s3fs.yaml")
	yaml := "mount:\n  fsname: mybucket\ns3:\n  region: eu-west-1\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mybucket", f.Mount.FSName)
	assert.Equal(t, "eu-west-1", f.S3.Region)
	assert.Equal(t, 2, f.S3.MaxRetries) // untouched default survives
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/cache", "s3fs.yaml"), DefaultPath("/cache"))
}

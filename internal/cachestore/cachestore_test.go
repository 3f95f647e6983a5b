package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3fs-go/s3fs/internal/envelope"
	"github.com/s3fs-go/s3fs/internal/objectstore/fake"
)

func TestSlugDisambiguatesCollidingKeys(t *testing.T) {
	a := Slug("a/b")
	b := Slug("a-b")
	assert.Equal(t, a, b) // slugs can collide

	assert.NotEqual(t, keyHash("a/b"), keyHash("a-b"))
}

func TestEnsureLoadedDownloadsExistingObject(t *testing.T) {
	store := fake.New()
	store.Seed("k", []byte("hello"), nil)

	s := New(t.TempDir(), "bucket", store, nil)
	require.NoError(t, s.EnsureLoaded(context.Background(), "k"))
	assert.True(t, s.Exists("k"))

	data, err := s.ReadRange("k", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestEnsureLoadedMaterialisesEmptyFileOn404(t *testing.T) {
	s := New(t.TempDir(), "bucket", fake.New(), nil)
	require.NoError(t, s.EnsureLoaded(context.Background(), "missing"))
	assert.True(t, s.Exists("missing"))

	size, err := s.Size("missing")
	require.NoError(t, err)
	assert.EqualValues(t, 0, size)
}

func TestWriteRangeAndTruncate(t *testing.T) {
	s := New(t.TempDir(), "bucket", fake.New(), nil)
	require.NoError(t, s.EnsureLoaded(context.Background(), "k"))

	n, err := s.WriteRange("k", 0, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	require.NoError(t, s.Truncate("k", 5))
	size, err := s.Size("k")
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)

	data, err := s.ReadRange("k", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestWriteMetaThenClear(t *testing.T) {
	s := New(t.TempDir(), "bucket", fake.New(), nil)
	require.NoError(t, s.EnsureLoaded(context.Background(), "k"))

	e := envelope.NewRegular(time.Now())
	require.NoError(t, s.WriteMeta("k", e))

	got, err := envelope.ReadSidecarFile(s.MetaPath("k"))
	require.NoError(t, err)
	assert.Equal(t, "k", got.Fn)

	require.NoError(t, s.Clear("k"))
	assert.False(t, s.Exists("k"))
}

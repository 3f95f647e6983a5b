package attrcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/s3fs-go/s3fs/internal/envelope"
)

func TestCacheGetSetMiss(t *testing.T) {
	c := New()

	_, ok := c.Get("a/b")
	assert.False(t, ok)

	e := envelope.NewRegular(time.Now())
	c.Set("a/b", e)

	got, ok := c.Get("a/b")
	assert.True(t, ok)
	assert.Equal(t, e, got)
}

func TestCacheForget(t *testing.T) {
	c := New()
	c.Set("a/b", envelope.NewRegular(time.Now()))
	c.Forget("a/b")

	_, ok := c.Get("a/b")
	assert.False(t, ok)
}

func TestCacheRename(t *testing.T) {
	c := New()
	e := envelope.NewRegular(time.Now())
	c.Set("old", e)

	c.Rename("old", "new")

	_, ok := c.Get("old")
	assert.False(t, ok)
	got, ok := c.Get("new")
	assert.True(t, ok)
	assert.Equal(t, e, got)
}

func TestCacheRenameMissingSourceIsNoop(t *testing.T) {
	c := New()
	c.Rename("nope", "new")

	_, ok := c.Get("new")
	assert.False(t, ok)
}

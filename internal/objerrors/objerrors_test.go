package objerrors

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrnoMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want syscall.Errno
	}{
		{NotFound, syscall.ENOENT},
		{BadRequest, syscall.EINVAL},
		{Unsupported, syscall.EOPNOTSUPP},
		{Transport, syscall.EIO},
		{LocalIO, syscall.EIO},
		{Internal, syscall.EIO},
	}
	for _, c := range cases {
		err := New(c.kind, "op", "key", errors.New("boom"))
		assert.Equal(t, c.want, Errno(err))
	}
}

func TestErrnoNil(t *testing.T) {
	assert.Equal(t, syscall.Errno(0), Errno(nil))
}

func TestErrnoUnwrappedDefaultsToEIO(t *testing.T) {
	assert.Equal(t, syscall.EIO, Errno(errors.New("plain")))
}

func TestKindOfAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New(Transport, "get", "k", cause)

	assert.Equal(t, Transport, KindOf(err))
	assert.ErrorIs(t, err, cause)
}

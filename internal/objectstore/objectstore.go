// Package objectstore defines the object-store client contract that every
// other component in s3fs consumes. The contract is deliberately narrow —
// HEAD/GET/GET-range/PUT/PUT-copy/DELETE/LIST — so any S3-compatible
// backend, or a fake for tests, can implement it.
package objectstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Head/Get/GetRange/Delete when the store has no
// such key. Implementations should wrap it so errors.Is(err, ErrNotFound)
// and IsNotFound(err) both work.
var ErrNotFound = errors.New("object not found")

// IsNotFound reports whether err represents a 404 from the store.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// HeadResult is the metadata returned by a HEAD request.
type HeadResult struct {
	Headers      map[string]string // lower-cased x-amz-meta-* and friends
	Size         int64
	LastModified time.Time
}

// ListEntry is one row of a prefix listing.
type ListEntry struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Client is the object-store operations the core consumes. Every method
// takes a context so the caller can enforce a bounded per-request timeout;
// retry policy lives with the concrete implementation, not with callers.
type Client interface {
	// Head returns object metadata, or ErrNotFound if the key does not exist.
	Head(ctx context.Context, key string) (HeadResult, error)

	// Get returns the whole object body, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetHeaders returns the whole object body together with its response
	// headers, used where the caller needs both (e.g. readlink).
	GetHeaders(ctx context.Context, key string) ([]byte, map[string]string, error)

	// GetRange returns size bytes starting at offset. A short read at EOF is
	// not an error; the returned slice may be shorter than size.
	GetRange(ctx context.Context, key string, offset, size int64) ([]byte, error)

	// Put uploads body as key with the given user-metadata headers.
	Put(ctx context.Context, key string, body []byte, headers map[string]string) error

	// PutFromFile uploads the contents of localPath as key.
	PutFromFile(ctx context.Context, key, localPath string, headers map[string]string) error

	// PutCopy performs a server-side copy from copySource ("bucket/key")
	// into key, carrying the given headers and an empty body. Used for
	// rename (copy then delete) and utime (self-copy metadata update).
	PutCopy(ctx context.Context, key, copySource string, headers map[string]string) error

	// Delete removes key. A missing key is reported as an error rather than
	// silently swallowed, so callers can distinguish the two outcomes.
	Delete(ctx context.Context, key string) error

	// ListPrefix lists keys beginning with prefix, stopping the synthesised
	// hierarchy at delimiter.
	ListPrefix(ctx context.Context, prefix, delimiter string) ([]ListEntry, error)

	// HealthCheck verifies connectivity to the bucket.
	HealthCheck(ctx context.Context) error
}

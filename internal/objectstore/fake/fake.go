// Package fake provides an in-memory objectstore.Client for tests, so the
// rest of the tree can be exercised without hitting real S3.
package fake

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/s3fs-go/s3fs/internal/objectstore"
)

type object struct {
	body    []byte
	headers map[string]string
	mtime   time.Time
}

// Store is a thread-safe in-memory bucket.
type Store struct {
	mu      sync.Mutex
	objects map[string]object

	// Failures, if set, is consulted before every call; a non-nil return
	// short-circuits the call with that error, for exercising Transport
	// error paths without a real network.
	Failures func(op, key string) error
}

// New returns an empty fake store.
func New() *Store {
	return &Store{objects: make(map[string]object)}
}

// Seed directly inserts an object, bypassing Put, for test setup.
func (s *Store) Seed(key string, body []byte, headers map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	s.objects[key] = object{body: body, headers: h, mtime: time.Now()}
}

func (s *Store) fail(op, key string) error {
	if s.Failures == nil {
		return nil
	}
	return s.Failures(op, key)
}

func (s *Store) Head(ctx context.Context, key string) (objectstore.HeadResult, error) {
	if err := s.fail("head", key); err != nil {
		return objectstore.HeadResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return objectstore.HeadResult{}, objectstore.ErrNotFound
	}
	return objectstore.HeadResult{Headers: copyHeaders(obj.headers), Size: int64(len(obj.body)), LastModified: obj.mtime}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	body, _, err := s.GetHeaders(ctx, key)
	return body, err
}

func (s *Store) GetHeaders(ctx context.Context, key string) ([]byte, map[string]string, error) {
	if err := s.fail("get", key); err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, nil, objectstore.ErrNotFound
	}
	out := make([]byte, len(obj.body))
	copy(out, obj.body)
	return out, copyHeaders(obj.headers), nil
}

func (s *Store) GetRange(ctx context.Context, key string, offset, size int64) ([]byte, error) {
	if err := s.fail("get_range", key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, objectstore.ErrNotFound
	}
	if offset >= int64(len(obj.body)) {
		return []byte{}, nil
	}
	end := offset + size
	if end > int64(len(obj.body)) {
		end = int64(len(obj.body))
	}
	out := make([]byte, end-offset)
	copy(out, obj.body[offset:end])
	return out, nil
}

func (s *Store) Put(ctx context.Context, key string, body []byte, headers map[string]string) error {
	if err := s.fail("put", key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(body))
	copy(out, body)
	s.objects[key] = object{body: out, headers: copyHeaders(headers), mtime: time.Now()}
	return nil
}

func (s *Store) PutFromFile(ctx context.Context, key, localPath string, headers map[string]string) error {
	if err := s.fail("put_from_file", key); err != nil {
		return err
	}
	body, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, body, headers)
}

func (s *Store) PutCopy(ctx context.Context, key, copySource string, headers map[string]string) error {
	if err := s.fail("put_copy", key); err != nil {
		return err
	}
	_, srcKey, ok := strings.Cut(copySource, "/")
	if !ok {
		return fmt.Errorf("fake: malformed copy source %q", copySource)
	}
	s.mu.Lock()
	src, ok := s.objects[srcKey]
	s.mu.Unlock()
	if !ok {
		return objectstore.ErrNotFound
	}
	return s.Put(ctx, key, src.body, headers)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.fail("delete", key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return objectstore.ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

func (s *Store) ListPrefix(ctx context.Context, prefix, delimiter string) ([]objectstore.ListEntry, error) {
	if err := s.fail("list_prefix", prefix); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Mirrors S3's own delimiter semantics: a key with no further delimiter
	// past prefix is returned whole; one with further nesting collapses to
	// a single "name<delimiter>" entry, deduplicated, the way ListObjectsV2
	// folds nested keys into CommonPrefixes.
	seen := make(map[string]bool)
	var out []objectstore.ListEntry
	for k, obj := range s.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := k[len(prefix):]
		if delimiter != "" {
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				commonPrefix := prefix + rest[:idx+len(delimiter)]
				if !seen[commonPrefix] {
					seen[commonPrefix] = true
					out = append(out, objectstore.ListEntry{Key: commonPrefix})
				}
				continue
			}
		}
		out = append(out, objectstore.ListEntry{Key: k, Size: int64(len(obj.body)), ModTime: obj.mtime})
	}
	return out, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.fail("health_check", "")
}

func copyHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

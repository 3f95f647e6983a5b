// Package cachestore implements the on-disk staging area shared between the
// foreground filesystem process and the background uploader. It owns a
// single flat directory and knows nothing about POSIX paths — callers
// always address it by bucket key.
package cachestore

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/s3fs-go/s3fs/internal/envelope"
	"github.com/s3fs-go/s3fs/internal/objectstore"
	"github.com/s3fs-go/s3fs/internal/objerrors"
)

var nonWord = regexp.MustCompile(`\W`)

// Slug replaces every non-word character of key with "_". Distinct keys can
// slug-collide after this transform; Store disambiguates filenames with a
// key hash so that colliding keys never alias the same file on disk.
func Slug(key string) string {
	return nonWord.ReplaceAllString(key, "_")
}

func keyHash(key string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return fmt.Sprintf("%08x", uint32(h.Sum64()))
}

// Store is the cache-store contract: a directory shared read/write between
// the dispatcher (which owns a sidecar while writing it) and the uploader
// (which owns it from the moment it is linked into place).
type Store struct {
	dir    string
	bucket string
	client objectstore.Client
	log    *slog.Logger
}

// New returns a Store rooted at dir for the given bucket.
func New(dir, bucket string, client objectstore.Client, log *slog.Logger) *Store {
	return &Store{dir: dir, bucket: bucket, client: client, log: log}
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) fileBase(key string) string {
	return fmt.Sprintf("%s,%s_%s", s.bucket, Slug(key), keyHash(key))
}

// DataPath returns the local path of key's staged data file.
func (s *Store) DataPath(key string) string {
	return filepath.Join(s.dir, s.fileBase(key))
}

// MetaPath returns the local path of key's sidecar metadata file.
func (s *Store) MetaPath(key string) string {
	return filepath.Join(s.dir, s.fileBase(key)+",meta")
}

// Exists reports whether key has a staged data file, dirty or clean.
func (s *Store) Exists(key string) bool {
	_, err := os.Stat(s.DataPath(key))
	return err == nil
}

// EnsureLoaded makes sure key's data file exists locally, downloading the
// whole object from the store on first touch. A 404 materialises an empty
// file (so later seeks/writes never need a second conditional); any other
// transport failure is reported as objerrors.Transport.
func (s *Store) EnsureLoaded(ctx context.Context, key string) error {
	if s.Exists(key) {
		return nil
	}
	data, err := s.client.Get(ctx, key)
	if err != nil {
		if objectstore.IsNotFound(err) {
			f, createErr := os.OpenFile(s.DataPath(key), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
			if createErr != nil {
				if os.IsExist(createErr) {
					return nil
				}
				return objerrors.New(objerrors.LocalIO, "ensure_loaded", key, createErr)
			}
			return f.Close()
		}
		return objerrors.New(objerrors.Transport, "ensure_loaded", key, err)
	}
	if err := os.WriteFile(s.DataPath(key), data, 0o600); err != nil {
		return objerrors.New(objerrors.LocalIO, "ensure_loaded", key, err)
	}
	return nil
}

// ReadRange reads up to size bytes at offset from key's staged data file.
// A short read at EOF is not an error.
func (s *Store) ReadRange(key string, offset int64, size int64) ([]byte, error) {
	f, err := os.Open(s.DataPath(key))
	if err != nil {
		return nil, objerrors.New(objerrors.LocalIO, "read_range", key, err)
	}
	defer f.Close()

	buf := make([]byte, size)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, objerrors.New(objerrors.LocalIO, "read_range", key, err)
	}
	return buf[:n], nil
}

// WriteRange writes data at offset into key's staged data file, returning
// the number of bytes written.
func (s *Store) WriteRange(key string, offset int64, data []byte) (int, error) {
	f, err := os.OpenFile(s.DataPath(key), os.O_RDWR, 0o600)
	if err != nil {
		return 0, objerrors.New(objerrors.LocalIO, "write_range", key, err)
	}
	defer f.Close()

	n, err := f.WriteAt(data, offset)
	if err != nil {
		return n, objerrors.New(objerrors.LocalIO, "write_range", key, err)
	}
	return n, nil
}

// Truncate resizes key's staged data file, zero-filling any extension.
func (s *Store) Truncate(key string, length int64) error {
	if err := os.Truncate(s.DataPath(key), length); err != nil {
		return objerrors.New(objerrors.LocalIO, "truncate", key, err)
	}
	return nil
}

// Size returns the current size of key's staged data file.
func (s *Store) Size(key string) (int64, error) {
	info, err := os.Stat(s.DataPath(key))
	if err != nil {
		return 0, objerrors.New(objerrors.LocalIO, "size", key, err)
	}
	return info.Size(), nil
}

// WriteMeta serialises env (with Fn set to key) into key's sidecar, via
// create-then-rename so a concurrent uploader scan never observes a
// partial envelope.
func (s *Store) WriteMeta(key string, env envelope.Envelope) error {
	env.Fn = key
	tmp := s.MetaPath(key) + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return objerrors.New(objerrors.LocalIO, "write_meta", key, err)
	}
	if err := envelope.WriteSidecar(f, env); err != nil {
		f.Close()
		os.Remove(tmp)
		return objerrors.New(objerrors.LocalIO, "write_meta", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return objerrors.New(objerrors.LocalIO, "write_meta", key, err)
	}
	if err := os.Rename(tmp, s.MetaPath(key)); err != nil {
		return objerrors.New(objerrors.LocalIO, "write_meta", key, err)
	}
	if s.log != nil {
		s.log.Debug("wrote sidecar", "key", key, "path", s.MetaPath(key))
	}
	return nil
}

// Clear unlinks both the data file and sidecar for key. Non-existence of
// either file is not an error.
func (s *Store) Clear(key string) error {
	var firstErr error
	for _, p := range []string{s.DataPath(key), s.MetaPath(key)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = objerrors.New(objerrors.LocalIO, "clear", key, err)
			}
		}
	}
	return firstErr
}

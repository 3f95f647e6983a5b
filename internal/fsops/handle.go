package fsops

import (
	"context"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/s3fs-go/s3fs/internal/envelope"
	"github.com/s3fs-go/s3fs/internal/objectstore"
	"github.com/s3fs-go/s3fs/internal/objerrors"
)

// FileHandle is the open-file state read/write/flush/release/fsync operate
// against. It holds no os-level file descriptor of its own — all local I/O
// goes through the cache store by key, since the cache store (not the
// dispatcher) owns the staged file.
type FileHandle struct {
	root  *Root
	key   string
	dirty bool
}

var _ fs.FileReader = (*FileHandle)(nil)
var _ fs.FileWriter = (*FileHandle)(nil)
var _ fs.FileFlusher = (*FileHandle)(nil)
var _ fs.FileReleaser = (*FileHandle)(nil)
var _ fs.FileFsyncer = (*FileHandle)(nil)

// Read serves from the local data file if one is already staged,
// otherwise a byte-range GET straight from the store.
func (h *FileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h.root.Metrics.ObserveOp("read")
	defer h.root.Metrics.Timer("read")()

	if h.root.Cache.Exists(h.key) {
		data, err := h.root.Cache.ReadRange(h.key, off, int64(len(dest)))
		if err != nil {
			h.root.Metrics.ObserveError("read")
			return nil, objerrors.Errno(err)
		}
		return fuse.ReadResultData(data), fs.OK
	}

	data, err := h.root.Store.GetRange(ctx, h.key, off, int64(len(dest)))
	if err != nil {
		h.root.Metrics.ObserveError("read")
		kind := objerrors.Transport
		if objectstore.IsNotFound(err) {
			kind = objerrors.NotFound
		}
		return nil, objerrors.Errno(objerrors.New(kind, "read", h.key, err))
	}
	return fuse.ReadResultData(data), fs.OK
}

// Write ensures the local data file is loaded, then pwrites into it,
// updating the cached size/mtime directly.
func (h *FileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	h.root.Metrics.ObserveOp("write")
	defer h.root.Metrics.Timer("write")()

	if err := h.root.Cache.EnsureLoaded(ctx, h.key); err != nil {
		h.root.Metrics.ObserveError("write")
		return 0, objerrors.Errno(err)
	}
	n, err := h.root.Cache.WriteRange(h.key, off, data)
	if err != nil {
		h.root.Metrics.ObserveError("write")
		return 0, objerrors.Errno(err)
	}
	h.dirty = true

	size, sizeErr := h.root.Cache.Size(h.key)
	if sizeErr != nil {
		h.root.Metrics.ObserveError("write")
		return uint32(n), objerrors.Errno(sizeErr)
	}

	e, ok := h.root.Attrs.Get(h.key)
	if !ok {
		e = envelope.NewRegular(time.Now())
	}
	e.Size = size
	e.Mtime = time.Now().Unix()
	h.root.Attrs.Set(h.key, e)

	return uint32(n), fs.OK
}

// Flush is a no-op: writes persist at release.
func (h *FileHandle) Flush(context.Context) syscall.Errno { return fs.OK }

// Fsync is a no-op. A write isn't durable beyond the local cache until
// release hands it to the uploader.
func (h *FileHandle) Fsync(context.Context, uint32) syscall.Errno { return fs.OK }

// Release stamps a dirty local file's envelope and hands it off to the
// uploader via a sidecar. This is the durability point from the user's
// perspective.
func (h *FileHandle) Release(context.Context) syscall.Errno {
	h.root.Metrics.ObserveOp("release")
	defer h.root.Metrics.Timer("release")()
	if !h.dirty || !h.root.Cache.Exists(h.key) {
		return fs.OK
	}

	e, ok := h.root.Attrs.Get(h.key)
	if !ok {
		e = envelope.NewRegular(time.Now())
	}

	e, err := h.root.stageSidecar(h.key, e)
	if err != nil {
		h.root.Metrics.ObserveError("release")
		return objerrors.Errno(err)
	}
	h.root.Attrs.Set(h.key, e)
	return fs.OK
}

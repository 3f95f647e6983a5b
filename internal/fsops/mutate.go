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
	"github.com/s3fs-go/s3fs/internal/pathmap"
)

// Mkdir creates a zero-byte object under directory-mode metadata; listings
// see it as a distinct prefix.
func (n *Node) Mkdir(ctx context.Context, name string, _ uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.root.Metrics.ObserveOp("mkdir")
	defer n.root.Metrics.Timer("mkdir")()
	if name == "" {
		return nil, syscall.EINVAL
	}

	childKey := pathmap.Join(n.key(), name)
	e := envelope.NewDirectory(time.Now())
	if err := n.root.Store.Put(ctx, childKey, nil, e.ToHeaders()); err != nil {
		n.root.Metrics.ObserveError("mkdir")
		return nil, objerrors.Errno(objerrors.New(objerrors.Transport, "mkdir", childKey, err))
	}

	n.root.Attrs.Set(childKey, e)
	n.root.Dirs.Add(n.key(), name)
	// The new directory has no listing of its own yet; mark it known-empty
	// so a child created before the next real readdir (mknod/create/mkdir
	// under it) lands in Dirs.Add instead of being silently dropped.
	n.root.Dirs.Load(childKey, nil)
	n.fillAttr(&out.Attr, childKey, e)
	return n.NewInode(ctx, n.newChild(), fs.StableAttr{Mode: fuse.S_IFDIR, Ino: inodeHash(childKey)}), fs.OK
}

// Rmdir removes a directory's backing object. It does not check whether
// the directory still has children.
func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	n.root.Metrics.ObserveOp("rmdir")
	defer n.root.Metrics.Timer("rmdir")()
	errno := n.removeChild(ctx, name, false)
	if errno != fs.OK {
		n.root.Metrics.ObserveError("rmdir")
	}
	return errno
}

// Unlink removes a file's backing object, additionally clearing any
// cache-store entries for the key.
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	n.root.Metrics.ObserveOp("unlink")
	defer n.root.Metrics.Timer("unlink")()
	errno := n.removeChild(ctx, name, true)
	if errno != fs.OK {
		n.root.Metrics.ObserveError("unlink")
	}
	return errno
}

func (n *Node) removeChild(ctx context.Context, name string, clearCacheStore bool) syscall.Errno {
	if name == "" {
		return syscall.EINVAL
	}
	childKey := pathmap.Join(n.key(), name)
	n.root.Attrs.Forget(childKey)
	if clearCacheStore {
		_ = n.root.Cache.Clear(childKey)
	}
	if err := n.root.Store.Delete(ctx, childKey); err != nil {
		if objectstore.IsNotFound(err) {
			return syscall.ENOENT
		}
		return syscall.EIO
	}
	n.root.Dirs.Remove(n.key(), name)
	return fs.OK
}

// Mknod inserts the attribute envelope and updates the parent directory
// cache, but does not touch the store — the object materialises at
// release.
func (n *Node) Mknod(ctx context.Context, name string, mode uint32, _ uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.root.Metrics.ObserveOp("mknod")
	defer n.root.Metrics.Timer("mknod")()
	childKey := pathmap.Join(n.key(), name)
	e := n.newRegularEnvelope(mode)
	n.root.Attrs.Set(childKey, e)
	n.root.Dirs.Add(n.key(), name)
	n.fillAttr(&out.Attr, childKey, e)
	return n.NewInode(ctx, n.newChild(), fs.StableAttr{Mode: fuse.S_IFREG, Ino: inodeHash(childKey)}), fs.OK
}

func (n *Node) newRegularEnvelope(mode uint32) envelope.Envelope {
	e := envelope.NewRegular(time.Now())
	if mode&envelope.ModeTypeMask != 0 {
		e.Mode = mode
	} else {
		e.Mode = envelope.ModeRegular | (mode & 0o7777)
	}
	return e
}

// Create handles the combined mknod+open the kernel actually issues for
// O_CREAT opens: insert the envelope as Mknod does, then hand back an open
// file handle the way Open does.
func (n *Node) Create(ctx context.Context, name string, _ uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	n.root.Metrics.ObserveOp("create")
	defer n.root.Metrics.Timer("create")()
	childKey := pathmap.Join(n.key(), name)

	e, ok := n.root.Attrs.Get(childKey)
	if !ok {
		e = n.newRegularEnvelope(mode)
		n.root.Attrs.Set(childKey, e)
		n.root.Dirs.Add(n.key(), name)
	}
	if err := n.root.Cache.EnsureLoaded(ctx, childKey); err != nil {
		n.root.Metrics.ObserveError("create")
		return nil, nil, 0, objerrors.Errno(err)
	}

	n.fillAttr(&out.Attr, childKey, e)
	inode := n.NewInode(ctx, n.newChild(), fs.StableAttr{Mode: fuse.S_IFREG, Ino: inodeHash(childKey)})
	return inode, &FileHandle{root: n.root, key: childKey}, 0, fs.OK
}

// Open ensures a local data file exists for a write-mode open; reads need
// no store interaction until actually read.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	n.root.Metrics.ObserveOp("open")
	defer n.root.Metrics.Timer("open")()
	key := n.key()
	writeMode := flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_CREAT|syscall.O_TRUNC) != 0
	if writeMode {
		if err := n.root.Cache.EnsureLoaded(ctx, key); err != nil {
			n.root.Metrics.ObserveError("open")
			return nil, 0, objerrors.Errno(err)
		}
	}
	return &FileHandle{root: n.root, key: key}, 0, fs.OK
}

// Setattr handles truncate/utime/chmod/chown: truncate and utime mutate
// the cached envelope directly, which stays authoritative until the next
// HEAD; chmod/chown are accepted but are no-ops.
func (n *Node) Setattr(ctx context.Context, _ fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	n.root.Metrics.ObserveOp("setattr")
	defer n.root.Metrics.Timer("setattr")()
	key := n.key()
	e, err := n.envelopeFor(ctx, key)
	if err != nil {
		n.root.Metrics.ObserveError("setattr")
		return objerrors.Errno(err)
	}

	if sz, ok := in.GetSize(); ok {
		if err := n.root.Cache.EnsureLoaded(ctx, key); err != nil {
			n.root.Metrics.ObserveError("setattr")
			return objerrors.Errno(err)
		}
		if err := n.root.Cache.Truncate(key, int64(sz)); err != nil {
			n.root.Metrics.ObserveError("setattr")
			return objerrors.Errno(err)
		}
		e.Size = int64(sz)
		e.Mtime = time.Now().Unix()

		// A bare truncate has no FileHandle/Release to hand the change to
		// the uploader, so stage the sidecar directly here.
		staged, err := n.root.stageSidecar(key, e)
		if err != nil {
			n.root.Metrics.ObserveError("setattr")
			return objerrors.Errno(err)
		}
		e = staged
	}

	atime, atimeOK := in.GetATime()
	mtime, mtimeOK := in.GetMTime()
	if atimeOK || mtimeOK {
		// utime pushes the updated envelope to the store immediately via a
		// server-side self-copy metadata update, rather than waiting for
		// release the way write/truncate do.
		if atimeOK {
			e.Atime = atime.Unix()
		}
		if mtimeOK {
			e.Mtime = mtime.Unix()
		}
		copySource := n.root.Bucket + "/" + key
		if err := n.root.Store.PutCopy(ctx, key, copySource, e.ToHeaders()); err != nil {
			n.root.Metrics.ObserveError("setattr")
			if objectstore.IsNotFound(err) {
				return syscall.ENOENT
			}
			return syscall.EIO
		}
	}

	n.root.Attrs.Set(key, e)
	n.fillAttr(&out.Attr, key, e)
	return fs.OK
}

// Rename server-side-copies to the new key, then delegates to unlink of
// the old one. Not atomic if the delete step fails after the copy lands.
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, _ uint32) syscall.Errno {
	n.root.Metrics.ObserveOp("rename")
	defer n.root.Metrics.Timer("rename")()

	oldKey := pathmap.Join(n.key(), name)
	newParentNode, ok := newParent.(*Node)
	if !ok {
		n.root.Metrics.ObserveError("rename")
		return syscall.EINVAL
	}
	newKey := pathmap.Join(newParentNode.key(), newName)

	e, err := n.envelopeFor(ctx, oldKey)
	if err != nil {
		n.root.Metrics.ObserveError("rename")
		return objerrors.Errno(err)
	}

	headers := e.ToHeaders()
	copySource := n.root.Bucket + "/" + oldKey
	if err := n.root.Store.PutCopy(ctx, newKey, copySource, headers); err != nil {
		n.root.Metrics.ObserveError("rename")
		if objectstore.IsNotFound(err) {
			return syscall.ENOENT
		}
		return syscall.EIO
	}

	n.root.Attrs.Set(newKey, e)
	n.root.Dirs.Add(newParentNode.key(), newName)

	if errno := n.removeChild(ctx, name, true); errno != fs.OK {
		return errno
	}
	return fs.OK
}

// Symlink writes the target string as the object body, with metadata
// declaring symlink mode.
func (n *Node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.root.Metrics.ObserveOp("symlink")
	defer n.root.Metrics.Timer("symlink")()
	childKey := pathmap.Join(n.key(), name)
	e := envelope.NewSymlink(time.Now(), len(target))

	if err := n.root.Store.Put(ctx, childKey, []byte(target), e.ToHeaders()); err != nil {
		n.root.Metrics.ObserveError("symlink")
		return nil, objerrors.Errno(objerrors.New(objerrors.Transport, "symlink", childKey, err))
	}

	n.root.Attrs.Set(childKey, e)
	n.root.Dirs.Add(n.key(), name)
	n.fillAttr(&out.Attr, childKey, e)
	return n.NewInode(ctx, n.newChild(), fs.StableAttr{Mode: fuse.S_IFLNK, Ino: inodeHash(childKey)}), fs.OK
}

// Readlink fetches the object body, which holds the link target.
func (n *Node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	n.root.Metrics.ObserveOp("readlink")
	defer n.root.Metrics.Timer("readlink")()
	key := n.key()
	body, headers, err := n.root.Store.GetHeaders(ctx, key)
	if err != nil {
		n.root.Metrics.ObserveError("readlink")
		if objectstore.IsNotFound(err) {
			return nil, syscall.ENOENT
		}
		return nil, syscall.EIO
	}
	e := envelope.FromHeaders(headers, false, true, int64(len(body)), time.Now())
	n.root.Attrs.Set(key, e)
	return body, fs.OK
}

var _ fs.NodeMkdirer = (*Node)(nil)
var _ fs.NodeRmdirer = (*Node)(nil)
var _ fs.NodeUnlinker = (*Node)(nil)
var _ fs.NodeMknoder = (*Node)(nil)
var _ fs.NodeCreater = (*Node)(nil)
var _ fs.NodeOpener = (*Node)(nil)
var _ fs.NodeSetattrer = (*Node)(nil)
var _ fs.NodeRenamer = (*Node)(nil)
var _ fs.NodeSymlinker = (*Node)(nil)
var _ fs.NodeReadlinker = (*Node)(nil)

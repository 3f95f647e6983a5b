// Package fsops implements the FUSE operation dispatcher on top of the
// cache store, attribute cache, directory cache, name mapper, and
// object-store client. It uses a single Node type for every entry in the
// tree, since the dispatcher addresses every path the same way regardless
// of whether the kernel has asked for a file or a directory operation yet.
package fsops

import (
	"context"
	"log/slog"
	"strings"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/s3fs-go/s3fs/internal/attrcache"
	"github.com/s3fs-go/s3fs/internal/cachestore"
	"github.com/s3fs-go/s3fs/internal/dircache"
	"github.com/s3fs-go/s3fs/internal/envelope"
	"github.com/s3fs-go/s3fs/internal/metrics"
	"github.com/s3fs-go/s3fs/internal/objectstore"
	"github.com/s3fs-go/s3fs/internal/objerrors"
	"github.com/s3fs-go/s3fs/internal/pathmap"
)

const blockSize = 262144

// Root is the shared state every Node in the tree reaches through. It
// holds the store client and the three caches that sit in front of it,
// plus the uid/gid the mount reports attributes under.
type Root struct {
	Bucket  string
	Store   objectstore.Client
	Cache   *cachestore.Store
	Attrs   *attrcache.Cache
	Dirs    *dircache.Cache
	Metrics *metrics.Collector
	Log     *slog.Logger

	UID uint32
	GID uint32
}

// NewRoot returns the root inode of the mount tree.
func NewRoot(root *Root) *Node {
	return &Node{root: root}
}

// Node is the single inode type for every entry in the tree: root, every
// directory, every file, every symlink. The kernel only calls the methods
// relevant to what the entry turns out to be.
type Node struct {
	fs.Inode
	root *Root
}

var _ fs.InodeEmbedder = (*Node)(nil)

// key returns this node's bucket key, derived from its position in the
// kernel-visible inode tree.
func (n *Node) key() string {
	return n.Path(n.Root())
}

func (n *Node) newChild() *Node {
	return &Node{root: n.root}
}

func (n *Node) log() *slog.Logger {
	if n.root.Log != nil {
		return n.root.Log
	}
	return slog.Default()
}

// envelopeFor resolves key's attribute envelope: attribute-cache hit, or a
// HEAD through the store client on miss.
func (n *Node) envelopeFor(ctx context.Context, key string) (envelope.Envelope, error) {
	if e, ok := n.root.Attrs.Get(key); ok {
		return e, nil
	}

	head, err := n.root.Store.Head(ctx, key)
	if err != nil {
		if objectstore.IsNotFound(err) {
			return envelope.Envelope{}, objerrors.New(objerrors.NotFound, "getattr", key, err)
		}
		return envelope.Envelope{}, objerrors.New(objerrors.Transport, "getattr", key, err)
	}

	e := envelope.FromHeaders(head.Headers, false, false, head.Size, time.Now())
	n.root.Attrs.Set(key, e)
	return e, nil
}

// stageSidecar stamps e with the fields the uploader expects on a staged
// file (atime, ACL, the key it came from) and writes the sidecar that
// hands it off. Called by FileHandle.Release, and by Setattr's truncate
// branch, which has no file handle whose release could do it.
func (r *Root) stageSidecar(key string, e envelope.Envelope) (envelope.Envelope, error) {
	e.Atime = time.Now().Unix()
	e.ACL = "private"
	e.Fn = key
	if err := r.Cache.WriteMeta(key, e); err != nil {
		return e, err
	}
	return e, nil
}

func (n *Node) fillAttr(out *fuse.Attr, key string, e envelope.Envelope) {
	out.Ino = inodeHash(key)
	out.Mode = e.Mode
	out.Nlink = 1
	out.Uid = n.root.UID
	out.Gid = n.root.GID
	out.Rdev = 0
	out.Size = uint64(e.Size)
	out.Atime = uint64(e.Atime)
	out.Mtime = uint64(e.Mtime)
	out.Ctime = uint64(e.Ctime)
	out.Blksize = blockSize
	// size/blksize, not size/512 — tools that assume the conventional
	// 512-byte block count (du, stat -f) will under-report usage, and
	// report zero for anything smaller than one block.
	out.Blocks = uint64(e.Size) / blockSize
}

// Getattr returns a synthetic directory envelope for the root; every other
// path is resolved through envelopeFor.
func (n *Node) Getattr(ctx context.Context, _ fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.root.Metrics.ObserveOp("getattr")
	defer n.root.Metrics.Timer("getattr")()
	key := n.key()
	if key == "" {
		now := time.Now()
		e := envelope.NewDirectory(now)
		n.fillAttr(&out.Attr, key, e)
		return fs.OK
	}

	e, err := n.envelopeFor(ctx, key)
	if err != nil {
		n.root.Metrics.ObserveError("getattr")
		return objerrors.Errno(err)
	}
	n.fillAttr(&out.Attr, key, e)
	return fs.OK
}

// Lookup resolves name under this directory: a successful Head of the
// child key is both the existence check and the attribute fetch.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.root.Metrics.ObserveOp("lookup")
	defer n.root.Metrics.Timer("lookup")()
	childKey := pathmap.Join(n.key(), name)

	e, err := n.envelopeFor(ctx, childKey)
	if err != nil {
		return nil, objerrors.Errno(err)
	}

	n.fillAttr(&out.Attr, childKey, e)
	out.SetEntryTimeout(time.Second)
	out.SetAttrTimeout(time.Second)

	mode := uint32(fuse.S_IFREG)
	switch {
	case e.IsDir():
		mode = fuse.S_IFDIR
	case e.IsSymlink():
		mode = fuse.S_IFLNK
	}
	return n.NewInode(ctx, n.newChild(), fs.StableAttr{Mode: mode, Ino: inodeHash(childKey)}), fs.OK
}

type dirStream struct {
	entries []fuse.DirEntry
	pos     int
}

func (d *dirStream) HasNext() bool { return d.pos < len(d.entries) }
func (d *dirStream) Next() (fuse.DirEntry, syscall.Errno) {
	e := d.entries[d.pos]
	d.pos++
	return e, fs.OK
}
func (d *dirStream) Close() {}

// Readdir serves the directory cache if populated, else list-prefixes
// through the store client and populates it.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	n.root.Metrics.ObserveOp("readdir")
	defer n.root.Metrics.Timer("readdir")()
	dirKey := n.key()

	var names []string
	if n.root.Dirs.Loaded(dirKey) {
		names = n.root.Dirs.Names(dirKey)
	} else {
		prefix := pathmap.ListPrefixFor(dirKey)
		listed, err := n.root.Store.ListPrefix(ctx, prefix, "/")
		if err != nil {
			n.root.Metrics.ObserveError("readdir")
			return nil, objerrors.Errno(objerrors.New(objerrors.Transport, "readdir", dirKey, err))
		}
		listing := make([]pathmap.Listing, len(listed))
		for i, item := range listed {
			listing[i] = pathmap.Listing{Key: item.Key}
		}
		raw := pathmap.ChildNames(prefix, listing)
		names = make([]string, 0, len(raw))
		for _, name := range raw {
			if name == "" {
				continue
			}
			names = append(names, strings.TrimSuffix(name, "/"))
		}
		n.root.Dirs.Load(dirKey, names)
	}

	// A prefix listing can surface the same child twice — once as the
	// directory's own zero-byte marker object (via Contents) and once as
	// its CommonPrefixes entry — both of which collapse to the same name
	// after the trailing slash is trimmed. Dedup here so a cold readdir
	// doesn't report a child more than once.
	seen := make(map[string]struct{}, len(names))
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		entries = append(entries, fuse.DirEntry{Name: name, Ino: inodeHash(pathmap.Join(dirKey, name))})
	}
	return &dirStream{entries: entries}, fs.OK
}

func (n *Node) Opendir(context.Context) syscall.Errno { return fs.OK }

// Statfs returns fixed synthetic totals.
func (n *Node) Statfs(_ context.Context, out *fuse.StatfsOut) syscall.Errno {
	out.Blocks = 1 << 32
	out.Bfree = 1 << 32
	out.Bavail = 1 << 32
	out.Files = 1 << 20
	out.Ffree = 1 << 20
	out.Bsize = blockSize
	out.NameLen = 255
	out.Frsize = blockSize
	return fs.OK
}

// Link is unsupported.
func (n *Node) Link(context.Context, fs.InodeEmbedder, string, *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, syscall.EOPNOTSUPP
}

func (n *Node) Getxattr(context.Context, string, []byte) (uint32, syscall.Errno) {
	return 0, syscall.EOPNOTSUPP
}
func (n *Node) Setxattr(context.Context, string, []byte, uint32) syscall.Errno {
	return syscall.EOPNOTSUPP
}
func (n *Node) Listxattr(context.Context, []byte) (uint32, syscall.Errno) {
	return 0, syscall.EOPNOTSUPP
}
func (n *Node) Removexattr(context.Context, string) syscall.Errno {
	return syscall.EOPNOTSUPP
}

var _ fs.NodeGetattrer = (*Node)(nil)
var _ fs.NodeLookuper = (*Node)(nil)
var _ fs.NodeReaddirer = (*Node)(nil)
var _ fs.NodeStatfser = (*Node)(nil)
var _ fs.NodeLinker = (*Node)(nil)

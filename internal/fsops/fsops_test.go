package fsops

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/require"

	"github.com/s3fs-go/s3fs/internal/attrcache"
	"github.com/s3fs-go/s3fs/internal/cachestore"
	"github.com/s3fs-go/s3fs/internal/dircache"
	"github.com/s3fs-go/s3fs/internal/envelope"
	"github.com/s3fs-go/s3fs/internal/objectstore/fake"
)

// mountTestFS mounts a fresh Root backed by a fake object store at a real
// directory: a live mount gives the kernel a real inode tree to drive Node
// through, rather than calling its methods out of context.
func mountTestFS(t *testing.T) (mntDir string, store *fake.Store, root *Root) {
	t.Helper()
	mntDir = t.TempDir()
	store = fake.New()
	root = &Root{
		Bucket: "bucket",
		Store:  store,
		Cache:  cachestore.New(t.TempDir(), "bucket", store, nil),
		Attrs:  attrcache.New(),
		Dirs:   dircache.New(),
		UID:    uint32(os.Getuid()),
		GID:    uint32(os.Getgid()),
	}

	rawFS := fs.NewNodeFS(NewRoot(root), &fs.Options{})
	server, err := fuse.NewServer(rawFS, mntDir, &fuse.MountOptions{Name: "s3fstest"})
	require.NoError(t, err)

	go server.Serve()
	require.NoError(t, server.WaitMount())
	t.Cleanup(func() { _ = server.Unmount() })

	return mntDir, store, root
}

func TestMkdirAndReaddir(t *testing.T) {
	mnt, _, _ := mountTestFS(t)

	require.NoError(t, os.Mkdir(filepath.Join(mnt, "sub"), 0o755))

	entries, err := os.ReadDir(mnt)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "sub", entries[0].Name())
	require.True(t, entries[0].IsDir())
}

func TestCreateWriteReadRelease(t *testing.T) {
	mnt, _, root := mountTestFS(t)
	path := filepath.Join(mnt, "file.txt")

	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))

	// release() stages a sidecar for the uploader; it does not itself PUT
	// to the store, so the durability point to check is the cache store,
	// not the backend.
	env, err := envelope.ReadSidecarFile(root.Cache.MetaPath("file.txt"))
	require.NoError(t, err)
	require.Equal(t, "file.txt", env.Fn)
}

func TestReaddirDedupesMarkerAndCommonPrefix(t *testing.T) {
	mnt, store, _ := mountTestFS(t)

	// Seed the backend directly, bypassing Mkdir/Mknod, so the first
	// readdir of the mount root is a cold list-prefix: "d" surfaces both
	// as a Contents entry (the directory's own zero-byte marker object)
	// and, via "d/x", as a CommonPrefixes entry that collapses to the
	// same name once the trailing delimiter is trimmed.
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "d", nil, nil))
	require.NoError(t, store.Put(ctx, "d/x", []byte("x"), nil))

	entries, err := os.ReadDir(mnt)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "d", entries[0].Name())
}

func TestMkdirThenMknodIsVisibleInReaddir(t *testing.T) {
	mnt, _, _ := mountTestFS(t)
	dir := filepath.Join(mnt, "d")
	require.NoError(t, os.Mkdir(dir, 0o755))

	f, err := os.Create(filepath.Join(dir, "x"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "x", entries[0].Name())
}

func TestUnlink(t *testing.T) {
	mnt, store, _ := mountTestFS(t)
	path := filepath.Join(mnt, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	// Unlink deletes the backing object too, and a missing object maps to
	// ENOENT, so this exercises the common case where the uploader has
	// already landed it.
	require.NoError(t, store.Put(context.Background(), "file.txt", []byte("x"), nil))

	require.NoError(t, os.Remove(path))

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestMkdirRmdir(t *testing.T) {
	mnt, _, _ := mountTestFS(t)
	dir := filepath.Join(mnt, "sub")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.Remove(dir))

	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestSymlinkReadlink(t *testing.T) {
	mnt, _, _ := mountTestFS(t)
	link := filepath.Join(mnt, "link")
	require.NoError(t, os.Symlink("target.txt", link))

	got, err := os.Readlink(link)
	require.NoError(t, err)
	require.Equal(t, "target.txt", got)
}

func TestRename(t *testing.T) {
	mnt, store, _ := mountTestFS(t)
	oldPath := filepath.Join(mnt, "old.txt")
	newPath := filepath.Join(mnt, "new.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("data"), 0o644))

	// Rename server-side-copies the backing object, so it needs one to
	// exist; simulate the uploader having already landed it.
	require.NoError(t, store.Put(context.Background(), "old.txt", []byte("data"), nil))

	require.NoError(t, os.Rename(oldPath, newPath))

	data, err := os.ReadFile(newPath)
	require.NoError(t, err)
	require.Equal(t, "data", string(data))

	_, err = os.Stat(oldPath)
	require.True(t, os.IsNotExist(err))
}

func TestTruncate(t *testing.T) {
	mnt, _, _ := mountTestFS(t)
	path := filepath.Join(mnt, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	require.NoError(t, os.Truncate(path, 5))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.EqualValues(t, 5, info.Size())
}

func TestTruncateOnlyStagesSidecar(t *testing.T) {
	mnt, store, root := mountTestFS(t)
	path := filepath.Join(mnt, "file.txt")

	// The object already exists on the backend and has never been opened
	// for write in this process, so no FileHandle.Release ever runs; a
	// bare truncate(2) is the only write-like event this file sees.
	require.NoError(t, store.Put(context.Background(), "file.txt", []byte("hello world"), nil))

	require.NoError(t, os.Truncate(path, 5))

	env, err := envelope.ReadSidecarFile(root.Cache.MetaPath("file.txt"))
	require.NoError(t, err)
	require.Equal(t, "file.txt", env.Fn)
	require.EqualValues(t, 5, env.Size)
}

func TestUtimePushesImmediateCopy(t *testing.T) {
	mnt, store, _ := mountTestFS(t)
	path := filepath.Join(mnt, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	// Simulate the uploader having already landed the object on the
	// backend by the time utime runs; setattr's atime/mtime branch does
	// an immediate self-copy PUT and needs the source object to exist.
	require.NoError(t, store.Put(context.Background(), "file.txt", []byte("data"), nil))

	mtime := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.WithinDuration(t, mtime, info.ModTime(), 2*time.Second)
}

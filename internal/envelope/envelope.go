// Package envelope defines the attribute bundle carried alongside every
// object in the bucket — mode, timestamps, size, ACL — and its two wire
// forms: x-amz-meta-s3fs-* object headers and the text sidecar format the
// cache store uses to hand dirty objects to the uploader.
package envelope

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// POSIX file-type bits (the S_IFMT family of st_mode), not Go's os.FileMode.
const (
	ModeTypeMask = 0o170000
	ModeDir      = 0o040000
	ModeSymlink  = 0o120000
	ModeRegular  = 0o100000
)

// Default permission bits assigned to newly created entries.
const (
	DefaultRegularPerm = 0o644
	DefaultDirPerm     = 0o755
	DefaultSymlinkPerm = 0o777
)

// HeaderPrefix namespaces every envelope field as object user metadata.
const HeaderPrefix = "x-amz-meta-s3fs-"

// Envelope is the per-path attribute tuple carried alongside every object.
type Envelope struct {
	Mode       uint32 // file-type bits | permission bits
	Atime      int64  // seconds since epoch
	Mtime      int64
	Ctime      int64
	Size       int64
	ACL        string
	CopySource string // optional: bucket/key, used only during copy-on-write rename
	Fn         string // optional: present only in a sidecar, the key to PUT
}

// NewRegular returns the default envelope for a newly minted regular file.
func NewRegular(now time.Time) Envelope {
	return Envelope{
		Mode:  ModeRegular | DefaultRegularPerm,
		Atime: now.Unix(),
		Mtime: now.Unix(),
		Ctime: now.Unix(),
		ACL:   "private",
	}
}

// NewDirectory returns the default envelope for a directory marker object.
func NewDirectory(now time.Time) Envelope {
	return Envelope{
		Mode:  ModeDir | DefaultDirPerm,
		Atime: now.Unix(),
		Mtime: now.Unix(),
		Ctime: now.Unix(),
		Size:  4,
		ACL:   "private",
	}
}

// NewSymlink returns the default envelope for a symlink object.
func NewSymlink(now time.Time, targetLen int) Envelope {
	return Envelope{
		Mode:  ModeSymlink | DefaultSymlinkPerm,
		Atime: now.Unix(),
		Mtime: now.Unix(),
		Ctime: now.Unix(),
		Size:  int64(targetLen),
		ACL:   "private",
	}
}

// IsDir reports whether the envelope describes a directory.
func (e Envelope) IsDir() bool { return e.Mode&ModeTypeMask == ModeDir }

// IsSymlink reports whether the envelope describes a symlink.
func (e Envelope) IsSymlink() bool { return e.Mode&ModeTypeMask == ModeSymlink }

// ToHeaders serialises the envelope as x-amz-meta-s3fs-* headers for a PUT.
// Fn and CopySource are deliberately omitted: Fn only makes sense in a
// sidecar, and CopySource is a request directive, not stored state.
func (e Envelope) ToHeaders() map[string]string {
	return map[string]string{
		HeaderPrefix + "mode":  strconv.FormatUint(uint64(e.Mode), 10),
		HeaderPrefix + "atime": strconv.FormatInt(e.Atime, 10),
		HeaderPrefix + "mtime": strconv.FormatInt(e.Mtime, 10),
		HeaderPrefix + "ctime": strconv.FormatInt(e.Ctime, 10),
		HeaderPrefix + "size":  strconv.FormatInt(e.Size, 10),
		HeaderPrefix + "acl":   e.ACL,
	}
}

// FromHeaders reconstructs an envelope from lower-cased response headers,
// filling in reasonable defaults for anything missing.
func FromHeaders(headers map[string]string, isDir, isSymlink bool, objectSize int64, now time.Time) Envelope {
	e := Envelope{ACL: "private"}

	get := func(suffix string) (string, bool) {
		v, ok := headers[HeaderPrefix+suffix]
		return v, ok
	}

	if v, ok := get("mode"); ok {
		if m, err := strconv.ParseUint(v, 10, 32); err == nil {
			e.Mode = uint32(m)
		}
	}
	if e.Mode == 0 {
		switch {
		case isDir:
			e.Mode = ModeDir | DefaultDirPerm
		case isSymlink:
			e.Mode = ModeSymlink | DefaultSymlinkPerm
		default:
			e.Mode = ModeRegular | DefaultRegularPerm
		}
	}

	nowUnix := now.Unix()
	e.Atime = parseInt64OrDefault(get, "atime", nowUnix)
	e.Mtime = parseInt64OrDefault(get, "mtime", nowUnix)
	e.Ctime = parseInt64OrDefault(get, "ctime", nowUnix)

	if v, ok := get("size"); ok {
		if s, err := strconv.ParseInt(v, 10, 64); err == nil {
			e.Size = s
		}
	} else if isDir {
		e.Size = 4
	} else {
		e.Size = objectSize
	}

	if v, ok := get("acl"); ok && v != "" {
		e.ACL = v
	}

	return e
}

func parseInt64OrDefault(get func(string) (string, bool), suffix string, def int64) int64 {
	v, ok := get(suffix)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// WriteSidecar writes the envelope, including Fn, in the cache store's text
// sidecar format: one "key=value" pair per line.
func WriteSidecar(w io.Writer, e Envelope) error {
	bw := bufio.NewWriter(w)
	fields := [][2]string{
		{"mode", strconv.FormatUint(uint64(e.Mode), 10)},
		{"atime", strconv.FormatInt(e.Atime, 10)},
		{"mtime", strconv.FormatInt(e.Mtime, 10)},
		{"ctime", strconv.FormatInt(e.Ctime, 10)},
		{"size", strconv.FormatInt(e.Size, 10)},
		{"acl", e.ACL},
		{"fn", e.Fn},
	}
	for _, f := range fields {
		if _, err := fmt.Fprintf(bw, "%s=%s\n", f[0], f[1]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadSidecar parses the cache store's text sidecar format.
func ReadSidecar(r io.Reader) (Envelope, error) {
	var e Envelope
	e.ACL = "private"
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch k {
		case "mode":
			if m, err := strconv.ParseUint(v, 10, 32); err == nil {
				e.Mode = uint32(m)
			}
		case "atime":
			e.Atime, _ = strconv.ParseInt(v, 10, 64)
		case "mtime":
			e.Mtime, _ = strconv.ParseInt(v, 10, 64)
		case "ctime":
			e.Ctime, _ = strconv.ParseInt(v, 10, 64)
		case "size":
			e.Size, _ = strconv.ParseInt(v, 10, 64)
		case "acl":
			e.ACL = v
		case "fn":
			e.Fn = v
		}
	}
	if err := scanner.Err(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// ReadSidecarFile is a convenience wrapper around ReadSidecar for callers
// that only have a path (the uploader, primarily).
func ReadSidecarFile(path string) (Envelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return Envelope{}, err
	}
	defer f.Close()
	return ReadSidecar(f)
}

// Package pathmap is the stateless translation between POSIX paths, as
// delivered by the kernel, and bucket keys. It is pure string surgery
// deliberately kept out of the operation dispatcher so the
// directory-synthesis rules stay in one auditable place.
package pathmap

import "strings"

// KeyOf strips exactly one leading "/" from path, producing a bucket key.
// The root path ("/") maps to the empty key.
func KeyOf(path string) string {
	return strings.TrimPrefix(path, "/")
}

// PathOf is the inverse of KeyOf: it adds back the leading "/".
func PathOf(key string) string {
	return "/" + key
}

// ListPrefixFor returns the prefix to list when enumerating the immediate
// children of dirKey: dirKey unchanged if it is the bucket root, otherwise
// dirKey with a trailing delimiter appended.
func ListPrefixFor(dirKey string) string {
	if dirKey == "" {
		return ""
	}
	if strings.HasSuffix(dirKey, "/") {
		return dirKey
	}
	return dirKey + "/"
}

// Listing is the minimal shape of one entry in a prefix listing, matching
// what the object-store client's ListPrefix returns.
type Listing struct {
	Key string
}

// ChildNames returns, for each listed key, the portion after prefix — the
// immediate child name. Entries are not deduplicated; the caller's listing
// is assumed already deduplicated by the store, and a flat-directory marker
// object (the zero-byte object representing the directory itself) produces
// an empty name that callers should skip.
func ChildNames(prefix string, listing []Listing) []string {
	names := make([]string, 0, len(listing))
	for _, item := range listing {
		names = append(names, strings.TrimPrefix(item.Key, prefix))
	}
	return names
}

// Basename returns the last path component of key, with no trailing slash.
func Basename(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// Dirname returns the parent key of key (no trailing slash), or the empty
// key if key has no parent other than the bucket root.
func Dirname(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return ""
	}
	return trimmed[:idx]
}

// Join appends name to the directory key dirKey, producing a child key.
func Join(dirKey, name string) string {
	if dirKey == "" {
		return name
	}
	return dirKey + "/" + name
}

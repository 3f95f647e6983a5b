package fsops

import "hash/fnv"

// inodeHash derives a synthetic inode number from the key, truncated to 63
// bits, so tools relying on inode uniqueness (e.g. find's cycle detection)
// behave reasonably despite the store having no native inode concept.
func inodeHash(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64() &^ (1 << 63)
}

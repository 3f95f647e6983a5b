package pathmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyOfAndPathOf(t *testing.T) {
	assert.Equal(t, "", KeyOf("/"))
	assert.Equal(t, "a/b", KeyOf("/a/b"))
	assert.Equal(t, "/a/b", PathOf("a/b"))
}

func TestListPrefixFor(t *testing.T) {
	assert.Equal(t, "", ListPrefixFor(""))
	assert.Equal(t, "dir/", ListPrefixFor("dir"))
	assert.Equal(t, "dir/", ListPrefixFor("dir/"))
}

func TestChildNames(t *testing.T) {
	listing := []Listing{
		{Key: "dir/a.txt"},
		{Key: "dir/sub/"},
		{Key: "dir/"},
	}
	names := ChildNames("dir/", listing)
	assert.Equal(t, []string{"a.txt", "sub/", ""}, names)
}

func TestBasenameDirname(t *testing.T) {
	assert.Equal(t, "file.txt", Basename("a/b/file.txt"))
	assert.Equal(t, "b", Basename("a/b/"))
	assert.Equal(t, "file.txt", Basename("file.txt"))

	assert.Equal(t, "a/b", Dirname("a/b/file.txt"))
	assert.Equal(t, "", Dirname("file.txt"))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "name", Join("", "name"))
	assert.Equal(t, "dir/name", Join("dir", "name"))
}

package testing

import (
	"crypto/rand"
	"path/filepath"
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// RandomPayload returns `size` random bytes. It's guaranteed to either return
// a valid slice or fail the test and abort.
func RandomPayload(t *testing.T, size int) []byte {
	payload := make([]byte, size)
	_, err := rand.Read(payload)
	require.NoErrorf(t, err, "failed to generate %d random bytes", size)
	return payload
}

// HostTree is a directory tree to create on an in-memory file system. Keys are
// slash-separated paths relative to the root; a nil value creates a directory,
// anything else a file with those contents.
type HostTree map[string][]byte

// BuildHostTree creates `tree` under `root` in a fresh in-memory file system.
// Parent directories are created as needed.
func BuildHostTree(t *testing.T, root string, tree HostTree) afero.Fs {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(root, 0o755))

	// Sorting puts parents before their children.
	paths := make([]string, 0, len(tree))
	for path := range tree {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		fullPath := filepath.Join(root, filepath.FromSlash(path))
		contents := tree[path]
		if contents == nil {
			require.NoErrorf(t, fs.MkdirAll(fullPath, 0o755), "mkdir %q", fullPath)
			continue
		}
		require.NoError(t, fs.MkdirAll(filepath.Dir(fullPath), 0o755))
		require.NoErrorf(
			t, afero.WriteFile(fs, fullPath, contents, 0o644), "write %q", fullPath)
	}
	return fs
}

// ReadHostFile returns the contents of the file at `path`, failing the test if
// it can't be read.
func ReadHostFile(t *testing.T, fs afero.Fs, path string) []byte {
	contents, err := afero.ReadFile(fs, path)
	require.NoErrorf(t, err, "failed to read host file %q", path)
	return contents
}

// HostFileExists determines if there's a regular file at `path`.
func HostFileExists(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

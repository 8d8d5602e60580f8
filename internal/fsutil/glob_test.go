package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern, name string
		want          bool
	}{
		{"*.go", "main.go", true},
		{"*.go", "cmd/main.go", false},
		{"**/*.go", "cmd/main.go", true},
		{"**/*.go", "main.go", true},
		{"dist/**", "dist/a/b/c.bin", true},
		{"dist/*", "dist/a/b", false},
		{"a/**/z", "a/z", true},
		{"a/**/z", "a/b/c/z", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pattern, tt.name))
		})
	}
}

func TestValidatePattern(t *testing.T) {
	assert.NoError(t, ValidatePattern("dist/**"))
	assert.Error(t, ValidatePattern(""))
	assert.Error(t, ValidatePattern("/etc/passwd"))
	assert.Error(t, ValidatePattern("../outside"))
	assert.Error(t, ValidatePattern("bad[pattern"))
}

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0o644))
	}
}

func TestGlob(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"dist/app-linux",
		"dist/app-windows.exe",
		"dist/docs/readme.txt",
		".gocache/00/aa",
		"go.sum",
	)

	t.Run("directory selects its files", func(t *testing.T) {
		got, err := Glob(root, []string{"dist"})
		require.NoError(t, err)
		assert.Equal(t, []string{"dist/app-linux", "dist/app-windows.exe", "dist/docs/readme.txt"}, got)
	})

	t.Run("wildcards", func(t *testing.T) {
		got, err := Glob(root, []string{"dist/app-*"})
		require.NoError(t, err)
		assert.Equal(t, []string{"dist/app-linux", "dist/app-windows.exe"}, got)
	})

	t.Run("deduplicates across patterns", func(t *testing.T) {
		got, err := Glob(root, []string{"go.sum", "./go.sum", "*.sum"})
		require.NoError(t, err)
		assert.Equal(t, []string{"go.sum"}, got)
	})

	t.Run("missing path is empty", func(t *testing.T) {
		got, err := Glob(root, []string{"nope/**"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("dot selects everything", func(t *testing.T) {
		got, err := Glob(root, []string{"./"})
		require.NoError(t, err)
		assert.Len(t, got, 5)
	})

	t.Run("escaping pattern", func(t *testing.T) {
		_, err := Glob(root, []string{"../x"})
		assert.Error(t, err)
	})
}

func TestWriteFileAtomic(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "nested", "out.json")
	require.NoError(t, WriteFileAtomic(dst, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(dst, []byte("two"), 0o644))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestScanner_ListFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/Main.java":      "class Main {}",
		"src/util/Helper.JS": "export {}",
		"README.md":          "# readme",
		"image.png":          "binary",
		".git/config":        "[core]",
		"src/.hidden/x.go":   "package x",
		"web/index.html":     "<html/>",
		"notes.txt":          "not allowed by default",
	})
	s := NewScanner(root, "", nil)
	files, err := s.ListFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "src/Main.java", "src/util/Helper.JS", "web/index.html"}, files)
}

func TestScanner_CustomExtensions(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a", "b.go": "b", "c.TXT": "c"})
	s := NewScanner(root, "", []string{"txt", " .Go "})
	files, err := s.ListFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.go", "c.TXT"}, files)
}

func TestScanner_EmptyRoot(t *testing.T) {
	s := NewScanner("", "", nil)
	files, err := s.ListFiles()
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Equal(t, "default-app", s.ApplicationID())

	empty := NewScanner(t.TempDir(), "", nil)
	files, err = empty.ListFiles()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestScanner_MissingRoot(t *testing.T) {
	s := NewScanner(filepath.Join(t.TempDir(), "missing"), "", nil)
	_, err := s.ListFiles()
	assert.Error(t, err)
}

func TestScanner_ApplicationID(t *testing.T) {
	root := filepath.Join(t.TempDir(), "petclinic")
	assert.Equal(t, "petclinic", NewScanner(root, "", nil).ApplicationID())
	assert.Equal(t, "petclinic", NewScanner(root, "default-app", nil).ApplicationID())
	assert.Equal(t, "shop", NewScanner(root, "shop", nil).ApplicationID())
}

func TestScanner_Resolve(t *testing.T) {
	root := t.TempDir()
	s := NewScanner(root, "", nil)
	abs, err := s.Resolve("src/Main.java")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "src", "Main.java"), abs)

	for _, bad := range []string{"../etc/passwd", "..", "/etc/passwd", "src/../../x"} {
		_, err := s.Resolve(bad)
		assert.Error(t, err, bad)
	}

	rel, err := s.Rel(filepath.Join(root, "a", "b.go"))
	require.NoError(t, err)
	assert.Equal(t, "a/b.go", rel)
}

func TestScanner_FetchSnippets(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.go": "package a", "b.go": "package b", "c.go": "package c"})
	s := NewScanner(root, "", nil)

	snippets, err := s.FetchSnippets([]string{"b.go", "missing.go", "../outside.go"}, 10)
	require.NoError(t, err)
	require.Len(t, snippets, 3)
	assert.Equal(t, "package b", snippets[0].Content)
	assert.Equal(t, "", snippets[1].Content)
	assert.Equal(t, "", snippets[2].Content)

	snippets, err = s.FetchSnippets(nil, 2)
	require.NoError(t, err)
	require.Len(t, snippets, 2)
	assert.Equal(t, "a.go", snippets[0].Path)
	assert.Equal(t, "package a", snippets[0].Content)
}

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/codeindex/internal/indexer"
)

type recordingIndexer struct {
	mu      sync.Mutex
	indexed []string
}

func (r *recordingIndexer) IndexFile(_ context.Context, rel string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, rel)
	return 1, nil
}

func (r *recordingIndexer) paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.indexed...)
	sort.Strings(out)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startWatcher(t *testing.T, root string) (*Watcher, *recordingIndexer) {
	t.Helper()
	rec := &recordingIndexer{}
	scanner := indexer.NewScanner(root, "", []string{".go", ".md"})
	w := NewWatcher(scanner, rec, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w, rec
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_IndexesChangedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pkg", "a.go"), "package pkg")
	_, rec := startWatcher(t, root)

	writeFile(t, filepath.Join(root, "pkg", "a.go"), "package pkg\n\nfunc A() {}")
	waitFor(t, func() bool { return len(rec.paths()) > 0 })

	got := rec.paths()
	if got[0] != "pkg/a.go" {
		t.Errorf("indexed %v, want pkg/a.go", got)
	}
}

func TestWatcher_DebounceCoalescesWrites(t *testing.T) {
	root := t.TempDir()
	_, rec := startWatcher(t, root)

	path := filepath.Join(root, "main.go")
	for i := 0; i < 5; i++ {
		writeFile(t, path, "package main // edit")
	}
	waitFor(t, func() bool { return len(rec.paths()) > 0 })
	time.Sleep(200 * time.Millisecond)

	if got := rec.paths(); len(got) != 1 {
		t.Errorf("expected a single re-index, got %v", got)
	}
}

func TestWatcher_IgnoresFilteredAndHiddenFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	_, rec := startWatcher(t, root)

	writeFile(t, filepath.Join(root, "image.png"), "x")
	writeFile(t, filepath.Join(root, ".git", "HEAD.md"), "ref")
	writeFile(t, filepath.Join(root, ".hidden.go"), "package x")
	writeFile(t, filepath.Join(root, "README.md"), "# readme")

	waitFor(t, func() bool { return len(rec.paths()) > 0 })
	time.Sleep(200 * time.Millisecond)

	got := rec.paths()
	if len(got) != 1 || got[0] != "README.md" {
		t.Errorf("indexed %v, want only README.md", got)
	}
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	w, rec := startWatcher(t, root)

	sub := filepath.Join(root, "new-folder")
	writeFile(t, filepath.Join(sub, "x.go"), "package x")
	waitFor(t, func() bool { return len(rec.paths()) > 0 })

	waitFor(t, func() bool {
		for _, d := range w.Directories() {
			if d == sub {
				return true
			}
		}
		return false
	})
	writeFile(t, filepath.Join(sub, "y.md"), "# y")
	waitFor(t, func() bool {
		for _, p := range rec.paths() {
			if p == "new-folder/y.md" {
				return true
			}
		}
		return false
	})
}

func TestWatcher_RemoveCancelsPendingIndex(t *testing.T) {
	root := t.TempDir()
	rec := &recordingIndexer{}
	w := NewWatcher(indexer.NewScanner(root, "", nil), rec, WithDebounce(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(root, "gone.go")
	writeFile(t, path, "package gone")
	waitFor(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.debounceMap) == 1
	})
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.debounceMap) == 0
	})
	w.Stop()

	if got := rec.paths(); len(got) != 0 {
		t.Errorf("expected nothing indexed, got %v", got)
	}
}

func TestWatcher_StartMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")
	w := NewWatcher(indexer.NewScanner(root, "", nil), &recordingIndexer{})
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	w := NewWatcher(indexer.NewScanner(t.TempDir(), "", nil), &recordingIndexer{})
	w.Stop()
	w.Stop()
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		got := inDir(tt.dir, tt.path)
		if got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func TestIsHidden(t *testing.T) {
	tests := map[string]bool{
		".git":    true,
		".env.go": true,
		".":       false,
		"main.go": false,
	}
	for name, want := range tests {
		if got := isHidden(name); got != want {
			t.Errorf("isHidden(%q) = %v, want %v", name, got, want)
		}
	}
}

package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period before a changed file is re-indexed.
const DefaultDebounce = 500 * time.Millisecond

// Tree is the watched source tree. *indexer.Scanner implements it.
type Tree interface {
	Root() string
	Allowed(name string) bool
	Rel(abs string) (string, error)
}

// FileIndexer re-indexes one file given its root-relative path.
type FileIndexer interface {
	IndexFile(ctx context.Context, rel string) (int, error)
}

// Watcher re-indexes files under the tree root when they change on disk.
// Removed files only cancel pending work; their records stay in the store.
type Watcher struct {
	tree     Tree
	indexer  FileIndexer
	debounce time.Duration
	logger   *zap.Logger

	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	dirs        map[string]struct{}
	ctx         context.Context
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	pending     sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger for the watcher.
func WithLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithDebounce sets the quiet period. Values <= 0 keep the default.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for tree that sends changes to idx.
func NewWatcher(tree Tree, idx FileIndexer, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		tree:        tree,
		indexer:     idx,
		debounce:    DefaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		dirs:        make(map[string]struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	return w
}

// Start registers every directory under the root and begins processing events.
// Indexing triggered by events runs with ctx.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fw
	w.ctx = ctx
	w.started = true
	w.mu.Unlock()

	root, err := filepath.Abs(w.tree.Root())
	if err == nil {
		err = w.addTree(root)
	}
	if err != nil {
		_ = fw.Close()
		w.mu.Lock()
		w.started = false
		w.mu.Unlock()
		return err
	}
	w.logger.Info("Watching source tree", zap.String("root", root), zap.Int("directories", len(w.Directories())))
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if isHidden(filepath.Base(path)) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) {
				w.handleNewDirectory(path)
			}
			return
		}
		if w.tree.Allowed(path) {
			w.debounceIndex(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancelDebounce(path)
		w.mu.Lock()
		_, wasDir := w.dirs[path]
		w.mu.Unlock()
		if wasDir {
			w.forgetDirectory(path)
		}
		w.logger.Debug("Source removed", zap.String("path", path))
	}
}

// handleNewDirectory watches a directory created under the root and indexes
// any files that landed in it before the watch was added.
func (w *Watcher) handleNewDirectory(dir string) {
	if err := w.addTree(dir); err != nil {
		w.logger.Warn("Failed to watch new directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isHidden(d.Name()) && w.tree.Allowed(p) {
			w.debounceIndex(p)
		}
		return nil
	})
}

// addTree adds dir and every non-hidden directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			if p == dir {
				return err
			}
			w.logger.Warn("Failed to watch directory", zap.String("dir", p), zap.Error(err))
			return nil
		}
		w.mu.Lock()
		w.dirs[filepath.Clean(p)] = struct{}{}
		w.mu.Unlock()
		return nil
	})
}

func (w *Watcher) forgetDirectory(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for d := range w.dirs {
		if inDir(dir, d) {
			delete(w.dirs, d)
		}
	}
	for p, t := range w.debounceMap {
		if inDir(dir, p) {
			if t.Stop() {
				w.pending.Done()
			}
			delete(w.debounceMap, p)
		}
	}
}

func (w *Watcher) debounceIndex(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		if t.Stop() {
			w.pending.Done()
		}
	}
	w.pending.Add(1)
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		defer w.pending.Done()
		w.mu.Lock()
		delete(w.debounceMap, path)
		ctx := w.ctx
		w.mu.Unlock()
		w.index(ctx, path)
	})
}

func (w *Watcher) index(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	rel, err := w.tree.Rel(path)
	if err != nil {
		w.logger.Warn("Changed file outside root", zap.String("path", path), zap.Error(err))
		return
	}
	n, err := w.indexer.IndexFile(ctx, rel)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Warn("Failed to re-index file", zap.String("path", rel), zap.Error(err))
		}
		return
	}
	w.logger.Debug("Re-indexed file", zap.String("path", rel), zap.Int("chunks", n))
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		if t.Stop() {
			w.pending.Done()
		}
		delete(w.debounceMap, path)
	}
}

// Directories returns the currently watched directories.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.dirs))
	for d := range w.dirs {
		out = append(out, d)
	}
	return out
}

// Stop cancels pending re-indexes, closes the fsnotify watcher and waits for
// in-flight indexing to return.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		for p, t := range w.debounceMap {
			if t.Stop() {
				w.pending.Done()
			}
			delete(w.debounceMap, p)
		}
		started := w.started
		w.mu.Unlock()
		if !started {
			return
		}
		_ = w.watcher.Close()
		<-w.done
		w.pending.Wait()
	})
}

func isHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

// inDir reports whether path is dir or inside it.
func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Package watcher ingests files from directories mapped to knowledge bases,
// using fsnotify with per-file debouncing.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/tcmkb/internal/config"
	"github.com/hyperjump/tcmkb/pkg/utils"
)

const defaultDebounce = 400 * time.Millisecond

// FileFunc handles a file event under a directory bound to knowledge base kbID.
type FileFunc func(kbID, path string)

type root struct {
	kbID  string
	paths []string // directories added to fsnotify for this root
}

// Watcher watches directories and invokes callbacks on file changes.
type Watcher struct {
	extensions  []string
	recursive   bool
	onIngest    FileFunc
	onRemove    FileFunc
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	roots       map[string]*root
	order       []string
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before onIngest runs.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher creates a watcher over dirs. extensions filter which files are
// reported (empty = all).
func NewWatcher(dirs []config.WatchDirectory, extensions []string, recursive bool, onIngest, onRemove FileFunc, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		extensions:  extensions,
		recursive:   recursive,
		onIngest:    onIngest,
		onRemove:    onRemove,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		roots:       make(map[string]*root),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = utils.LoggerOrNop(w.logger)
	for _, d := range dirs {
		abs, err := filepath.Abs(d.Path)
		if err != nil {
			abs = d.Path
		}
		abs = filepath.Clean(abs)
		if _, ok := w.roots[abs]; ok {
			continue
		}
		w.roots[abs] = &root{kbID: d.KnowledgeBaseID}
		w.order = append(w.order, abs)
	}
	return w
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.logger.Debug("watcher starting",
		zap.Strings("roots", w.order),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))
	for _, path := range w.order {
		if err := w.watchRootLocked(path); err != nil {
			_ = w.watcher.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}
	w.mu.Unlock()
	go w.run(ctx, watcher)
	return nil
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	kbID, ok := w.knowledgeBaseFor(path)
	if !ok {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			w.handleNewDirectory(kbID, path)
			return
		}
		if w.matchExtension(path) {
			w.debounceIngest(kbID, path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancelDebounce(path)
		if w.matchExtension(path) && w.onRemove != nil {
			w.onRemove(kbID, path)
		}
	}
}

// handleNewDirectory watches a directory that appeared under a root and
// ingests the files already inside it.
func (w *Watcher) handleNewDirectory(kbID, dirPath string) {
	w.mu.Lock()
	watcher := w.watcher
	recursive := w.recursive
	w.mu.Unlock()
	if watcher == nil || !recursive {
		return
	}
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				w.logger.Debug("watcher failed to add directory", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
	w.syncDirectory(kbID, dirPath)
}

// knowledgeBaseFor returns the knowledge base of the innermost root containing path.
func (w *Watcher) knowledgeBaseFor(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	best := ""
	for r := range w.roots {
		if (r == path || inDir(r, path)) && len(r) > len(best) {
			best = r
		}
	}
	if best == "" {
		return "", false
	}
	return w.roots[best].kbID, true
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) matchExtension(path string) bool {
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) debounceIngest(kbID, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.logger.Debug("watcher ingesting file", zap.String("path", path), zap.String("knowledge_base_id", kbID))
		if w.onIngest != nil {
			w.onIngest(kbID, path)
		}
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

// AddDirectory starts watching dir for kbID and optionally ingests the files
// already there. Re-adding a watched directory is a no-op.
func (w *Watcher) AddDirectory(dir, kbID string, syncExisting bool) error {
	if kbID == "" {
		return fmt.Errorf("knowledge base id is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	if _, ok := w.roots[abs]; ok {
		w.mu.Unlock()
		return nil
	}
	w.roots[abs] = &root{kbID: kbID}
	w.order = append(w.order, abs)
	if w.watcher != nil {
		if err := w.watchRootLocked(abs); err != nil {
			w.removeRootLocked(abs)
			w.mu.Unlock()
			return err
		}
	}
	w.mu.Unlock()
	w.logger.Debug("watcher directory added", zap.String("path", abs), zap.String("knowledge_base_id", kbID))
	if syncExisting {
		go w.syncDirectory(kbID, abs)
	}
	return nil
}

func (w *Watcher) watchRootLocked(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return err
	}
	var paths []string
	if w.recursive {
		err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if err := w.watcher.Add(p); err != nil {
				return err
			}
			paths = append(paths, p)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		paths = append(paths, path)
	}
	w.roots[path].paths = paths
	return nil
}

func (w *Watcher) removeRootLocked(path string) {
	delete(w.roots, path)
	for i, p := range w.order {
		if p == path {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

func (w *Watcher) syncDirectory(kbID, dir string) {
	w.mu.Lock()
	exts := append([]string(nil), w.extensions...)
	recursive := w.recursive
	onIngest := w.onIngest
	w.mu.Unlock()
	if onIngest == nil {
		return
	}
	w.logger.Debug("watcher syncing directory", zap.String("root", dir))
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if matchExtension(path, exts) {
			onIngest(kbID, path)
		}
		return nil
	})
}

// RemoveDirectory stops watching dir. Ingested documents are kept.
func (w *Watcher) RemoveDirectory(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.roots[abs]
	if !ok {
		return nil
	}
	if w.watcher != nil {
		for _, p := range r.paths {
			_ = w.watcher.Remove(p)
		}
	}
	w.removeRootLocked(abs)
	w.logger.Debug("watcher directory removed", zap.String("path", abs))
	return nil
}

// Directories returns the watched directories in the order they were added.
func (w *Watcher) Directories() []config.WatchDirectory {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]config.WatchDirectory, 0, len(w.order))
	for _, p := range w.order {
		out = append(out, config.WatchDirectory{Path: p, KnowledgeBaseID: w.roots[p].kbID})
	}
	return out
}

// SyncExistingFiles ingests every matching file already present in the
// watched directories. Call it after Start.
func (w *Watcher) SyncExistingFiles() {
	for _, d := range w.Directories() {
		w.syncDirectory(d.KnowledgeBaseID, d.Path)
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}

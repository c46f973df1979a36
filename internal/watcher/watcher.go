// Package watcher indexes card images dropped into inbox directories.
//
// New or rewritten images are indexed once writes settle. A sidecar record
// ("card.jpg.json") written next to an image re-indexes that image. Record JSON
// files are indexed directly when ".json" is among the watched extensions.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	defaultDebounce = 400 * time.Millisecond
	recordExt       = ".json"
)

// CardIndexer is the part of the indexer the inbox drives.
type CardIndexer interface {
	IndexImage(ctx context.Context, source string) (string, error)
	IndexRecordFile(ctx context.Context, path string) (string, error)
	DeleteCard(ctx context.Context, identity string) error
}

// Watcher watches inbox directories and hands settled card files to a CardIndexer.
type Watcher struct {
	indexer        CardIndexer
	roots          []string
	extensions     []string
	recursive      bool
	deleteOnRemove bool
	ignore         []string
	debounce       time.Duration
	logger         *zap.Logger

	mu        sync.Mutex
	fsw       *fsnotify.Watcher
	ctx       context.Context
	pending   map[string]*time.Timer
	rootPaths map[string][]string // root -> directories added to fsnotify for it
	cards     map[string]string   // file path -> card identity it produced
	started   bool
	done      chan struct{}
	stopOnce  sync.Once
	// inflight counts indexing calls Stop must wait for.
	inflight sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for inbox events and indexing failures.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must stay quiet before it is indexed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithDeleteOnRemove deletes the card a file produced when the file leaves the inbox.
func WithDeleteOnRemove(enabled bool) Option {
	return func(w *Watcher) { w.deleteOnRemove = enabled }
}

// WithIgnore skips files and directories whose path relative to their inbox root
// matches one of the doublestar patterns (e.g. "**/.*", "processed/**").
func WithIgnore(patterns []string) Option {
	return func(w *Watcher) { w.ignore = patterns }
}

// NewWatcher creates an inbox watcher over roots. extensions filters which files are
// indexed (empty = all); recursive also watches subdirectories.
func NewWatcher(indexer CardIndexer, roots, extensions []string, recursive bool, opts ...Option) *Watcher {
	w := &Watcher{
		indexer:    indexer,
		roots:      append([]string(nil), roots...),
		extensions: extensions,
		recursive:  recursive,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		ctx:        context.Background(),
		pending:    make(map[string]*time.Timer),
		rootPaths:  make(map[string][]string),
		cards:      make(map[string]string),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Missing roots are created. The watcher runs until ctx is
// cancelled or Stop is called; ctx is also passed to every indexing call.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	w.ctx = ctx
	for _, root := range w.roots {
		if err := w.addRootLocked(root); err != nil {
			_ = fsw.Close()
			w.fsw = nil
			return err
		}
	}
	w.started = true
	w.logger.Debug("inbox watcher started",
		zap.Strings("roots", w.roots), zap.Strings("extensions", w.extensions), zap.Bool("recursive", w.recursive))
	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.begin() {
				return
			}
			w.handleEvent(ev)
			w.inflight.Done()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.underRoot(path) || w.ignored(path) {
		return
	}
	w.logger.Debug("inbox event", zap.String("op", ev.Op.String()), zap.String("path", path))

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if target, ok := w.target(path); ok {
			w.schedule(target)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancel(path)
		w.forget(path)
	}
}

// target maps a changed file to the file that should be indexed: the file itself,
// or the image a sidecar record belongs to.
func (w *Watcher) target(path string) (string, bool) {
	if image, ok := sidecarImage(path, w.extensions); ok {
		if _, err := os.Stat(image); err == nil {
			return image, true
		}
		return "", false
	}
	if matchExtension(path, w.extensions) {
		return path, true
	}
	return "", false
}

// sidecarImage reports whether path is "<image>.json" for an image the inbox accepts.
func sidecarImage(path string, extensions []string) (string, bool) {
	if !strings.EqualFold(filepath.Ext(path), recordExt) {
		return "", false
	}
	image := path[:len(path)-len(recordExt)]
	ext := filepath.Ext(image)
	if ext == "" || strings.EqualFold(ext, recordExt) {
		return "", false
	}
	if len(extensions) > 0 && !matchExtension(image, extensions) {
		return "", false
	}
	return image, true
}

func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	fsw := w.fsw
	recursive := w.recursive
	w.mu.Unlock()
	if fsw == nil {
		return
	}
	w.logger.Debug("inbox directory appeared", zap.String("path", dir))
	if recursive {
		_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if err := fsw.Add(p); err != nil {
					w.logger.Warn("watch directory failed", zap.String("path", p), zap.Error(err))
				}
			}
			return nil
		})
	} else if err := fsw.Add(dir); err != nil {
		w.logger.Warn("watch directory failed", zap.String("path", dir), zap.Error(err))
	}
	w.syncDirectory(dir)
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if !w.begin() {
			return
		}
		defer w.inflight.Done()
		w.index(path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

// begin registers an indexing call with inflight. It returns false once the
// watcher is stopped, so nothing is added while Stop waits.
func (w *Watcher) begin() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return false
	}
	w.inflight.Add(1)
	return true
}

// index indexes one inbox file and remembers the card it produced.
func (w *Watcher) index(path string) {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()

	var (
		identity string
		err      error
	)
	if strings.EqualFold(filepath.Ext(path), recordExt) {
		identity, err = w.indexer.IndexRecordFile(ctx, path)
	} else {
		identity, err = w.indexer.IndexImage(ctx, path)
	}
	if err != nil {
		w.logger.Warn("inbox indexing failed", zap.String("path", path), zap.Error(err))
		return
	}

	w.mu.Lock()
	previous := w.cards[path]
	w.cards[path] = identity
	w.mu.Unlock()
	if previous != "" && previous != identity && w.deleteOnRemove {
		// the file was rewritten with a different card
		w.deleteCard(ctx, path, previous)
	}
	w.logger.Info("inbox card indexed", zap.String("path", path), zap.String("identity", identity))
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	identity, ok := w.cards[path]
	delete(w.cards, path)
	ctx := w.ctx
	w.mu.Unlock()
	if ok && w.deleteOnRemove {
		w.deleteCard(ctx, path, identity)
	}
}

func (w *Watcher) deleteCard(ctx context.Context, path, identity string) {
	if err := w.indexer.DeleteCard(ctx, identity); err != nil {
		w.logger.Warn("inbox card delete failed", zap.String("path", path), zap.String("identity", identity), zap.Error(err))
		return
	}
	w.logger.Info("inbox card deleted", zap.String("path", path), zap.String("identity", identity))
}

// CardFor returns the identity of the card last indexed from path, if any.
func (w *Watcher) CardFor(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	identity, ok := w.cards[filepath.Clean(path)]
	return identity, ok
}

func (w *Watcher) underRoot(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, root := range w.roots {
		if inDir(filepath.Clean(root), path) {
			return true
		}
	}
	return false
}

// ignored reports whether path matches an ignore pattern relative to its root.
func (w *Watcher) ignored(path string) bool {
	if len(w.ignore) == 0 {
		return false
	}
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()
	for _, root := range roots {
		rel, err := filepath.Rel(filepath.Clean(root), path)
		if err != nil || !inDir(filepath.Clean(root), path) {
			continue
		}
		if matchIgnore(w.ignore, filepath.ToSlash(rel)) {
			return true
		}
	}
	return false
}

func matchIgnore(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
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

// AddDirectory adds an inbox root. With syncExisting, files already in it are indexed
// in the background.
func (w *Watcher) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return nil
	}
	for _, r := range w.roots {
		if filepath.Clean(r) == abs {
			return nil
		}
	}
	if err := w.addRootLocked(abs); err != nil {
		return err
	}
	w.roots = append(w.roots, abs)
	w.logger.Debug("inbox directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		go w.syncDirectory(abs)
	}
	return nil
}

func (w *Watcher) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	var paths []string
	if w.recursive {
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return err
			}
			if err := w.fsw.Add(p); err != nil {
				return err
			}
			paths = append(paths, p)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		if err := w.fsw.Add(root); err != nil {
			return err
		}
		paths = append(paths, root)
	}
	w.rootPaths[root] = paths
	return nil
}

// syncDirectory indexes every accepted file under dir without debouncing.
func (w *Watcher) syncDirectory(dir string) {
	w.logger.Debug("inbox sync", zap.String("root", dir))
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != dir && w.ignored(filepath.Clean(p)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := sidecarImage(p, w.extensions); ok {
			// picked up with its image
			return nil
		}
		if matchExtension(p, w.extensions) {
			if !w.begin() {
				return filepath.SkipAll
			}
			w.index(filepath.Clean(p))
			w.inflight.Done()
		}
		return nil
	})
}

// RemoveDirectory stops watching root. Cards indexed from it are kept.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return nil
	}
	for i, r := range w.roots {
		if filepath.Clean(r) != abs {
			continue
		}
		for _, p := range w.rootPaths[abs] {
			_ = w.fsw.Remove(p)
		}
		delete(w.rootPaths, abs)
		w.roots = append(w.roots[:i], w.roots[i+1:]...)
		w.logger.Debug("inbox directory removed", zap.String("path", abs))
		return nil
	}
	return nil
}

// Directories returns a copy of the inbox roots.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// SyncExistingFiles indexes the files already present in every root. Call after Start.
func (w *Watcher) SyncExistingFiles() {
	for _, root := range w.Directories() {
		w.syncDirectory(root)
	}
}

// Stop stops watching and drops pending (not yet indexed) files. It returns
// once indexing calls already under way have finished.
func (w *Watcher) Stop() {
	w.mu.Lock()
	wasRunning := w.started
	if wasRunning {
		for path, t := range w.pending {
			t.Stop()
			delete(w.pending, path)
		}
		_ = w.fsw.Close()
		w.fsw = nil
		w.started = false
	}
	w.mu.Unlock()
	if wasRunning {
		w.stopOnce.Do(func() { close(w.done) })
	}
	w.inflight.Wait()
}

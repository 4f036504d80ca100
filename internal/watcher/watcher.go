// Package watcher watches the corpus directory and triggers re-indexing.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 2 * time.Second

// Watcher watches a corpus directory recursively and invokes onChange after
// file activity settles. The index is rebuilt whole, so all events within
// the debounce window collapse into one callback.
type Watcher struct {
	root       string
	extensions map[string]bool
	onChange   func()
	debounce   time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	started bool

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a watcher over root. extensions filter which files count as
// corpus changes (empty = all). onChange runs off the event goroutine after
// the debounce window closes.
func New(root string, extensions []string, debounce time.Duration, onChange func(), logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	extSet := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		extSet["."+strings.TrimPrefix(strings.ToLower(e), ".")] = true
	}
	return &Watcher{
		root:       root,
		extensions: extSet,
		onChange:   onChange,
		debounce:   debounce,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Start begins watching. It runs until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fsw
	if err := w.addTreeLocked(w.root); err != nil {
		_ = fsw.Close()
		w.watcher = nil
		w.mu.Unlock()
		return err
	}
	w.started = true
	w.mu.Unlock()

	w.logger.Info("watching corpus directory",
		zap.String("root", w.root), zap.Duration("debounce", w.debounce))
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
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
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			if w.watcher != nil {
				_ = w.addTreeLocked(ev.Name)
			}
			w.mu.Unlock()
			w.schedule(ev.Name)
			return
		}
		if w.matchExtension(ev.Name) {
			w.schedule(ev.Name)
		}
	case ev.Op.Has(fsnotify.Write), ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		if w.matchExtension(ev.Name) {
			w.schedule(ev.Name)
		}
	}
}

// schedule arms or re-arms the single debounce timer.
func (w *Watcher) schedule(path string) {
	w.logger.Debug("corpus change detected", zap.String("path", path))
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.logger.Info("corpus changed, triggering re-index")
		w.onChange()
	})
}

func (w *Watcher) matchExtension(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	return w.extensions[strings.ToLower(filepath.Ext(path))]
}

func (w *Watcher) addTreeLocked(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// Stop stops the watcher and cancels any pending callback.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.started && w.watcher != nil {
		_ = w.watcher.Close()
		w.watcher = nil
		w.started = false
	}
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}

package ml

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reports model files that change on disk after startup. Models are
// never reloaded in place; the warning tells operators a restart is needed.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	files    map[string]string // absolute path -> model name
	debounce time.Duration

	mu      sync.Mutex
	changed map[string]time.Time
}

func NewWatcher(logger *zap.Logger, models ...ModelInfo) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:  fw,
		logger:   logger,
		files:    make(map[string]string, len(models)),
		debounce: 500 * time.Millisecond,
		changed:  make(map[string]time.Time),
	}
	dirs := make(map[string]bool)
	for _, m := range models {
		abs, err := filepath.Abs(m.Path)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.files[abs] = m.Name
		dirs[filepath.Dir(abs)] = true
	}
	// Watch directories rather than files so atomic replace-by-rename is seen.
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("model watcher error", zap.Error(err))
		}
	}
}

// Changed returns the models seen changing since startup.
func (w *Watcher) Changed() map[string]time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]time.Time, len(w.changed))
	for k, v := range w.changed {
		out[k] = v
	}
	return out
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	name, ok := w.files[abs]
	if !ok {
		return
	}

	now := time.Now()
	w.mu.Lock()
	last, seen := w.changed[name]
	w.changed[name] = now
	w.mu.Unlock()
	if seen && now.Sub(last) < w.debounce {
		return
	}
	w.logger.Warn("model file changed on disk; restart to load it",
		zap.String("model", name),
		zap.String("path", abs),
		zap.String("op", event.Op.String()))
}

package prompt

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"loom/pkg/logger"
)

const debounceDelay = 100 * time.Millisecond

// Watcher reloads presets when their files change and notifies
// subscribers with the changed file path.
type Watcher struct {
	watcher  *fsnotify.Watcher
	store    *Store
	onReload []func(path string)
	stopCh   chan struct{}
	debounce map[string]*time.Timer
	mu       sync.Mutex
	stopOnce sync.Once
}

// NewWatcher creates a watcher over the store's directory.
func NewWatcher(store *Store) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  w,
		store:    store,
		stopCh:   make(chan struct{}),
		debounce: make(map[string]*time.Timer),
	}, nil
}

// OnReload registers a callback invoked after a preset file reloads.
func (w *Watcher) OnReload(fn func(path string)) {
	w.mu.Lock()
	w.onReload = append(w.onReload, fn)
	w.mu.Unlock()
}

// Start begins watching the preset directory.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.store.Dir()); err != nil {
		return err
	}
	go w.run()
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.handleEvent(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("prompt watcher error")
		}
	}
}

// handleEvent debounces rapid successive events on the same file.
func (w *Watcher) handleEvent(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.debounce[path]; ok {
		timer.Stop()
	}
	w.debounce[path] = time.AfterFunc(debounceDelay, func() {
		w.store.ReloadFile(path)
		logger.Debug().Str("path", path).Msg("prompt preset reloaded")

		w.mu.Lock()
		delete(w.debounce, path)
		callbacks := w.onReload
		w.mu.Unlock()

		for _, fn := range callbacks {
			fn(path)
		}
	})
}

// Stop stops the watcher and cancels pending reloads.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		for _, timer := range w.debounce {
			timer.Stop()
		}
		w.mu.Unlock()
		w.watcher.Close()
	})
}

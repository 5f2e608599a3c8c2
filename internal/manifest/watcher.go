package manifest

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher watches the manifest directory and calls onChange when the
// manifest file is rewritten by another process.
type Watcher struct {
	store         *Store
	onChange      func()
	watcher       *fsnotify.Watcher
	mu            sync.Mutex
	debounceTimer *time.Timer
	debounceDelay time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewWatcher creates a watcher for store's manifest file.
func NewWatcher(store *Store, debounce time.Duration, onChange func()) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		store:         store,
		onChange:      onChange,
		debounceDelay: debounce,
		stopChan:      make(chan struct{}),
	}
}

// Start begins watching. The manifest directory must exist.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: atomic saves replace the file, which would drop a
	// watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(w.store.Path())); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher

	log.Info().Str("path", w.store.Path()).Msg("Manifest watcher started")
	go w.processEvents()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.mu.Lock()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
		}
		w.mu.Unlock()
		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	return err
}

func (w *Watcher) processEvents() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Manifest watcher error")

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != filepath.Base(w.store.Path()) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.check)
	w.mu.Unlock()
}

func (w *Watcher) check() {
	select {
	case <-w.stopChan:
		return
	default:
	}

	changed, err := w.store.ChangedOnDisk()
	if err != nil {
		// A half-written file from another writer; the next event retries.
		log.Debug().Err(err).Msg("Manifest could not be read after change event")
		return
	}
	if !changed {
		return
	}

	log.Info().Str("path", w.store.Path()).Msg("Manifest was modified externally")
	if w.onChange != nil {
		w.onChange()
	}
}

package main

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ToolWatcher re-resolves tool paths when files in the tools directory change
type ToolWatcher struct {
	dir      string
	onChange func()
	delay    time.Duration

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
}

// NewToolWatcher creates a watcher for dir that calls onChange after events settle
func NewToolWatcher(dir string, onChange func()) *ToolWatcher {
	return &ToolWatcher{
		dir:      dir,
		onChange: onChange,
		delay:    300 * time.Millisecond,
	}
}

// Start begins watching. A missing directory is not an error.
func (w *ToolWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return nil
	}
	if info, err := os.Stat(w.dir); err != nil || !info.IsDir() {
		LogDebug("tool_watcher").Str("path", w.dir).Msg("Tools directory missing, not watching")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	LogInfo("tool_watcher").Str("path", w.dir).Msg("Started watching tools directory")

	go w.watch(watcher, w.stopCh, w.doneCh)
	return nil
}

// Stop stops watching
func (w *ToolWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		close(w.stopCh)
		w.watcher.Close()
		<-w.doneCh
		w.watcher = nil
		LogInfo("tool_watcher").Msg("Stopped watching tools directory")
	}
}

// Running reports whether the watcher is active
func (w *ToolWatcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watcher != nil
}

func (w *ToolWatcher) watch(watcher *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	// Debounce: installers write several files in a row
	var debounceTimer *time.Timer

	for {
		select {
		case <-stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			LogDebug("tool_watcher").Str("file", event.Name).Str("op", event.Op.String()).Msg("Tools changed")

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.delay, w.onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			LogError("tool_watcher").Err(err).Msg("Watcher error")
		}
	}
}

package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/asheshgoplani/panewatch/internal/logging"
)

var watcherLog = logging.ForComponent(logging.CompConfig)

// debounceWindow coalesces rapid write events from editors that save via
// truncate+write or rename.
const debounceWindow = 500 * time.Millisecond

// Watcher reloads the config file on change so interval and quota tunables
// take effect between monitoring cycles without a restart.
type Watcher struct {
	path string
	fsw  *fsnotify.Watcher

	mu      sync.RWMutex
	current *Config

	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewWatcher loads the config at path and starts watching it for changes.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:    path,
		fsw:     fsw,
		current: cfg,
		closeCh: make(chan struct{}),
	}

	// Watch the directory, not the file: editors replace files via rename,
	// which breaks a direct file watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops watching.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.closeCh)
		w.fsw.Close()
	})
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			watcherLog.Warn("config_watch_error", slog.String("error", err.Error()))
		}
	}
}

// reload swaps in the new config. An invalid file keeps the previous config.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		watcherLog.Warn("config_reload_rejected", slog.String("error", err.Error()))
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	watcherLog.Info("config_reloaded", slog.String("path", w.path))
}


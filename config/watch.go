package config

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/go-faster/errors"
)

// Watcher holds a live, atomically-swappable Config and keeps it in
// sync with changes to the TOML file it was loaded from.
//
// Get returns the most recently loaded Config. cmd/renderqueued calls
// Get once at startup and builds its store, scheduler and dispatcher
// from that value, so changes picked up later are not applied to a
// running process.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	log     *slog.Logger

	watcher *fsnotify.Watcher
	closeMu sync.Mutex
	closed  bool
}

// NewWatcher loads path and begins watching it for changes. If path is
// empty, the returned Watcher never reloads and always serves the
// initial Default-plus-env-overrides configuration.
func NewWatcher(path string, log *slog.Logger) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, log: log}
	w.current.Store(cfg)
	if path == "" {
		return w, nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create config watcher")
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "watch config %s", path)
	}
	w.watcher = fw
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("config watcher error", "err", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Error("config reload failed, keeping previous configuration", "path", w.path, "err", err)
		return
	}
	w.current.Store(cfg)
	w.log.Info("config reloaded", "path", w.path)
}

// Get returns the most recently loaded Config. The returned value must
// be treated as immutable; a reload swaps in an entirely new Config
// rather than mutating the one in hand.
func (w *Watcher) Get() *Config {
	return w.current.Load()
}

// Close stops watching the underlying file. Close is idempotent.
func (w *Watcher) Close() error {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if w.closed || w.watcher == nil {
		w.closed = true
		return nil
	}
	w.closed = true
	return w.watcher.Close()
}

package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 300 * time.Millisecond

// Watcher keeps the current configuration snapshot and, in development,
// reloads it when files under the loader's directory change. Snapshots are
// never mutated; a reload swaps in a new one and notifies subscribers.
type Watcher struct {
	current   atomic.Pointer[Config]
	loader    *Loader
	logger    *zap.Logger
	fs        *fsnotify.Watcher
	mu        sync.Mutex
	callbacks []func(*Config)
	stopCh    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

// NewWatcher starts watching when initial is a development configuration.
// Other environments get a static snapshot.
func NewWatcher(initial *Config, loader *Loader, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		loader: loader,
		logger: logger.Named("config"),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	w.current.Store(initial)

	if !initial.IsDevelopment() {
		close(w.done)
		w.logger.Info("Configuration hot reloading disabled",
			zap.String("environment", string(initial.Environment)),
		)
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(loader.BasePath()); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", loader.BasePath(), err)
	}
	w.fs = fsw
	go w.watchLoop()

	w.logger.Info("Configuration hot reloading enabled",
		zap.String("dir", loader.BasePath()),
	)
	return w, nil
}

// Current returns the latest configuration snapshot.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// OnChange registers fn to run after every successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Reload loads the configuration again. An invalid result is logged and
// the previous snapshot stays in place.
func (w *Watcher) Reload() error {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Error("Invalid configuration after reload, keeping previous", zap.Error(err))
		return err
	}
	old := w.current.Swap(cfg)
	w.logChanges(old, cfg)
	w.notify(cfg)
	return nil
}

// Stop ends file watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.fs != nil {
			_ = w.fs.Close()
		}
	})
	<-w.done
}

func (w *Watcher) watchLoop() {
	defer close(w.done)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !isConfigFile(event.Name) {
				continue
			}
			w.logger.Debug("Configuration file changed",
				zap.String("file", event.Name),
				zap.String("op", event.Op.String()),
			)
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() { _ = w.Reload() })

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) notify(cfg *Config) {
	w.mu.Lock()
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for i, fn := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("Configuration callback panicked",
						zap.Int("callback_index", i),
						zap.Any("panic", r),
					)
				}
			}()
			fn(cfg)
		}()
	}
}

func (w *Watcher) logChanges(old, cfg *Config) {
	var changes []string
	if old.Logging.Level != cfg.Logging.Level {
		changes = append(changes, fmt.Sprintf("logging.level: %s -> %s", old.Logging.Level, cfg.Logging.Level))
	}
	if old.Cache.Warming.Enabled != cfg.Cache.Warming.Enabled {
		changes = append(changes, fmt.Sprintf("cache.warming.enabled: %v -> %v", old.Cache.Warming.Enabled, cfg.Cache.Warming.Enabled))
	}
	if old.Cache.DefaultTTL != cfg.Cache.DefaultTTL {
		changes = append(changes, fmt.Sprintf("cache.default_ttl: %s -> %s", old.Cache.DefaultTTL, cfg.Cache.DefaultTTL))
	}
	w.logger.Info("Configuration reloaded", zap.Strings("changes", changes))
}

func isConfigFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}

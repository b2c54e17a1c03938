package am

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/logger"
)

// DefaultDebouncePeriod collapses editor save bursts into one reload
const DefaultDebouncePeriod = 500 * time.Millisecond

// ConfigWatcher watches a file for changes and triggers callbacks.
// The parent directory is watched so editors that replace the file are still seen.
type ConfigWatcher struct {
	path            string
	watcher         *fsnotify.Watcher
	callbacks       []ChangeCallback
	mu              sync.RWMutex
	debounceTimer   *time.Timer
	debouncePeriod  time.Duration
	isOwnWrite      bool // Flag to prevent reload loops
	isOwnWriteMutex sync.Mutex
	logger          *zap.SugaredLogger
	done            chan struct{}
}

// ChangeCallback is called with the watched path after a debounced change
type ChangeCallback func(path string) error

// ReloadCallback is called when config is reloaded
// Receives the new config and returns any error
type ReloadCallback func(*Config) error

// WatcherOption configures a ConfigWatcher
type WatcherOption func(*ConfigWatcher)

// WithDebounce overrides DefaultDebouncePeriod
func WithDebounce(d time.Duration) WatcherOption {
	return func(cw *ConfigWatcher) { cw.debouncePeriod = d }
}

// WithWatcherLogger sets the watcher's logger
func WithWatcherLogger(l *zap.SugaredLogger) WatcherOption {
	return func(cw *ConfigWatcher) { cw.logger = l.Named("watcher") }
}

// globalWatcher holds the watcher of the loaded config file, if any
var (
	globalWatcher   *ConfigWatcher
	globalWatcherMu sync.Mutex
)

// NewConfigWatcher creates a watcher for path
func NewConfigWatcher(path string, opts ...WatcherOption) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", filepath.Dir(abs))
	}

	cw := &ConfigWatcher{
		path:           abs,
		watcher:        watcher,
		debouncePeriod: DefaultDebouncePeriod,
		logger:         logger.Named("watcher"),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(cw)
	}
	return cw, nil
}

// Path returns the absolute path being watched
func (cw *ConfigWatcher) Path() string {
	return cw.path
}

// OnChange registers a callback for debounced changes of the watched file
func (cw *ConfigWatcher) OnChange(callback ChangeCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// OnReload registers a callback that receives the freshly loaded config
func (cw *ConfigWatcher) OnReload(callback ReloadCallback) {
	cw.OnChange(func(path string) error {
		Reset()
		cfg, err := Load()
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		if err := cfg.Validate(); err != nil {
			return errors.Wrapf(err, "reloaded config from %s", path)
		}
		return callback(cfg)
	})
}

// MarkOwnWrite marks the next write as coming from us (prevents reload loops)
func (cw *ConfigWatcher) MarkOwnWrite() {
	cw.isOwnWriteMutex.Lock()
	defer cw.isOwnWriteMutex.Unlock()
	cw.isOwnWrite = true
}

// checkOwnWrite checks and clears the own-write flag
func (cw *ConfigWatcher) checkOwnWrite() bool {
	cw.isOwnWriteMutex.Lock()
	defer cw.isOwnWriteMutex.Unlock()

	if cw.isOwnWrite {
		cw.isOwnWrite = false
		return true
	}
	return false
}

// Start begins watching for changes
func (cw *ConfigWatcher) Start() {
	go cw.watchLoop()
}

// watchLoop monitors file system events
func (cw *ConfigWatcher) watchLoop() {
	for {
		select {
		case <-cw.done:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path || isBackupFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if cw.checkOwnWrite() {
				cw.logger.Debugw("Watcher ignoring own write", logger.FieldPath, event.Name)
				continue
			}

			cw.logger.Infow("Watcher detected change",
				logger.FieldPath, event.Name,
				"op", event.Op.String())
			cw.scheduleReload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warnw("Watcher error", logger.FieldError, err)
		}
	}
}

// scheduleReload debounces rapid file changes and triggers callbacks
func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}

	cw.debounceTimer = time.AfterFunc(cw.debouncePeriod, cw.fire)
}

// fire calls every registered callback; one failure does not stop the rest
func (cw *ConfigWatcher) fire() {
	select {
	case <-cw.done:
		return
	default:
	}

	cw.mu.RLock()
	callbacks := make([]ChangeCallback, len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback(cw.path); err != nil {
			cw.logger.Warnw("Watcher callback error",
				logger.FieldPath, cw.path,
				logger.FieldError, err)
		}
	}
}

// Stop stops watching
func (cw *ConfigWatcher) Stop() error {
	cw.mu.Lock()
	select {
	case <-cw.done:
		cw.mu.Unlock()
		return nil
	default:
		close(cw.done)
	}
	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.mu.Unlock()
	return cw.watcher.Close()
}

// isBackupFile checks if the file is a rotated backup (.back1, .back2, .back3)
func isBackupFile(path string) bool {
	ext := filepath.Ext(path)
	return strings.HasPrefix(ext, ".back") && len(ext) == len(".back1")
}

// SetGlobalWatcher sets the watcher notified by Save (used to prevent reload loops)
func SetGlobalWatcher(watcher *ConfigWatcher) {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	globalWatcher = watcher
}

// GetGlobalWatcher returns the global watcher instance
func GetGlobalWatcher() *ConfigWatcher {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	return globalWatcher
}

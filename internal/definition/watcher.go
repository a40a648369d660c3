package definition

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for file events to settle
// before reloading.
const DefaultDebounce = 250 * time.Millisecond

// ErrInvalidDefinitions is returned by Reload when validation fails. The
// registry keeps its previous snapshot.
var ErrInvalidDefinitions = errors.New("definition: invalid definitions")

// Reloader loads, validates, and swaps definitions into a Registry.
type Reloader struct {
	Loader      *Loader
	Validator   *Validator
	Registry    *Registry
	Directories []string
	Logger      *zap.Logger
}

// Reload loads every definition file, validates the set, and replaces the
// registry snapshot. Warnings are logged; errors abort the swap.
func (r *Reloader) Reload() (Report, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	defs, err := r.Loader.LoadAll(r.Directories)
	if err != nil {
		return Report{}, err
	}

	report := r.Validator.Validate(defs)
	for _, w := range report.Warnings {
		logger.Warn("definition warning",
			zap.String("path", w.Path),
			zap.String("code", w.Code),
			zap.String("message", w.Message),
		)
	}
	if !report.OK() {
		return report, fmt.Errorf("%w: %d errors, first: %s", ErrInvalidDefinitions, len(report.Errors), report.Errors[0].Error())
	}

	r.Registry.Replace(defs)
	logger.Info("definitions loaded",
		zap.Int("files", len(defs)),
		zap.Int("entries", r.Registry.Len()),
		zap.String("checksum", r.Registry.Checksum()),
	)
	return report, nil
}

// Watcher reloads definitions when files in the watched directories change.
// Bursts of events are coalesced into one reload per debounce window.
type Watcher struct {
	reloader *Reloader
	debounce time.Duration
	logger   *zap.Logger
	onReload func(error)

	fsw *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithReloadHook registers a callback invoked after every reload attempt.
func WithReloadHook(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher creates a watcher over the reloader's directories.
func NewWatcher(reloader *Reloader, logger *zap.Logger, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("definition: create watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		reloader: reloader,
		debounce: DefaultDebounce,
		logger:   logger,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start adds watches for every directory below the configured roots and
// processes events until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	for _, dir := range w.reloader.Directories {
		if err := w.addRecursive(dir); err != nil {
			return err
		}
	}
	go w.run(ctx)
	w.logger.Info("definition watcher started",
		zap.Strings("directories", w.reloader.Directories),
		zap.Duration("debounce", w.debounce),
	)
	return nil
}

// Close stops the watcher and any pending reload.
func (w *Watcher) Close() error {
	w.mu.Lock()
	select {
	case <-w.done:
		w.mu.Unlock()
		return nil
	default:
	}
	close(w.done)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("definition: watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("definition watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
			w.schedule()
			return
		}
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}
	if !w.relevant(event.Name) {
		return
	}
	w.logger.Debug("definition change detected", zap.String("path", event.Name), zap.String("op", event.Op.String()))
	w.schedule()
}

func (w *Watcher) relevant(path string) bool {
	for _, dir := range w.reloader.Directories {
		if w.reloader.Loader.Matches(dir, path) {
			return true
		}
	}
	return false
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.done:
		return
	default:
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}
	_, err := w.reloader.Reload()
	if err != nil {
		w.logger.Warn("definition reload failed, keeping previous definitions", zap.Error(err))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}

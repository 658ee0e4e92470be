package routes

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// WatchDebounce is how long the watcher waits after the last write
// before reloading. Editors often write a file in several steps.
const WatchDebounce = 250 * time.Millisecond

// Watcher reloads a route file whenever it changes on disk.
type Watcher struct {
	path     string
	onChange func(GuardConfig)
	logger   zerolog.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// Watch watches path until ctx is cancelled or Close is called.
// onChange receives every successfully parsed revision; a file that fails to
// parse is logged and the previous table stays in effect.
func Watch(ctx context.Context, path string, onChange func(GuardConfig), logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("[routes.Watch] new watcher: %w", err)
	}
	// The directory is watched rather than the file so that atomic
	// rename-over saves are seen.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("[routes.Watch] watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		logger:   logger,
		debounce: WatchDebounce,
		watcher:  fsw,
		done:     make(chan struct{}),
	}
	go w.run(ctx, fsw.Events, fsw.Errors)
	return w, nil
}

func (w *Watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			w.watcher.Close()
			return
		case event, ok := <-events:
			if !ok {
				w.stopTimer()
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-errs:
			if !ok {
				return
			}
			w.logger.Err(err).Str("path", w.path).Msg("route watcher error")
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("ignoring invalid route file")
		return
	}
	w.logger.Info().Str("path", w.path).Int("rules", len(cfg.Rules)).Msg("route table reloaded")
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

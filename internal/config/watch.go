package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounceWindow coalesces the burst of events an editor's atomic
// write-then-rename produces into a single reload.
const debounceWindow = 500 * time.Millisecond

// SeedWatcher watches a registry seed file on disk and invokes onChange
// with the newly-loaded RegistrySeed each time the file is written,
// created, or renamed into place. Grounded on the teacher pack's own
// config-reload watcher (ManuGH-xg2g's internal/config/reload.go), which
// watches the containing directory rather than the file itself so an
// editor's atomic replace (write-temp-then-rename) is still observed.
type SeedWatcher struct {
	path     string
	log      zerolog.Logger
	watcher  *fsnotify.Watcher
	onChange func(RegistrySeed)
}

// NewSeedWatcher constructs a watcher for the seed file at path. Call
// Start to begin watching; cancelling the context passed to Start is what
// releases the underlying inotify handle (there is no separate Stop).
func NewSeedWatcher(path string, log zerolog.Logger, onChange func(RegistrySeed)) *SeedWatcher {
	return &SeedWatcher{path: path, log: log.With().Str("component", "config_watcher").Logger(), onChange: onChange}
}

// Start begins watching the seed file's directory in a background
// goroutine. It returns once the watch is established; ctx cancellation
// stops the goroutine and releases the watcher.
func (w *SeedWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	go w.loop(ctx)
	return nil
}

func (w *SeedWatcher) loop(ctx context.Context) {
	name := filepath.Base(w.path)
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, func() { w.reload() })

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("registry seed watcher error")
		}
	}
}

func (w *SeedWatcher) reload() {
	seed, err := LoadRegistrySeed(w.path)
	if err != nil {
		w.log.Error().Err(err).Str("path", w.path).Msg("registry seed reload failed, keeping previous seed")
		return
	}
	w.log.Info().Str("path", w.path).Int("tracks", len(seed.Library)).Msg("registry seed reloaded")
	if w.onChange != nil {
		w.onChange(seed)
	}
}

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay lets a burst of editor writes settle before reloading.
const reloadDelay = 300 * time.Millisecond

// Watch reloads the store whenever the backing file changes on disk, until
// ctx is cancelled. The parent directory is watched because many editors
// replace the file instead of writing it in place.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	s.log.Info().Str("path", s.path).Msg("Watching config file")

	go s.watch(ctx, watcher)
	return nil
}

func (s *Store) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	name := filepath.Base(s.path)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	reload := func() {
		changed, err := s.reload()
		if err != nil {
			s.log.Warn().Err(err).Msg("Config reload failed, keeping previous macros")
			return
		}
		if !changed {
			return
		}
		s.log.Info().Msg("Config reloaded")
		s.notify()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDelay, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Error().Err(err).Msg("Watcher error")
		}
	}
}

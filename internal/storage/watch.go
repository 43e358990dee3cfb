package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/noahxzhu/broadcast-scheduler/internal/model"
)

const watchDebounce = 250 * time.Millisecond

// Watch reloads the store whenever the schedule file is changed by something
// other than this store, and passes the reloaded active list to onChange. It blocks
// until ctx is cancelled. The directory is watched rather than the file so
// that atomic replacements are seen.
func (s *Store) Watch(ctx context.Context, onChange func([]model.Schedule)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(s.filePath)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	s.log.Info().Str("dir", dir).Msg("watching schedule file")

	target := filepath.Clean(s.filePath)
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			debounce = time.After(watchDebounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			s.log.Warn().Err(err).Msg("watcher error")
		case <-debounce:
			debounce = nil
			if s.reloadIfChanged() {
				onChange(s.Active())
			}
		}
	}
}

// reloadIfChanged reloads the file unless it holds exactly what this store
// last wrote. It reports whether a reload happened.
func (s *Store) reloadIfChanged() bool {
	data, err := afero.ReadFile(s.fs, s.filePath)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read changed schedule file")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if bytes.Equal(data, s.lastWritten) {
		return false
	}
	s.Data = s.decode(data)
	s.lastWritten = data
	s.log.Info().Int("schedules", len(s.Data.Schedules)).Msg("schedule file changed externally, reloaded")
	return true
}

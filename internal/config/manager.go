package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Manager serves the current configuration snapshot and keeps it fresh by
// watching the backing file. A failed reload keeps the last good snapshot
// in place.
type Manager struct {
	path   string
	logger zerolog.Logger

	mu   sync.RWMutex
	snap *Snapshot
}

func NewManager(path string, logger zerolog.Logger) *Manager {
	return &Manager{path: path, logger: logger}
}

// Load reads the file and commits the snapshot. Must succeed once before
// Snapshot is used.
func (m *Manager) Load() (*Snapshot, error) {
	snap, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.commit(snap)
	return snap, nil
}

func (m *Manager) commit(snap *Snapshot) {
	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()
}

// Snapshot returns the current immutable configuration view.
func (m *Manager) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Watch reloads the snapshot whenever the file changes, until ctx is
// cancelled. The parent directory is watched because editors typically
// replace the file via rename.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		return err
	}

	target := filepath.Clean(m.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			snap, err := Load(m.path)
			if err != nil {
				m.logger.Error().Err(err).Str("path", m.path).Msg("channel config reload failed, keeping previous snapshot")
				continue
			}
			m.commit(snap)
			m.logger.Info().Str("path", m.path).Msg("channel config reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Error().Err(err).Msg("channel config watcher error")
		}
	}
}

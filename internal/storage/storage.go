// Package storage persists per-guild settings in a flat JSON document.
package storage

import (
	"fmt"
	"sync"

	"github.com/keshon/basicbot/internal/datastore"

	"github.com/rs/zerolog"
)

type Storage struct {
	ds *datastore.DataStore
	mu sync.Mutex // serialises read-modify-write cycles
}

// New opens the document at filePath. A corrupt document is moved aside and
// replaced by an empty one rather than failing startup.
func New(filePath string, log zerolog.Logger) (*Storage, error) {
	cfg := datastore.DefaultConfig(filePath)
	cfg.ResetOnCorrupt = true
	cfg.Logger = log

	ds, err := datastore.NewWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return &Storage{ds: ds}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

// Reload discards the in-memory copy and re-reads the document.
func (s *Storage) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ds.Reload()
}

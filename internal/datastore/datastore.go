// Package datastore is a small JSON-file backed key-value store. The whole
// document is kept in memory and rewritten atomically on save.
package datastore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrCorrupt is returned when the document on disk is not a JSON object.
var ErrCorrupt = errors.New("datastore: corrupt document")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("datastore: closed")

// Config tunes a DataStore.
type Config struct {
	FilePath         string
	AutoSaveInterval time.Duration // 0 disables the background saver
	BackupCount      int           // number of backup files to keep
	ResetOnCorrupt   bool          // move a corrupt document aside and start empty
	Logger           zerolog.Logger
}

// DefaultConfig keeps three backups and saves only on demand.
func DefaultConfig(filePath string) *Config {
	return &Config{
		FilePath:    filePath,
		BackupCount: 3,
		Logger:      zerolog.Nop(),
	}
}

type DataStore struct {
	data         map[string]json.RawMessage
	file         string
	mu           sync.RWMutex
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	config       *Config
	lastChecksum string
	closed       bool
}

// New opens the document at filePath with DefaultConfig.
func New(filePath string) (*DataStore, error) {
	return NewWithConfig(DefaultConfig(filePath))
}

// NewWithConfig opens config.FilePath, creating its directory, and starts
// the background saver when AutoSaveInterval is set.
func NewWithConfig(config *Config) (*DataStore, error) {
	switch {
	case config == nil:
		return nil, errors.New("datastore: nil config")
	case config.FilePath == "":
		return nil, errors.New("datastore: empty file path")
	}
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("datastore: %w", err)
	}

	ds := &DataStore{
		data:   make(map[string]json.RawMessage),
		file:   config.FilePath,
		config: config,
	}

	if err := ds.Reload(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	ds.cancel = cancel
	if config.AutoSaveInterval > 0 {
		ds.wg.Add(1)
		go ds.autoSave(ctx)
	}

	return ds, nil
}

// Reload replaces the in-memory document with the one on disk. A missing
// file yields an empty document.
func (ds *DataStore) Reload() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	raw, err := os.ReadFile(ds.file)
	if errors.Is(err, os.ErrNotExist) {
		ds.data = make(map[string]json.RawMessage)
		ds.lastChecksum = ""
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", ds.file, err)
	}

	var temp map[string]json.RawMessage
	if err := json.Unmarshal(raw, &temp); err != nil || temp == nil {
		if !ds.config.ResetOnCorrupt {
			return fmt.Errorf("%w: %s: %v", ErrCorrupt, ds.file, err)
		}
		aside := fmt.Sprintf("%s.corrupt.%s", ds.file, time.Now().Format("20060102_150405"))
		if rerr := os.Rename(ds.file, aside); rerr != nil {
			ds.config.Logger.Warn().Err(rerr).Str("file", ds.file).Msg("failed to move corrupt document aside")
		}
		ds.config.Logger.Warn().Str("file", ds.file).Str("moved_to", aside).Msg("corrupt document, starting empty")
		temp = make(map[string]json.RawMessage)
		raw = nil
	}

	ds.data = temp
	ds.lastChecksum = ""
	if raw != nil {
		ds.lastChecksum = checksum(raw)
	}
	return nil
}

// Get decodes the value stored under key into out.
func (ds *DataStore) Get(key string, out any) (bool, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	if ds.closed {
		return false, ErrClosed
	}

	raw, ok := ds.data[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return true, nil
}

// Put stores value under key.
func (ds *DataStore) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return ErrClosed
	}
	ds.data[key] = raw
	return nil
}

// Delete removes a key.
func (ds *DataStore) Delete(key string) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return ErrClosed
	}
	delete(ds.data, key)
	return nil
}

// Keys returns all keys in sorted order.
func (ds *DataStore) Keys() []string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	keys := make([]string, 0, len(ds.data))
	for k := range ds.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SaveToFile writes pending changes now.
func (ds *DataStore) SaveToFile() error {
	ds.mu.RLock()
	closed := ds.closed
	ds.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return ds.saveToFile()
}

// Close stops the background saver and writes the document one last time.
func (ds *DataStore) Close() error {
	ds.mu.Lock()
	if ds.closed {
		ds.mu.Unlock()
		return nil
	}
	ds.closed = true
	ds.mu.Unlock()

	ds.cancel()
	ds.wg.Wait()

	return ds.saveToFile()
}

// saveToFile writes the document if it changed since the last save or load.
func (ds *DataStore) saveToFile() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	doc, err := json.MarshalIndent(ds.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	digest := checksum(doc)
	if digest == ds.lastChecksum {
		return nil
	}

	if ds.config.BackupCount > 0 {
		if err := ds.rotateBackups(); err != nil {
			ds.config.Logger.Warn().Err(err).Str("file", ds.file).Msg("backup skipped")
		}
	}
	if err := replaceFile(ds.file, doc); err != nil {
		return err
	}

	// read back what landed on disk before trusting it
	written, err := os.ReadFile(ds.file)
	switch {
	case err != nil:
		return fmt.Errorf("verify %s: %w", ds.file, err)
	case checksum(written) != digest:
		return fmt.Errorf("verify %s: content differs after write", ds.file)
	}

	ds.lastChecksum = digest
	return nil
}

// replaceFile swaps path for a new file holding doc. Readers see either the
// old or the new content, never a partial write.
func replaceFile(path string, doc []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	_, err = tmp.Write(doc)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// rotateBackups snapshots the current file and prunes snapshots beyond
// BackupCount, oldest first.
func (ds *DataStore) rotateBackups() error {
	current, err := os.ReadFile(ds.file)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	stamp := time.Now().UTC().Format("20060102_150405.000000000")
	if err := os.WriteFile(ds.file+".backup."+stamp, current, 0o644); err != nil {
		return err
	}

	snapshots, err := filepath.Glob(ds.file + ".backup.*")
	if err != nil {
		return err
	}
	excess := len(snapshots) - ds.config.BackupCount
	if excess <= 0 {
		return nil
	}
	sort.Strings(snapshots)
	var errs []error
	for _, old := range snapshots[:excess] {
		if err := os.Remove(old); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ds *DataStore) autoSave(ctx context.Context) {
	defer ds.wg.Done()

	tick := time.NewTicker(ds.config.AutoSaveInterval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
		case <-ctx.Done():
			return
		}
		if err := ds.saveToFile(); err != nil {
			ds.config.Logger.Error().Err(err).Str("file", ds.file).Msg("auto-save failed")
		}
	}
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

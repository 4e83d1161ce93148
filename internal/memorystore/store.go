// Package memorystore implements the Memory Store (spec.md §3, §6
// "Persisted state"): process-scoped keyed state with an optional snapshot
// to disk, plus SPEC_FULL.md's supplemental embedded-Badger durable
// backend and the speech cache used by the DJ coordinator and TTS
// adapter.
package memorystore

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by Get when key has no entry.
var ErrNotFound = errors.New("memorystore: key not found")

// Store is the keyed state contract every backend implements. The memory
// store is single-writer per key; callers coordinate key ownership
// themselves (spec.md §5 "single-writer per key").
type Store interface {
	// Get unmarshals the value stored under key into out. Returns
	// ErrNotFound if key is absent.
	Get(key string, out any) error
	// Set marshals value and stores it under key.
	Set(key string, value any) error
	// Delete removes key, if present.
	Delete(key string) error
	// Close releases any resources the backend holds.
	Close() error
}

// JSONStore is the default, required backend: an in-memory map with an
// optional atomic JSON snapshot to disk (spec.md §6). Safe for concurrent
// use.
type JSONStore struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage
	path string
	log  zerolog.Logger
}

// NewJSONStore constructs a JSONStore. If snapshotPath is non-empty, Load
// reads an existing snapshot (if any) and Snapshot/Close write one
// atomically via renameio (write-temp-then-rename, so a crash mid-write
// never corrupts the file).
func NewJSONStore(snapshotPath string, log zerolog.Logger) *JSONStore {
	return &JSONStore{
		data: make(map[string]json.RawMessage),
		path: snapshotPath,
		log:  log.With().Str("component", "memory_store").Logger(),
	}
}

// Load reads the snapshot file into memory, if snapshotPath was set and
// the file exists. Call once at startup before serving Get/Set.
func (s *JSONStore) Load() error {
	if s.path == "" {
		return nil
	}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

func (s *JSONStore) Get(key string, out any) error {
	s.mu.RLock()
	raw, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

func (s *JSONStore) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[key] = raw
	s.mu.Unlock()
	return nil
}

func (s *JSONStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Snapshot writes the current state to disk atomically. A no-op if
// snapshotPath was empty at construction.
func (s *JSONStore) Snapshot() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	raw, err := json.Marshal(s.data)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return renameio.WriteFile(s.path, raw, 0o644)
}

// Close flushes a final snapshot, if persistence is enabled.
func (s *JSONStore) Close() error {
	if err := s.Snapshot(); err != nil {
		s.log.Error().Err(err).Msg("final memory store snapshot failed")
		return err
	}
	return nil
}

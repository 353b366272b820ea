// Package fileledger persists positions as a single JSON document with
// atomic replace-on-write. It is the durable source of truth the engine
// reconciles against after a restart.
package fileledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

// Store keeps every tracked position in one JSON file keyed by instrument
// key. Writes go to a temp file in the same directory followed by a
// rename, so a crash mid-write leaves either the old or the new complete
// document on disk.
type Store struct {
	mu     sync.Mutex
	path   string
	logger ports.Logger

	// cache mirrors the on-disk document so a Save only marshals, never
	// re-reads.
	cache map[string]*domain.Position
}

// New opens (or creates) the ledger file at path.
func New(path string, logger ports.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	s := &Store{path: path, logger: logger}
	if err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load returns all persisted positions keyed by instrument key.
func (s *Store) Load(ctx context.Context) (map[string]*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*domain.Position, len(s.cache))
	for k, p := range s.cache {
		cp := *p
		out[k] = &cp
	}
	return out, nil
}

// Save replaces the record for the position's instrument and flushes the
// whole document to disk atomically.
func (s *Store) Save(ctx context.Context, pos *domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *pos
	s.cache[pos.Instrument.Key()] = &cp
	if err := s.flush(); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrLedgerPersistence, err)
	}
	s.logger.Debug(ctx, "Position persisted", map[string]interface{}{
		"instrument": pos.Instrument.Key(),
		"state":      string(pos.State),
	})
	return nil
}

// read loads the document from disk into the cache. A missing file is an
// empty ledger.
func (s *Store) read() error {
	s.cache = make(map[string]*domain.Position)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading ledger %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.cache); err != nil {
		return fmt.Errorf("parsing ledger %s: %w", s.path, err)
	}
	return nil
}

// flush writes the cache to a temp file and renames it over the ledger.
// Callers must hold s.mu.
func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.cache, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp ledger file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp ledger file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp ledger file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing ledger file: %w", err)
	}
	return nil
}

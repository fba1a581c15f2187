// Package cache implements the sharded on-disk key/value store for
// transcript payloads. Entries live in bounded chunk files; an index file
// maps each cache key to its chunk so a lookup never scans the directory.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultChunkCapacity bounds entries per chunk file
const DefaultChunkCapacity = 200

const indexFileName = "index.json"

// ErrMiss means the key is not in the store
var ErrMiss = errors.New("cache: key not found")

// WriteError wraps a failed chunk or index write. Callers treat it as
// fatal because continuing would lose durability guarantees.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("cache write failed (%s): %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// chunk is one bounded shard. entries stays nil until hydrated from disk.
type chunk struct {
	mu      sync.Mutex
	id      int
	entries map[string]json.RawMessage
}

// indexDoc is the persisted form of the key→chunk mapping
type indexDoc struct {
	Version int            `json:"version"`
	Open    int            `json:"open"`
	Keys    map[string]int `json:"keys"`
}

// Store is the chunked cache store. The in-memory index is authoritative
// for lookups; chunk contents are read from disk lazily.
type Store struct {
	dir      string
	capacity int
	log      zerolog.Logger

	mu        sync.Mutex // guards index, chunks map, open-chunk assignment
	index     map[string]int
	chunks    map[int]*chunk
	open      int // id of the chunk currently accepting new keys
	openCount int // keys assigned to the open chunk
}

// Open opens (or creates) a chunked store rooted at dir
func Open(dir string, capacity int, log zerolog.Logger) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultChunkCapacity
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	s := &Store{
		dir:      dir,
		capacity: capacity,
		log:      log.With().Str("component", "cache").Logger(),
		index:    make(map[string]int),
		chunks:   make(map[int]*chunk),
		open:     1,
	}

	if err := s.loadIndex(); err != nil {
		return nil, err
	}

	s.log.Info().
		Int("entries", len(s.index)).
		Int("open_chunk", s.open).
		Int("capacity", capacity).
		Msg("Cache store opened")

	return s, nil
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFileName))
	if os.IsNotExist(err) {
		return nil // fresh store
	}
	if err != nil {
		return fmt.Errorf("failed to read cache index: %w", err)
	}

	var doc indexDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse cache index: %w", err)
	}

	s.index = doc.Keys
	if s.index == nil {
		s.index = make(map[string]int)
	}
	s.open = doc.Open
	if s.open < 1 {
		s.open = 1
	}

	// The index is authoritative for the open chunk's fill level
	for _, id := range s.index {
		if id == s.open {
			s.openCount++
		}
	}

	return nil
}

// Get returns the payload for key, or ErrMiss
func (s *Store) Get(key string) (json.RawMessage, error) {
	s.mu.Lock()
	id, ok := s.index[key]
	if !ok {
		s.mu.Unlock()
		return nil, ErrMiss
	}
	c := s.chunkRef(id)
	s.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := s.hydrate(c); err != nil {
		return nil, err
	}

	payload, ok := c.entries[key]
	if !ok {
		// Index said the key lives here but the shard disagrees; treat
		// as a miss so callers can re-fetch, and leave repair to the
		// health check.
		s.log.Warn().Str("key", key).Int("chunk", id).Msg("Index points at chunk without the entry")
		return nil, ErrMiss
	}

	out := make(json.RawMessage, len(payload))
	copy(out, payload)
	return out, nil
}

// Exists reports whether key is present, from the index alone
func (s *Store) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[key]
	return ok
}

// Put upserts a payload. An existing key is rewritten in its own chunk;
// a new key goes to the open chunk, sealing it at capacity.
func (s *Store) Put(key string, payload json.RawMessage) error {
	s.mu.Lock()
	id, existing := s.index[key]
	if !existing {
		if s.openCount >= s.capacity {
			// Seal the full chunk and open the next one
			s.open++
			s.openCount = 0
			s.log.Debug().Int("chunk", s.open).Msg("Opened new cache chunk")
		}
		id = s.open
		s.openCount++
	}
	c := s.chunkRef(id)
	s.mu.Unlock()

	c.mu.Lock()
	if err := s.hydrate(c); err != nil {
		c.mu.Unlock()
		s.rollbackSlot(existing)
		return err
	}
	prev, had := c.entries[key]
	c.entries[key] = payload
	err := writeJSONAtomic(s.chunkPath(c.id), c.entries)
	if err != nil {
		// keep memory in step with disk so a later write of this chunk
		// does not carry the entry that never landed
		if had {
			c.entries[key] = prev
		} else {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	if err != nil {
		s.rollbackSlot(existing)
		return &WriteError{Op: fmt.Sprintf("chunk %d", c.id), Err: err}
	}

	// Commit the assignment only after the chunk write landed
	s.mu.Lock()
	s.index[key] = id
	err = s.persistIndexLocked()
	s.mu.Unlock()

	if err != nil {
		return &WriteError{Op: "index", Err: err}
	}

	return nil
}

// rollbackSlot frees the open-chunk slot claimed for a new key whose
// write failed, so the chunk does not seal under capacity later
func (s *Store) rollbackSlot(existing bool) {
	if existing {
		return
	}
	s.mu.Lock()
	if s.openCount > 0 {
		s.openCount--
	}
	s.mu.Unlock()
}

// Keys returns all cache keys in no particular order
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.index))
	for k := range s.index {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Chunks returns the number of chunks in use (sealed plus open)
func (s *Store) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int]bool)
	for _, id := range s.index {
		seen[id] = true
	}
	return len(seen)
}

// Verify checks that every indexed chunk file exists on disk
func (s *Store) Verify() error {
	s.mu.Lock()
	seen := make(map[int]bool)
	for _, id := range s.index {
		seen[id] = true
	}
	s.mu.Unlock()

	for id := range seen {
		if id == s.open {
			continue // the open chunk may not have been flushed yet
		}
		if _, err := os.Stat(s.chunkPath(id)); err != nil {
			return fmt.Errorf("chunk %d is indexed but unreadable: %w", id, err)
		}
	}
	return nil
}

// chunkRef returns the in-memory handle for a chunk id. Caller holds s.mu.
func (s *Store) chunkRef(id int) *chunk {
	c, ok := s.chunks[id]
	if !ok {
		c = &chunk{id: id}
		s.chunks[id] = c
	}
	return c
}

// hydrate loads chunk contents from disk on first access. Caller holds c.mu.
func (s *Store) hydrate(c *chunk) error {
	if c.entries != nil {
		return nil
	}

	data, err := os.ReadFile(s.chunkPath(c.id))
	if os.IsNotExist(err) {
		// Open chunk that has never been written
		c.entries = make(map[string]json.RawMessage)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read chunk %d: %w", c.id, err)
	}

	entries := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse chunk %d: %w", c.id, err)
	}

	c.entries = entries
	return nil
}

func (s *Store) chunkPath(id int) string {
	// Zero-padded so directory listings sort in creation order
	return filepath.Join(s.dir, fmt.Sprintf("chunk-%06d.json", id))
}

// persistIndexLocked writes the index file. Caller holds s.mu.
func (s *Store) persistIndexLocked() error {
	doc := indexDoc{
		Version: 1,
		Open:    s.open,
		Keys:    s.index,
	}
	return writeJSONAtomic(filepath.Join(s.dir, indexFileName), doc)
}

// writeJSONAtomic writes via a temp file and rename so readers never
// observe a partially written file
func writeJSONAtomic(path string, v interface{}) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}

	return nil
}

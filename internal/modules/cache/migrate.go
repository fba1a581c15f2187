package cache

import (
	"encoding/json"
	"fmt"
	"os"
)

// ImportMonolith streams a legacy single-document JSON store
// ({"key": payload, ...}) into the chunked store. Entries are decoded one
// at a time so peak memory stays bounded by the largest payload, not the
// total cache size. Returns the number of imported entries.
func (s *Store) ImportMonolith(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open monolith: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)

	tok, err := dec.Token()
	if err != nil {
		return 0, fmt.Errorf("failed to read monolith: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return 0, fmt.Errorf("monolith is not a JSON object")
	}

	imported := 0
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return imported, fmt.Errorf("failed to read key after %d entries: %w", imported, err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return imported, fmt.Errorf("unexpected token %v in monolith", keyTok)
		}

		var payload json.RawMessage
		if err := dec.Decode(&payload); err != nil {
			return imported, fmt.Errorf("failed to decode payload for %q: %w", key, err)
		}

		if err := s.Put(key, payload); err != nil {
			return imported, fmt.Errorf("failed to store %q: %w", key, err)
		}
		imported++

		if imported%1000 == 0 {
			s.log.Info().Int("entries", imported).Msg("Monolith import progress")
		}
	}

	if _, err := dec.Token(); err != nil {
		return imported, fmt.Errorf("failed to read closing token: %w", err)
	}

	s.log.Info().Int("entries", imported).Int("chunks", s.Chunks()).Msg("Monolith import finished")
	return imported, nil
}

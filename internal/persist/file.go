package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileStore keeps device records in a single JSON document: an object mapping
// record key to an object of named fields. The whole file is rewritten on
// every merge; the mutex serializes the read-modify-write so concurrent keys
// cannot lose updates.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by the given path. The file is created
// on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// MergeRecord reads the full document, overlays fields on the record under
// key, and writes the document back. A missing or corrupt file starts fresh.
func (s *FileStore) MergeRecord(key string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]map[string]any)
	if data, err := os.ReadFile(s.path); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			existing = make(map[string]map[string]any)
		}
	}

	record := existing[key]
	if record == nil {
		record = make(map[string]any)
	}
	for k, v := range fields {
		record[k] = v
	}
	existing[key] = record

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("encode device records: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

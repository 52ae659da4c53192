package persist

import "sync"

// MergedRecord is one recorded MergeRecord call.
type MergedRecord struct {
	Key    string
	Fields map[string]any
}

// FakeRecorder records merges for test assertions.
type FakeRecorder struct {
	mu sync.Mutex

	// Records contains every merge in call order.
	Records []MergedRecord

	// MergeError, if set, will be returned by MergeRecord.
	MergeError error
}

// NewFakeRecorder creates a FakeRecorder for testing.
func NewFakeRecorder() *FakeRecorder {
	return &FakeRecorder{}
}

// MergeRecord records the call.
func (f *FakeRecorder) MergeRecord(key string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MergeError != nil {
		return f.MergeError
	}
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	f.Records = append(f.Records, MergedRecord{Key: key, Fields: copied})
	return nil
}

// Writes returns the number of merges recorded for the given key.
func (f *FakeRecorder) Writes(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.Records {
		if r.Key == key {
			n++
		}
	}
	return n
}

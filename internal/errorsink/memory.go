package errorsink

import (
	"context"
	"sync"
)

// MemorySink keeps diverted records in memory
type MemorySink struct {
	mutex   sync.Mutex
	entries []Entry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Emit(_ context.Context, entry Entry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Entries returns a copy of the entries emitted so far
func (s *MemorySink) Entries() []Entry {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]Entry(nil), s.entries...)
}

func (s *MemorySink) Close() error {
	return nil
}

package wallet

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu  sync.Mutex
	raw []byte
}

// NewMemoryStore constructs an in-memory store for tests and the dev profile.
// Records are kept encoded so every read returns a fresh copy, as Redis would.
func NewMemoryStore() Store {
	return &memoryStore{}
}

func (s *memoryStore) Get(_ context.Context) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raw == nil {
		return nil, ErrNotFound
	}
	return decodeRecord(s.raw)
}

func (s *memoryStore) Set(_ context.Context, record *Record) error {
	payload, err := encodeRecord(record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = payload
	return nil
}

func (s *memoryStore) Update(_ context.Context, fn func(record *Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raw == nil {
		return ErrNotFound
	}
	record, err := decodeRecord(s.raw)
	if err != nil {
		return err
	}
	if err := fn(record); err != nil {
		return err
	}
	payload, err := encodeRecord(record)
	if err != nil {
		return err
	}
	s.raw = payload
	return nil
}

package audit

import (
	"context"
	"sync"
	"time"
)

const (
	// KeyWalletDisconnected records a disconnect with "<provider>/<address prefix>".
	KeyWalletDisconnected = "wallet_disconnected"
	// KeyWalletVerified records a completed verification.
	KeyWalletVerified = "wallet_verified"
)

// Entry is a single persisted audit event.
type Entry struct {
	Key       string
	Value     string
	CreatedAt time.Time
}

// Log is an append-only event log.
type Log interface {
	Save(ctx context.Context, key, value string) error
}

// MemoryLog keeps entries in process memory for tests and the dev profile.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryLog constructs an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Save appends an entry.
func (l *MemoryLog) Save(_ context.Context, key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Key: key, Value: value, CreatedAt: time.Now().UTC()})
	return nil
}

// Entries returns a copy of everything saved so far.
func (l *MemoryLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

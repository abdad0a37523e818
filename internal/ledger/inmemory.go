package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

type inMemoryLedger struct {
	mu       sync.RWMutex
	totals   map[string]decimal.Decimal
	recorded map[string]struct{}
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		totals:   make(map[string]decimal.Decimal),
		recorded: make(map[string]struct{}),
	}
}

func (l *inMemoryLedger) UpdateContributedAmount(_ context.Context, contributionID, recipientKey string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := contributionID + ":" + recipientKey
	if _, exists := l.recorded[key]; exists {
		return ErrDuplicateContribution
	}
	l.recorded[key] = struct{}{}
	l.totals[recipientKey] = l.totals[recipientKey].Add(amount)
	return nil
}

func (l *inMemoryLedger) ContributedAmount(_ context.Context, recipientKey string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totals[recipientKey], nil
}

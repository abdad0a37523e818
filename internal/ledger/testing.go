package ledger

import "github.com/shopspring/decimal"

// SeedTotal is a test helper that seeds a recipient total when using the in-memory ledger.
func SeedTotal(l Ledger, recipientKey string, amount decimal.Decimal) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.totals[recipientKey] = amount
	}
}

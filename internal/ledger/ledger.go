package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount occurs when a non-positive contribution is posted.
	ErrInvalidAmount = errors.New("contribution amount must be positive")

	// ErrDuplicateContribution indicates the contribution was already recorded for
	// the recipient and the call should be treated as idempotent.
	ErrDuplicateContribution = errors.New("duplicate contribution")
)

// Ledger records how much has been contributed to each recipient.
type Ledger interface {
	UpdateContributedAmount(ctx context.Context, contributionID, recipientKey string, amount decimal.Decimal) error
	ContributedAmount(ctx context.Context, recipientKey string) (decimal.Decimal, error)
}

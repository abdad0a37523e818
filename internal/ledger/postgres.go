package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresLedger persists contributions and per-recipient totals in PostgreSQL.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// UpdateContributedAmount records the contribution once and adds it to the
// recipient's running total in the same transaction.
func (l *PostgresLedger) UpdateContributedAmount(ctx context.Context, contributionID, recipientKey string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	tag, err := tx.Exec(ctx, `INSERT INTO contributions (id, contribution_id, recipient_key, amount)
        VALUES ($1, $2, $3, $4::numeric)
        ON CONFLICT (contribution_id, recipient_key) DO NOTHING`,
		uuid.New(), contributionID, recipientKey, amount.String())
	if err != nil {
		return fmt.Errorf("insert contribution %s: %w", contributionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateContribution
	}

	if _, err := tx.Exec(ctx, `INSERT INTO recipient_totals (recipient_key, amount, updated_at)
        VALUES ($1, $2::numeric, NOW())
        ON CONFLICT (recipient_key) DO UPDATE
        SET amount = recipient_totals.amount + EXCLUDED.amount, updated_at = NOW()`,
		recipientKey, amount.String()); err != nil {
		return fmt.Errorf("update total for %s: %w", recipientKey, err)
	}

	return tx.Commit(ctx)
}

// ContributedAmount returns the running total for a recipient, zero when unknown.
func (l *PostgresLedger) ContributedAmount(ctx context.Context, recipientKey string) (decimal.Decimal, error) {
	const query = `SELECT amount::text FROM recipient_totals WHERE recipient_key = $1`
	var raw string
	if err := l.db.QueryRow(ctx, query, recipientKey).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

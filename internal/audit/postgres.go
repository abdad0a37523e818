package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLog persists audit events in the event_log table.
type PostgresLog struct {
	db *pgxpool.Pool
}

// NewPostgresLog constructs a Postgres-backed audit log.
func NewPostgresLog(db *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{db: db}
}

// Save inserts an event row.
func (l *PostgresLog) Save(ctx context.Context, key, value string) error {
	if _, err := l.db.Exec(ctx, `INSERT INTO event_log (id, key, value, created_at) VALUES ($1, $2, $3, NOW())`,
		uuid.New(), key, value); err != nil {
		return fmt.Errorf("save audit event %s: %w", key, err)
	}
	return nil
}

// Recent returns the newest entries for a key, most recent first.
func (l *PostgresLog) Recent(ctx context.Context, key string, limit int) ([]Entry, error) {
	rows, err := l.db.Query(ctx, `SELECT key, value, created_at FROM event_log
        WHERE key = $1 ORDER BY created_at DESC LIMIT $2`, key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

package infra

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed schema/*.sql
var schemaFiles embed.FS

// Migrate applies the embedded schema to the database at url.
func Migrate(url string) error {
	source, err := iofs.New(schemaFiles, "schema")
	if err != nil {
		return fmt.Errorf("open embedded schema: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(url))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close() // nolint:errcheck

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres URL to the scheme of the pgx/v5 migrate driver.
func migrateURL(url string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(url, prefix) {
			return "pgx5://" + strings.TrimPrefix(url, prefix)
		}
	}
	return url
}

package sqlstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"clinicaudit/pkg/platform/sentinel"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate brings the schema up to date. It is the single schema step run at
// process start and is idempotent: an up-to-date database is not an error.
// The migrate instance is not closed because that would close db.
func Migrate(db *sql.DB, dialect Dialect) error {
	src, err := iofs.New(migrationsFS, "migrations/"+string(dialect))
	if err != nil {
		return fmt.Errorf("load %s migrations: %w", dialect, err)
	}

	var driver database.Driver
	switch dialect {
	case DialectSQLite:
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case DialectPostgres:
		driver, err = migratepg.WithInstance(db, &migratepg.Config{})
	default:
		return fmt.Errorf("migrate: unsupported dialect %q", dialect)
	}
	if err != nil {
		return fmt.Errorf("migrate driver: %w: %w", sentinel.ErrStorageUnavailable, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(dialect), driver)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply audit migrations: %w: %w", sentinel.ErrStorageUnavailable, err)
	}
	return nil
}

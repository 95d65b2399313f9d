package store

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Database drivers accepted by Open helpers and migrations.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded migration directory.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

func migrationsSource() source.Driver {
	d, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return d
}

// NormalizeDriver maps driver aliases to DriverPostgres or DriverSQLite.
func NormalizeDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pgx", "":
		return DriverPostgres, nil
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// migrationURL rewrites a database URL into the scheme registered by the
// golang-migrate driver: pgx5:// for Postgres, sqlite3:// for a SQLite file.
func migrationURL(driver, databaseURL string) (string, error) {
	normalized, err := NormalizeDriver(driver)
	if err != nil {
		return "", err
	}
	if normalized == DriverSQLite {
		if strings.HasPrefix(databaseURL, "sqlite3://") {
			return databaseURL, nil
		}
		return "sqlite3://" + databaseURL, nil
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, scheme) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, scheme), nil
		}
	}
	if strings.HasPrefix(databaseURL, "pgx5://") {
		return databaseURL, nil
	}
	return "", fmt.Errorf("unsupported postgres url scheme in %q", databaseURL)
}

// Migrator applies the embedded schema migrations to one database.
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator opens its own connection to databaseURL; close it with Close.
func NewMigrator(driver, databaseURL string) (*Migrator, error) {
	target, err := migrationURL(driver, databaseURL)
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", migrationsSource(), target)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down reverts steps migrations, or all of them when steps is 0.
func (m *Migrator) Down(steps uint) error {
	var err error
	if steps == 0 {
		err = m.m.Down()
	} else {
		if steps > math.MaxInt {
			return fmt.Errorf("migrate down: %d steps exceeds the maximum", steps)
		}
		err = m.m.Steps(-int(steps))
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Version reports the applied schema version; 0 means no migration is applied.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return version, dirty, nil
}

func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

// ApplyMigrations brings the schema at databaseURL up to date.
func ApplyMigrations(driver, databaseURL string) error {
	m, err := NewMigrator(driver, databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up()
}

package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	appLog "classgrid/internal/log"
)

//go:embed migration/sqlite/*.sql migration/postgres/*.sql
var migrations embed.FS

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the backing database.
type Config struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string
	// DSN is a file path (or ":memory:") for sqlite and a connection URL for
	// postgres.
	DSN string
}

// StoreError wraps any failure of the persistence layer.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Store persists schedule entries in a single table. Writers stage a new
// batch and then flip the active batch pointer, so readers only ever see a
// complete collection.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Open connects to the configured database and applies pending migrations.
func Open(cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = openSQLite(cfg.DSN)
	case DriverPostgres:
		db, err = openPostgres(cfg.DSN)
	default:
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("unsupported driver %q", driver)}
	}
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}

	if err := migrateUp(db, driver); err != nil {
		db.Close()
		return nil, &StoreError{Op: "migrate", Err: err}
	}

	appLog.Info("store opened", "driver", driver)
	return &Store{db: db, driver: driver, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func openSQLite(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// One connection: keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure sqlite db: %w", err)
	}
	return db, nil
}

func openPostgres(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres db: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to establish connection with db: %w", err)
	}
	return db, nil
}

func migrateUp(db *sql.DB, driver string) error {
	var (
		instance database.Driver
		err      error
	)
	switch driver {
	case DriverSQLite:
		instance, err = sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	case DriverPostgres:
		instance, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	}
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %w", err)
	}

	source, err := iofs.New(migrations, "migration/"+driver)
	if err != nil {
		return fmt.Errorf("failed to embed migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driver, instance)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// rebind rewrites '?' placeholders into the driver's native form.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

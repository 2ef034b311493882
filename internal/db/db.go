package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed schema_postgres.sql
var postgresSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

// Driver names accepted by OpenStore.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// OpenSQLite opens a SQLite database file. SQLite only allows one writer,
// so the pool is pinned to a single connection.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA journal_mode = WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			log.Printf("warning: %s: %v", pragma, err)
		}
	}
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// OpenStore opens and pings the store for driver. For postgres dsn is a
// connection URL; for sqlite it is a file path.
func OpenStore(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		conn *sql.DB
		err  error
	)
	switch driver {
	case DriverPostgres, "":
		driver = DriverPostgres
		conn, err = Open(dsn)
	case DriverSQLite:
		conn, err = OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := Ping(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return NewStore(conn, driver)
}

// EnsureSchema creates the Trip and BreadCrumb tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.d.schema); err != nil {
		return fmt.Errorf("apply %s schema: %w", s.d.name, err)
	}
	log.Printf("%s schema ensured", s.d.name)
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Driver reports the store's driver name.
func (s *Store) Driver() string { return s.d.name }

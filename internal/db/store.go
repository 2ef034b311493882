package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"

	"breadcrumb-pipeline/internal/breadcrumb"
)

// DateLayout is the processing-date format used across the store.
const DateLayout = "2006-01-02"

const sqliteTimestampLayout = "2006-01-02 15:04:05"

// dialect holds the SQL that differs between Postgres and SQLite.
type dialect struct {
	name   string
	schema string
	purge  string
	count  string
	lock   string // empty when the engine serializes writers itself
	bind   func(n int) string
	tstamp func(t time.Time) any
	// maxParams bounds the bind parameters of one statement.
	maxParams int
}

var postgresDialect = dialect{
	name:   DriverPostgres,
	schema: postgresSchema,
	purge:  `DELETE FROM BreadCrumb WHERE tstamp::date = $1::date`,
	count:  `SELECT COUNT(*) FROM BreadCrumb WHERE tstamp::date = $1::date`,
	lock:   `SELECT pg_advisory_xact_lock($1)`,
	bind:   func(n int) string { return fmt.Sprintf("$%d", n) },
	// Stored as TIMESTAMP without zone: keep the decoded wall clock.
	tstamp: func(t time.Time) any {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	},
	maxParams: 65535,
}

var sqliteDialect = dialect{
	name:      DriverSQLite,
	schema:    sqliteSchema,
	purge:     `DELETE FROM BreadCrumb WHERE substr(tstamp, 1, 10) = ?`,
	count:     `SELECT COUNT(*) FROM BreadCrumb WHERE substr(tstamp, 1, 10) = ?`,
	bind:      func(int) string { return "?" },
	tstamp:    func(t time.Time) any { return t.Format(sqliteTimestampLayout) },
	maxParams: 32766,
}

// Store is a relational store for trips and breadcrumbs.
type Store struct {
	db *sql.DB
	d  dialect
}

// NewStore wraps an open connection pool. driver selects the SQL dialect.
func NewStore(conn *sql.DB, driver string) (*Store, error) {
	switch driver {
	case DriverPostgres:
		return &Store{db: conn, d: postgresDialect}, nil
	case DriverSQLite:
		return &Store{db: conn, d: sqliteDialect}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}

// Begin opens the transaction that spans one processing run.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx, d: s.d}, nil
}

// CountBreadcrumbs returns the number of committed breadcrumbs dated date.
func (s *Store) CountBreadcrumbs(ctx context.Context, date time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, s.d.count, date.Format(DateLayout)).Scan(&n)
	return n, err
}

// Tx is one run's transaction with savepoint-scoped partial rollback.
type Tx struct {
	tx *sql.Tx
	d  dialect
}

var savepointName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (t *Tx) savepointStmt(verb, name string) (string, error) {
	if !savepointName.MatchString(name) {
		return "", fmt.Errorf("invalid savepoint name %q", name)
	}
	return verb + " " + name, nil
}

func (t *Tx) Savepoint(ctx context.Context, name string) error {
	q, err := t.savepointStmt("SAVEPOINT", name)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, q)
	return err
}

func (t *Tx) ReleaseSavepoint(ctx context.Context, name string) error {
	q, err := t.savepointStmt("RELEASE SAVEPOINT", name)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, q)
	return err
}

func (t *Tx) RollbackToSavepoint(ctx context.Context, name string) error {
	q, err := t.savepointStmt("ROLLBACK TO SAVEPOINT", name)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, q)
	return err
}

// LockDate serializes runs for the same date until the transaction ends.
func (t *Tx) LockDate(ctx context.Context, date time.Time) error {
	if t.d.lock == "" {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, t.d.lock, DateLockKey(date))
	return err
}

// DateLockKey is the advisory-lock key for a processing date.
func DateLockKey(date time.Time) int64 {
	return int64(murmur3.Sum64([]byte("breadcrumb-transform:" + date.Format(DateLayout))))
}

// PurgeDate deletes every breadcrumb whose timestamp falls on date.
func (t *Tx) PurgeDate(ctx context.Context, date time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, t.d.purge, date.Format(DateLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InsertTrips inserts trips, ignoring ids that already exist. It returns the
// number of rows actually inserted.
func (t *Tx) InsertTrips(ctx context.Context, trips []breadcrumb.Trip) (int64, error) {
	if len(trips) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(trips)*5)
	for _, tr := range trips {
		var route any
		if tr.RouteID != nil {
			route = *tr.RouteID
		}
		args = append(args, tr.TripID, route, tr.VehicleID, string(tr.ServiceKey), tr.Direction)
	}
	return t.insertRows(ctx, `INSERT INTO Trip (trip_id, route_id, vehicle_id, service_key, direction) VALUES `,
		` ON CONFLICT (trip_id) DO NOTHING`, 5, args)
}

// InsertBreadcrumbs inserts breadcrumbs, ignoring duplicates of
// (trip_id, tstamp). It returns the number of rows actually inserted.
func (t *Tx) InsertBreadcrumbs(ctx context.Context, crumbs []breadcrumb.Breadcrumb) (int64, error) {
	if len(crumbs) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(crumbs)*5)
	for _, bc := range crumbs {
		var speed any
		if bc.Speed != nil {
			speed = *bc.Speed
		}
		args = append(args, t.d.tstamp(bc.Timestamp), bc.Latitude, bc.Longitude, speed, bc.TripID)
	}
	return t.insertRows(ctx, `INSERT INTO BreadCrumb (tstamp, latitude, longitude, speed, trip_id) VALUES `,
		` ON CONFLICT DO NOTHING`, 5, args)
}

// insertRows runs a multi-row insert of cols columns per row, split into as
// many statements as the dialect's parameter limit requires.
func (t *Tx) insertRows(ctx context.Context, head, tail string, cols int, args []any) (int64, error) {
	per := t.rowsPerStatement(cols)
	var total int64
	for start := 0; start < len(args); start += per * cols {
		end := min(start+per*cols, len(args))
		n, err := t.exec(ctx, head+t.values((end-start)/cols, cols)+tail, args[start:end])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (t *Tx) rowsPerStatement(cols int) int {
	limit := t.d.maxParams
	if limit <= 0 {
		limit = 999
	}
	return max(limit/cols, 1)
}

func (t *Tx) exec(ctx context.Context, q string, args []any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// values renders "(p1, ..., pc), (...)" for rows rows of cols placeholders.
func (t *Tx) values(rows, cols int) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(t.d.bind(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback aborts the run; it is safe to call after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

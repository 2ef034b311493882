package transform

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"breadcrumb-pipeline/internal/breadcrumb"
	"breadcrumb-pipeline/internal/db"
)

// DefaultBatchSize is the number of breadcrumbs inserted per savepoint.
const DefaultBatchSize = 1000

// ErrPurgeFailed aborts a run whose delete of the date's old rows failed.
var ErrPurgeFailed = errors.New("purge existing breadcrumbs")

// RunTx is the transaction capability the loader depends on: one enclosing
// transaction with named savepoints for partial rollback.
type RunTx interface {
	Savepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error
	RollbackToSavepoint(ctx context.Context, name string) error
	LockDate(ctx context.Context, date time.Time) error
	PurgeDate(ctx context.Context, date time.Time) (int64, error)
	InsertTrips(ctx context.Context, trips []breadcrumb.Trip) (int64, error)
	InsertBreadcrumbs(ctx context.Context, crumbs []breadcrumb.Breadcrumb) (int64, error)
	Commit() error
	Rollback() error
}

// Store opens run transactions and answers the post-commit count.
type Store interface {
	BeginRun(ctx context.Context) (RunTx, error)
	CountBreadcrumbs(ctx context.Context, date time.Time) (int64, error)
}

// FromDB adapts a db.Store to Store.
func FromDB(s *db.Store) Store { return dbStore{s} }

type dbStore struct{ s *db.Store }

func (d dbStore) BeginRun(ctx context.Context) (RunTx, error) {
	tx, err := d.s.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (d dbStore) CountBreadcrumbs(ctx context.Context, date time.Time) (int64, error) {
	return d.s.CountBreadcrumbs(ctx, date)
}

// Metrics receives loader observations. A nil Metrics is allowed.
type Metrics interface {
	BreadcrumbsInserted(n int64)
	BatchFailed()
	TripInsertFailed()
}

// LoadStats reports what a load did.
type LoadStats struct {
	Purged              int64
	TripsInserted       int64
	TripErrors          int
	Batches             int
	BatchErrors         int
	BreadcrumbsInserted int64
	Verified            int64 // committed breadcrumbs for the date; -1 if the count failed
}

// Loader writes a run's trips and breadcrumbs in one transaction.
type Loader struct {
	store     Store
	batchSize int
	metrics   Metrics
	log       *log.Logger
}

func NewLoader(store Store, batchSize int, m Metrics, logger *log.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{store: store, batchSize: batchSize, metrics: m, log: logger}
}

// Load locks date, optionally purges its old breadcrumbs, inserts trips and
// then breadcrumbs batch by batch, and commits once. Trip and batch failures
// are rolled back to their savepoint and counted; anything else rolls the
// whole run back and is returned.
func (l *Loader) Load(ctx context.Context, date time.Time, trips []breadcrumb.Trip, crumbs []breadcrumb.Breadcrumb, purge bool) (LoadStats, error) {
	st := LoadStats{Verified: -1}
	day := date.Format(db.DateLayout)

	tx, err := l.store.BeginRun(ctx)
	if err != nil {
		return st, fmt.Errorf("begin run for %s: %w", day, err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(); err != nil {
			l.log.Printf("rollback run for %s: %v", day, err)
		} else {
			l.log.Printf("rolled back run for %s", day)
		}
	}()

	if err := tx.LockDate(ctx, date); err != nil {
		return st, fmt.Errorf("lock date %s: %w", day, err)
	}

	if purge {
		opErr, fatal := inSavepoint(ctx, tx, "before_delete", func() error {
			n, err := tx.PurgeDate(ctx, date)
			st.Purged = n
			return err
		})
		if fatal != nil {
			return st, fatal
		}
		if opErr != nil {
			l.log.Printf("error removing existing data for %s: %v", day, opErr)
			return st, fmt.Errorf("%w for %s: %v", ErrPurgeFailed, day, opErr)
		}
		l.log.Printf("removed %d existing breadcrumbs for %s", st.Purged, day)
	}

	if len(trips) > 0 {
		opErr, fatal := inSavepoint(ctx, tx, "before_trip_insert", func() error {
			for start := 0; start < len(trips); start += l.batchSize {
				end := min(start+l.batchSize, len(trips))
				n, err := tx.InsertTrips(ctx, trips[start:end])
				if err != nil {
					return err
				}
				st.TripsInserted += n
			}
			return nil
		})
		if fatal != nil {
			return st, fatal
		}
		if opErr != nil {
			// Breadcrumbs of trips stored by earlier runs can still load.
			st.TripErrors++
			st.TripsInserted = 0
			if l.metrics != nil {
				l.metrics.TripInsertFailed()
			}
			l.log.Printf("error inserting trips: %v", opErr)
		} else {
			l.log.Printf("inserted %d new trips (%d seen)", st.TripsInserted, len(trips))
		}
	}

	for start := 0; start < len(crumbs); start += l.batchSize {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		end := min(start+l.batchSize, len(crumbs))
		st.Batches++
		var inserted int64
		opErr, fatal := inSavepoint(ctx, tx, "before_batch_insert", func() error {
			n, err := tx.InsertBreadcrumbs(ctx, crumbs[start:end])
			inserted = n
			return err
		})
		if fatal != nil {
			return st, fatal
		}
		if opErr != nil {
			st.BatchErrors++
			if l.metrics != nil {
				l.metrics.BatchFailed()
			}
			l.log.Printf("error inserting batch %d: %v", st.Batches, opErr)
			continue
		}
		st.BreadcrumbsInserted += inserted
		if l.metrics != nil {
			l.metrics.BreadcrumbsInserted(inserted)
		}
		l.log.Printf("inserted batch of %d breadcrumbs (%d/%d)", inserted, end, len(crumbs))
	}

	if err := ctx.Err(); err != nil {
		return st, err
	}
	if err := tx.Commit(); err != nil {
		return st, fmt.Errorf("commit run for %s: %w", day, err)
	}
	committed = true
	l.log.Printf("committed run for %s", day)

	if n, err := l.store.CountBreadcrumbs(ctx, date); err != nil {
		l.log.Printf("verify breadcrumb count for %s: %v", day, err)
	} else {
		st.Verified = n
		l.log.Printf("total breadcrumbs in database for %s: %d", day, n)
	}
	if st.BatchErrors > 0 {
		l.log.Printf("completed with %d batch errors, some data may be missing", st.BatchErrors)
	}
	return st, nil
}

// inSavepoint runs fn inside savepoint name. opErr is fn's error after the
// savepoint was rolled back; fatal means the transaction itself is unusable.
func inSavepoint(ctx context.Context, tx RunTx, name string, fn func() error) (opErr, fatal error) {
	if err := tx.Savepoint(ctx, name); err != nil {
		return nil, fmt.Errorf("savepoint %s: %w", name, err)
	}
	if err := fn(); err != nil {
		if rbErr := tx.RollbackToSavepoint(ctx, name); rbErr != nil {
			return err, fmt.Errorf("rollback to savepoint %s after %v: %w", name, err, rbErr)
		}
		if relErr := tx.ReleaseSavepoint(ctx, name); relErr != nil {
			return err, fmt.Errorf("release savepoint %s: %w", name, relErr)
		}
		return err, nil
	}
	if err := tx.ReleaseSavepoint(ctx, name); err != nil {
		return nil, fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil, nil
}

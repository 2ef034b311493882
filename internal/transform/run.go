package transform

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"breadcrumb-pipeline/internal/breadcrumb"
	"breadcrumb-pipeline/internal/dayfile"
)

// DayReader supplies a day's raw breadcrumbs.
type DayReader interface {
	ReadDay(date time.Time) ([]breadcrumb.Raw, dayfile.ReadStats, error)
}

// Runner processes one calendar date end to end. Callers must not run two
// Runners for the same date concurrently against a store without LockDate
// support.
type Runner struct {
	Reader DayReader
	Store  Store
	// Calendar defaults to breadcrumb.DefaultServiceCalendar when left zero.
	Calendar     breadcrumb.ServiceCalendar
	Direction    string
	BatchSize    int
	SpeedWorkers int
	Metrics      Metrics
	Log          *log.Logger
}

// Summary is the end-of-run report.
type Summary struct {
	RunID          string
	Date           string
	Skipped        bool // no day file
	Lines          int
	MalformedLines int
	ValidRecords   int
	InvalidRecords int
	Trips          int
	Breadcrumbs    int
	Load           LoadStats
	Duration       time.Duration
}

func (s Summary) String() string {
	if s.Skipped {
		return fmt.Sprintf("run %s for %s skipped: no day file", s.RunID, s.Date)
	}
	return fmt.Sprintf("run %s for %s: lines=%d malformed=%d valid=%d invalid=%d trips=%d (new %d, errors %d) breadcrumbs=%d inserted=%d batches=%d batch_errors=%d purged=%d verified=%d in %s",
		s.RunID, s.Date, s.Lines, s.MalformedLines, s.ValidRecords, s.InvalidRecords,
		s.Trips, s.Load.TripsInserted, s.Load.TripErrors, s.Breadcrumbs, s.Load.BreadcrumbsInserted,
		s.Load.Batches, s.Load.BatchErrors, s.Load.Purged, s.Load.Verified, s.Duration.Round(time.Millisecond))
}

// Run reads the day file for date, derives trips and speeds, and loads them.
// A missing day file is reported in the summary, not as an error.
func (r *Runner) Run(ctx context.Context, date time.Time, purge bool) (sum Summary, err error) {
	start := time.Now()
	sum = Summary{RunID: uuid.NewString(), Date: date.Format(dayfile.DateLayout)}
	base := r.Log
	if base == nil {
		base = log.Default()
	}
	logger := log.New(base.Writer(), base.Prefix()+"[run "+sum.RunID[:8]+"] ", base.Flags()|log.Lmsgprefix)
	defer func() { sum.Duration = time.Since(start) }()

	cal, err := r.calendar()
	if err != nil {
		return sum, err
	}
	logger.Printf("processing breadcrumbs for %s (purge=%t)", sum.Date, purge)
	raws, rs, err := r.Reader.ReadDay(date)
	sum.Lines, sum.MalformedLines = rs.Lines, rs.Malformed
	if err != nil {
		if errors.Is(err, dayfile.ErrNoDayFile) {
			sum.Skipped = true
			logger.Printf("%v", err)
			return sum, nil
		}
		return sum, fmt.Errorf("read day %s: %w", sum.Date, err)
	}

	records, ds := Decode(raws, logger)
	sum.ValidRecords, sum.InvalidRecords = ds.Valid, ds.Invalid
	if len(records) == 0 {
		logger.Printf("no valid breadcrumbs for %s", sum.Date)
		return sum, nil
	}

	batch := Aggregate(records, cal, r.Direction)
	sum.Trips = len(batch.Trips)
	logger.Printf("identified %d unique trips", sum.Trips)

	crumbs, err := ComputeAllSpeeds(ctx, batch, r.SpeedWorkers)
	if err != nil {
		return sum, err
	}
	sum.Breadcrumbs = len(crumbs)
	logger.Printf("processed %d breadcrumbs with calculated speeds", sum.Breadcrumbs)

	loader := NewLoader(r.Store, r.BatchSize, r.Metrics, logger)
	sum.Load, err = loader.Load(ctx, date, batch.Trips, crumbs, purge)
	return sum, err
}

func (r *Runner) calendar() (breadcrumb.ServiceCalendar, error) {
	if r.Calendar == (breadcrumb.ServiceCalendar{}) {
		return breadcrumb.DefaultServiceCalendar, nil
	}
	if err := r.Calendar.Validate(); err != nil {
		return r.Calendar, fmt.Errorf("service calendar: %w", err)
	}
	return r.Calendar, nil
}

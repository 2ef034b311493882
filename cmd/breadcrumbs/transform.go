package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"breadcrumb-pipeline/internal/dayfile"
	"breadcrumb-pipeline/internal/db"
	"breadcrumb-pipeline/internal/metrics"
	"breadcrumb-pipeline/internal/transform"
)

var (
	flagNoClear   bool
	flagBatchSize int
	flagDatabase  string
	flagInputDir  string
)

var transformCmd = &cobra.Command{
	Use:   "transform [YYYY-MM-DD]",
	Short: "Load one day file into the Trip and BreadCrumb tables",
	Long: `Reads breadcrumbs_<date>.jsonl, derives trips, service keys and speeds, and
loads them in a single transaction. The date defaults to yesterday in the
configured time zone. Unless --no-clear is given, the date's existing
breadcrumbs are deleted first so reruns are idempotent.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := parseRunDate(args, time.Now(), cfg.Location)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		mcol := startMetrics(ctx)
		store, err := openStore(ctx, flagDatabase)
		if err != nil {
			return err
		}
		defer store.Close()

		if flagBatchSize > 0 {
			cfg.BatchSize = flagBatchSize
		}
		if flagInputDir != "" {
			cfg.OutputDir = flagInputDir
		}
		_, err = runTransform(ctx, store, mcol, date, !flagNoClear)
		return err
	},
}

func init() {
	transformCmd.Flags().BoolVar(&flagNoClear, "no-clear", false, "keep the date's existing breadcrumbs instead of deleting them first")
	transformCmd.Flags().IntVar(&flagBatchSize, "batch-size", 0, "breadcrumbs per insert batch (default TRANSFORM_BATCH_SIZE)")
	transformCmd.Flags().StringVar(&flagDatabase, "database", "", "postgres database name overriding the one in the DSN")
	transformCmd.Flags().StringVar(&flagInputDir, "input-dir", "", "directory holding day files (default OUTPUT_DIR)")
}

// parseRunDate returns the processing date from args, or yesterday relative
// to now in loc.
func parseRunDate(args []string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if len(args) == 0 || args[0] == "" {
		n := now.In(loc)
		return time.Date(n.Year(), n.Month(), n.Day()-1, 0, 0, 0, 0, loc), nil
	}
	d, err := time.ParseInLocation(dayfile.DateLayout, args[0], loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", args[0])
	}
	return d, nil
}

// runTransform processes date against store and records the outcome.
func runTransform(ctx context.Context, store *db.Store, mcol *metrics.Collector, date time.Time, purge bool) (transform.Summary, error) {
	r := &transform.Runner{
		Reader:       &dayfile.Reader{Dir: cfg.OutputDir},
		Store:        transform.FromDB(store),
		Calendar:     cfg.Calendar,
		Direction:    cfg.Direction,
		BatchSize:    cfg.BatchSize,
		SpeedWorkers: cfg.SpeedWorkers,
		Metrics:      wrapLoaderMetrics(mcol),
	}
	sum, err := r.Run(ctx, date, purge)
	result := "ok"
	switch {
	case err != nil:
		result = "failed"
	case sum.Skipped:
		result = "skipped"
	}
	if mcol != nil {
		mcol.ObserveRun(result, sum.Duration)
	}
	if err != nil {
		if errors.Is(err, transform.ErrPurgeFailed) {
			log.Printf("run %s aborted: existing rows for %s were left in place", sum.RunID, sum.Date)
		}
		return sum, fmt.Errorf("transform %s: %w", sum.Date, err)
	}
	log.Print(sum)
	return sum, nil
}

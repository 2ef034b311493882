package transform

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breadcrumb-pipeline/internal/breadcrumb"
	"breadcrumb-pipeline/internal/dayfile"
	"breadcrumb-pipeline/internal/db"
)

const dayFile = `{"EVENT_NO_TRIP":100,"OPD_DATE":"01MAY2023:00:00:00","VEHICLE_ID":3010,"METERS":0,"ACT_TIME":0,"GPS_LONGITUDE":-122.60,"GPS_LATITUDE":45.50}
{"EVENT_NO_TRIP":100,"OPD_DATE":"01MAY2023:00:00:00","VEHICLE_ID":3010,"METERS":100,"ACT_TIME":10,"GPS_LONGITUDE":-122.61,"GPS_LATITUDE":45.51}
{"EVENT_NO_TRIP":100,"OPD_DATE":"01MAY2023:00:00:00","VEHICLE_ID":3010,"METERS":250,"ACT_TIME":30,"GPS_LONGITUDE":-122.62,"GPS_LATITUDE":45.52}
{"EVENT_NO_TRIP":100,"OPD_DATE":"01MAY2023:00:00:00","VEHICLE_ID":3010,"METERS":100,"ACT_TIME":10,"GPS_LONGITUDE":-122.61,"GPS_LATITUDE":45.51}
{"EVENT_NO_TRIP":200,"OPD_DATE":"01MAY2023:00:00:00","VEHICLE_ID":3020,"METERS":0,"ACT_TIME":500,"GPS_LONGITUDE":-122.70,"GPS_LATITUDE":45.40}
{"EVENT_NO_TRIP":300,"OPD_DATE":"01MAY2023:00:00:00","VEHICLE_ID":3030,"METERS":5,"ACT_TIME":90000,"GPS_LONGITUDE":-122.80,"GPS_LATITUDE":45.30}
{bad json
{"EVENT_NO_TRIP":400,"OPD_DATE":"01MAY2023:00:00:00","VEHICLE_ID":3040,"ACT_TIME":40,"GPS_LONGITUDE":-122.80,"GPS_LATITUDE":45.30}
`

func newRunner(t *testing.T) (*Runner, string, func()) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, dayfile.FileName(runDay)), []byte(dayFile), 0o644))
	dbPath := filepath.Join(dir, "busdata.db")

	ctx := context.Background()
	store, err := db.OpenStore(ctx, db.DriverSQLite, dbPath)
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(ctx))

	r := &Runner{
		Reader:       &dayfile.Reader{Dir: dir, Log: quiet},
		Store:        FromDB(store),
		Calendar:     breadcrumb.DefaultServiceCalendar,
		BatchSize:    2,
		SpeedWorkers: 4,
		Log:          quiet,
	}
	return r, dbPath, func() { store.Close() }
}

func TestRunnerLoadsDayIdempotently(t *testing.T) {
	ctx := context.Background()
	r, dbPath, closeStore := newRunner(t)

	first, err := r.Run(ctx, runDay, true)
	require.NoError(t, err)
	assert.False(t, first.Skipped)
	assert.Equal(t, "2023-05-01", first.Date)
	assert.Equal(t, 8, first.Lines)
	assert.Equal(t, 1, first.MalformedLines)
	assert.Equal(t, 6, first.ValidRecords)
	assert.Equal(t, 1, first.InvalidRecords)
	assert.Equal(t, 3, first.Trips)
	assert.Equal(t, 6, first.Breadcrumbs)
	assert.Equal(t, int64(3), first.Load.TripsInserted)
	assert.Equal(t, int64(5), first.Load.BreadcrumbsInserted, "the duplicate delivery collapses")
	assert.Equal(t, int64(4), first.Load.Verified)
	assert.Zero(t, first.Load.BatchErrors)
	assert.Contains(t, first.String(), "verified=4")

	second, err := r.Run(ctx, runDay, true)
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, int64(4), second.Load.Purged)
	assert.Zero(t, second.Load.TripsInserted)
	assert.Equal(t, int64(4), second.Load.Verified)
	closeStore()

	conn, err := db.OpenSQLite(dbPath)
	require.NoError(t, err)
	defer conn.Close()

	var total int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM BreadCrumb`).Scan(&total))
	assert.Equal(t, 5, total)

	rows, err := conn.Query(`SELECT tstamp, speed FROM BreadCrumb WHERE trip_id = 100 ORDER BY tstamp`)
	require.NoError(t, err)
	defer rows.Close()
	var (
		stamps []string
		got    []float64
	)
	for rows.Next() {
		var ts string
		var sp sql.NullFloat64
		require.NoError(t, rows.Scan(&ts, &sp))
		require.True(t, sp.Valid)
		stamps = append(stamps, ts)
		got = append(got, sp.Float64)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"2023-05-01 00:00:00", "2023-05-01 00:00:10", "2023-05-01 00:00:30"}, stamps)
	assert.Equal(t, []float64{10, 10, 7.5}, got)

	var single sql.NullFloat64
	require.NoError(t, conn.QueryRow(`SELECT speed FROM BreadCrumb WHERE trip_id = 200`).Scan(&single))
	assert.False(t, single.Valid)

	var rolled string
	require.NoError(t, conn.QueryRow(`SELECT tstamp FROM BreadCrumb WHERE trip_id = 300`).Scan(&rolled))
	assert.Equal(t, "2023-05-02 01:00:00", rolled)

	var svc, dir string
	var route sql.NullInt64
	require.NoError(t, conn.QueryRow(`SELECT service_key, direction, route_id FROM Trip WHERE trip_id = 100`).Scan(&svc, &dir, &route))
	assert.Equal(t, "Weekday", svc)
	assert.Equal(t, "Out", dir)
	assert.False(t, route.Valid)
}

func TestRunnerMissingDayFileIsSkipped(t *testing.T) {
	r, _, closeStore := newRunner(t)
	defer closeStore()

	sum, err := r.Run(context.Background(), runDay.AddDate(0, 0, 3), true)
	require.NoError(t, err)
	assert.True(t, sum.Skipped)
	assert.True(t, strings.HasSuffix(sum.String(), "skipped: no day file"))
}

func TestRunnerEmptyDayLoadsNothing(t *testing.T) {
	r, _, closeStore := newRunner(t)
	defer closeStore()
	empty := runDay.AddDate(0, 0, 1)
	dir := r.Reader.(*dayfile.Reader).Dir
	require.NoError(t, os.WriteFile(filepath.Join(dir, dayfile.FileName(empty)), []byte("{oops\n"), 0o644))

	sum, err := r.Run(context.Background(), empty, true)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.MalformedLines)
	assert.Zero(t, sum.Trips)
	assert.Zero(t, sum.Load.Batches)
}

func TestRunnerKeepsSpringForwardHour(t *testing.T) {
	r, _, closeStore := newRunner(t)
	defer closeStore()
	day := time.Date(2023, 3, 12, 0, 0, 0, 0, time.UTC)
	lines := `{"EVENT_NO_TRIP":9,"OPD_DATE":"12MAR2023:00:00:00","VEHICLE_ID":1,"METERS":0,"ACT_TIME":5400,"GPS_LONGITUDE":-122.6,"GPS_LATITUDE":45.5}
{"EVENT_NO_TRIP":9,"OPD_DATE":"12MAR2023:00:00:00","VEHICLE_ID":1,"METERS":3600,"ACT_TIME":9000,"GPS_LONGITUDE":-122.6,"GPS_LATITUDE":45.5}
`
	dir := r.Reader.(*dayfile.Reader).Dir
	require.NoError(t, os.WriteFile(filepath.Join(dir, dayfile.FileName(day)), []byte(lines), 0o644))

	sum, err := r.Run(context.Background(), day, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Load.BreadcrumbsInserted)
	assert.Equal(t, int64(2), sum.Load.Verified)
}

func TestRunnerLoadsBatchAboveParameterLimit(t *testing.T) {
	r, dbPath, closeStore := newRunner(t)
	day := time.Date(2023, 5, 2, 0, 0, 0, 0, time.UTC)
	var b strings.Builder
	for i := 0; i < 8000; i++ {
		fmt.Fprintf(&b, `{"EVENT_NO_TRIP":%d,"OPD_DATE":"02MAY2023:00:00:00","VEHICLE_ID":1,"METERS":%d,"ACT_TIME":%d,"GPS_LONGITUDE":-122.6,"GPS_LATITUDE":45.5}`+"\n",
			500+i%4, i*10, i*10)
	}
	dir := r.Reader.(*dayfile.Reader).Dir
	require.NoError(t, os.WriteFile(filepath.Join(dir, dayfile.FileName(day)), []byte(b.String()), 0o644))
	r.BatchSize = 10000

	sum, err := r.Run(context.Background(), day, true)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Load.Batches)
	assert.Zero(t, sum.Load.BatchErrors)
	assert.Equal(t, int64(8000), sum.Load.BreadcrumbsInserted)
	assert.Equal(t, int64(8000), sum.Load.Verified)
	closeStore()

	conn, err := db.OpenSQLite(dbPath)
	require.NoError(t, err)
	defer conn.Close()
	var total int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM BreadCrumb`).Scan(&total))
	assert.Equal(t, 8000, total)
}

func TestRunnerZeroCalendarUsesDefault(t *testing.T) {
	r, dbPath, closeStore := newRunner(t)
	sunday := time.Date(2023, 5, 7, 0, 0, 0, 0, time.UTC)
	line := `{"EVENT_NO_TRIP":700,"OPD_DATE":"07MAY2023:00:00:00","VEHICLE_ID":1,"METERS":0,"ACT_TIME":60,"GPS_LONGITUDE":-122.6,"GPS_LATITUDE":45.5}` + "\n"
	dir := r.Reader.(*dayfile.Reader).Dir
	require.NoError(t, os.WriteFile(filepath.Join(dir, dayfile.FileName(sunday)), []byte(line), 0o644))
	r.Calendar = breadcrumb.ServiceCalendar{}

	_, err := r.Run(context.Background(), sunday, true)
	require.NoError(t, err)
	closeStore()

	conn, err := db.OpenSQLite(dbPath)
	require.NoError(t, err)
	defer conn.Close()
	var svc string
	require.NoError(t, conn.QueryRow(`SELECT service_key FROM Trip WHERE trip_id = 700`).Scan(&svc))
	assert.Equal(t, "Sunday", svc)
}

func TestRunnerRejectsInvalidCalendar(t *testing.T) {
	r, _, closeStore := newRunner(t)
	defer closeStore()
	r.Calendar = breadcrumb.ServiceCalendar{Saturday: time.Friday, Sunday: time.Friday}

	_, err := r.Run(context.Background(), runDay, true)
	assert.ErrorContains(t, err, "service calendar")
}

// Package transform turns a day of raw breadcrumbs into trip and breadcrumb
// rows and loads them into the store.
package transform

import (
	"log"
	"sort"
	"time"

	"breadcrumb-pipeline/internal/breadcrumb"
)

// Batch is the aggregated form of one processing run.
type Batch struct {
	Trips []breadcrumb.Trip // in order of first appearance after sorting
	// Sequences holds each trip's records ordered by action time, keyed by trip id.
	Sequences map[int64][]breadcrumb.Record
}

// DecodeStats counts records dropped while decoding.
type DecodeStats struct {
	Valid   int
	Invalid int
}

// Decode validates raw records and decodes their timestamps. Invalid records
// are logged and dropped.
func Decode(raws []breadcrumb.Raw, logger *log.Logger) ([]breadcrumb.Record, DecodeStats) {
	if logger == nil {
		logger = log.Default()
	}
	var st DecodeStats
	out := make([]breadcrumb.Record, 0, len(raws))
	for i := range raws {
		rec, err := raws[i].Decode()
		if err != nil {
			st.Invalid++
			logger.Printf("skipping breadcrumb %d: %v", i, err)
			continue
		}
		out = append(out, rec)
	}
	st.Valid = len(out)
	return out, st
}

// Aggregate sorts records by (trip, action time), splits them into per-trip
// sequences and derives one Trip per trip id from its first record.
// records is sorted in place.
func Aggregate(records []breadcrumb.Record, cal breadcrumb.ServiceCalendar, direction string) *Batch {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].TripID != records[j].TripID {
			return records[i].TripID < records[j].TripID
		}
		return records[i].ActTime < records[j].ActTime
	})
	if direction == "" {
		direction = breadcrumb.DefaultDirection
	}

	b := &Batch{Sequences: make(map[int64][]breadcrumb.Record)}
	for _, rec := range records {
		seq, seen := b.Sequences[rec.TripID]
		if !seen {
			b.Trips = append(b.Trips, breadcrumb.Trip{
				TripID:     rec.TripID,
				VehicleID:  rec.VehicleID,
				ServiceKey: cal.Classify(operatingDay(rec)),
				Direction:  direction,
			})
		}
		b.Sequences[rec.TripID] = append(seq, rec)
	}
	return b
}

// operatingDay is the service date of rec. Decode already proved OpdDate
// parses, so the fallback to the timestamp only guards hand-built records.
func operatingDay(rec breadcrumb.Record) time.Time {
	day, err := rec.OperatingDay(rec.Timestamp.Location())
	if err != nil {
		return rec.Timestamp
	}
	return day
}

package transform

import (
	"context"

	"golang.org/x/sync/errgroup"

	"breadcrumb-pipeline/internal/breadcrumb"
)

// ComputeSpeeds derives one Breadcrumb per record of a single trip's ordered
// sequence. Speed at i>0 is the odometer delta over the action-time delta and
// is nil when time does not advance. The first point has no predecessor and
// takes the second point's speed; a single-point trip has no speed at all.
func ComputeSpeeds(seq []breadcrumb.Record) []breadcrumb.Breadcrumb {
	out := make([]breadcrumb.Breadcrumb, len(seq))
	for i, rec := range seq {
		out[i] = breadcrumb.Breadcrumb{
			Timestamp: rec.Timestamp,
			Latitude:  rec.Latitude,
			Longitude: rec.Longitude,
			TripID:    rec.TripID,
		}
		if i == 0 {
			continue
		}
		prev := seq[i-1]
		if dt := rec.ActTime - prev.ActTime; dt > 0 {
			v := (rec.Meters - prev.Meters) / float64(dt)
			out[i].Speed = &v
		}
	}
	if len(out) > 1 && out[1].Speed != nil {
		v := *out[1].Speed
		out[0].Speed = &v
	}
	return out
}

// ComputeAllSpeeds runs ComputeSpeeds for every trip of b, up to workers trips
// at a time, and returns the breadcrumbs in b.Trips order.
func ComputeAllSpeeds(ctx context.Context, b *Batch, workers int) ([]breadcrumb.Breadcrumb, error) {
	perTrip := make([][]breadcrumb.Breadcrumb, len(b.Trips))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, tr := range b.Trips {
		seq := b.Sequences[tr.TripID]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			perTrip[i] = ComputeSpeeds(seq)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, p := range perTrip {
		total += len(p)
	}
	out := make([]breadcrumb.Breadcrumb, 0, total)
	for _, p := range perTrip {
		out = append(out, p...)
	}
	return out, nil
}

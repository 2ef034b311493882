package breadcrumb

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// RecordError reports a raw breadcrumb that is missing required fields or
// whose timestamp cannot be decoded.
type RecordError struct {
	TripID *int64
	Fields []string
	Err    error
}

func (e *RecordError) Error() string {
	trip := "?"
	if e.TripID != nil {
		trip = fmt.Sprint(*e.TripID)
	}
	if len(e.Fields) > 0 {
		return fmt.Sprintf("invalid breadcrumb (trip %s): fields %s", trip, strings.Join(e.Fields, ","))
	}
	return fmt.Sprintf("invalid breadcrumb (trip %s): %v", trip, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Validate checks the required fields of r.
func (r *Raw) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &RecordError{TripID: r.EventNoTrip, Err: err}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+":"+fe.Tag())
	}
	return &RecordError{TripID: r.EventNoTrip, Fields: fields, Err: err}
}

// Decode validates r and decodes its wall-clock timestamp.
func (r *Raw) Decode() (Record, error) {
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	ts, err := DecodeTimestamp(*r.OpdDate, *r.ActTime)
	if err != nil {
		return Record{}, &RecordError{TripID: r.EventNoTrip, Err: err}
	}
	return Record{
		TripID:    *r.EventNoTrip,
		VehicleID: *r.VehicleID,
		OpdDate:   *r.OpdDate,
		ActTime:   *r.ActTime,
		Latitude:  *r.GPSLatitude,
		Longitude: *r.GPSLongitude,
		Meters:    *r.Meters,
		Timestamp: ts,
	}, nil
}

// OperatingDay returns the calendar date named by OpdDate, ignoring any
// action-time rollover.
func (r Record) OperatingDay(loc *time.Location) (time.Time, error) {
	return ParseOpDate(r.OpdDate, loc)
}

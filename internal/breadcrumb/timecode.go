package breadcrumb

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const secondsPerDay = 86400

var monthTokens = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// ParseError reports an operating date or action time that cannot be decoded.
type ParseError struct {
	OpdDate string
	ActTime int64
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse timestamp %q/%d: %s", e.OpdDate, e.ActTime, e.Reason)
}

// ParseOpDate parses the date part of an OPD_DATE value such as
// "25DEC2022:00:00:00". Anything after the first ':' is ignored.
func ParseOpDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	datePart := strings.TrimSpace(s)
	if i := strings.IndexByte(datePart, ':'); i >= 0 {
		datePart = datePart[:i]
	}
	if len(datePart) < 9 {
		return time.Time{}, &ParseError{OpdDate: s, Reason: "too short"}
	}
	day, err := strconv.Atoi(datePart[:2])
	if err != nil {
		return time.Time{}, &ParseError{OpdDate: s, Reason: "non-numeric day"}
	}
	month, ok := monthTokens[strings.ToUpper(datePart[2:5])]
	if !ok {
		return time.Time{}, &ParseError{OpdDate: s, Reason: fmt.Sprintf("unknown month %q", datePart[2:5])}
	}
	year, err := strconv.Atoi(datePart[5:])
	if err != nil {
		return time.Time{}, &ParseError{OpdDate: s, Reason: "non-numeric year"}
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, loc)
	// time.Date normalizes 31FEB into March; reject instead.
	if t.Day() != day || t.Month() != month {
		return time.Time{}, &ParseError{OpdDate: s, Reason: "day out of range"}
	}
	return t, nil
}

// DecodeTimestamp turns an operating date and seconds since its midnight into
// the wall-clock timestamp stored for a breadcrumb. Action times past 86400
// roll over into the following days. The result carries time.UTC only as a
// zone-free container: its fields are the agency's local wall clock, which
// stays intact across daylight-saving transitions.
func DecodeTimestamp(opdDate string, actTime int64) (time.Time, error) {
	if actTime < 0 {
		return time.Time{}, &ParseError{OpdDate: opdDate, ActTime: actTime, Reason: "negative action time"}
	}
	base, err := ParseOpDate(opdDate, time.UTC)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.ActTime = actTime
		}
		return time.Time{}, err
	}
	days := int(actTime / secondsPerDay)
	sod := int(actTime % secondsPerDay)
	h, m, sec := sod/3600, (sod%3600)/60, sod%60
	t := time.Date(base.Year(), base.Month(), base.Day(), h, m, sec, 0, time.UTC)
	return t.AddDate(0, 0, days), nil
}

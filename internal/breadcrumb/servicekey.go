package breadcrumb

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ServiceCalendar maps weekdays to service keys. Which weekday counts as the
// Saturday and Sunday service is configurable; every other day is Weekday.
type ServiceCalendar struct {
	Saturday time.Weekday
	Sunday   time.Weekday
}

var DefaultServiceCalendar = ServiceCalendar{Saturday: time.Saturday, Sunday: time.Sunday}

func (c ServiceCalendar) Validate() error {
	if c.Saturday < time.Sunday || c.Saturday > time.Saturday {
		return fmt.Errorf("saturday service weekday out of range: %d", c.Saturday)
	}
	if c.Sunday < time.Sunday || c.Sunday > time.Saturday {
		return fmt.Errorf("sunday service weekday out of range: %d", c.Sunday)
	}
	if c.Saturday == c.Sunday {
		return fmt.Errorf("saturday and sunday service share weekday %s", c.Saturday)
	}
	return nil
}

// Classify returns the service key for the calendar date of d.
func (c ServiceCalendar) Classify(d time.Time) ServiceKey {
	switch d.Weekday() {
	case c.Saturday:
		return Saturday
	case c.Sunday:
		return Sunday
	default:
		return Weekday
	}
}

// ParseWeekday accepts an English weekday name ("saturday", "Sat") or its
// number with Sunday as 0.
func ParseWeekday(s string) (time.Weekday, error) {
	names := map[string]time.Weekday{
		"sun": time.Sunday, "sunday": time.Sunday,
		"mon": time.Monday, "monday": time.Monday,
		"tue": time.Tuesday, "tuesday": time.Tuesday,
		"wed": time.Wednesday, "wednesday": time.Wednesday,
		"thu": time.Thursday, "thursday": time.Thursday,
		"fri": time.Friday, "friday": time.Friday,
		"sat": time.Saturday, "saturday": time.Saturday,
	}
	s = strings.TrimSpace(s)
	if wd, ok := names[strings.ToLower(s)]; ok {
		return wd, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 6 {
		return 0, fmt.Errorf("invalid weekday %q", s)
	}
	return time.Weekday(n), nil
}

package breadcrumb

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func opdDate(t time.Time) string {
	return strings.ToUpper(t.Format("02Jan2006")) + ":00:00:00"
}

func TestDecodeTimestampRollover(t *testing.T) {
	got, err := DecodeTimestamp("25DEC2022:00:00:00", 90000)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 12, 26, 1, 0, 0, 0, time.UTC), got)
}

func TestDecodeTimestamp(t *testing.T) {
	cases := []struct {
		name    string
		opd     string
		act     int64
		want    time.Time
		wantErr bool
	}{
		{"midnight", "01MAY2023:00:00:00", 0, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), false},
		{"last second", "01MAY2023:00:00:00", 86399, time.Date(2023, 5, 1, 23, 59, 59, 0, time.UTC), false},
		{"exact rollover", "01MAY2023:00:00:00", 86400, time.Date(2023, 5, 2, 0, 0, 0, 0, time.UTC), false},
		{"no time suffix", "28FEB2024", 3661, time.Date(2024, 2, 28, 1, 1, 1, 0, time.UTC), false},
		{"month end rollover", "31DEC2022:00:00:00", 86400 + 60, time.Date(2023, 1, 1, 0, 1, 0, 0, time.UTC), false},
		{"lowercase month", "05jan2023:00:00:00", 10, time.Date(2023, 1, 5, 0, 0, 10, 0, time.UTC), false},
		{"unknown month", "25DXC2022:00:00:00", 0, time.Time{}, true},
		{"non-numeric day", "xxDEC2022:00:00:00", 0, time.Time{}, true},
		{"non-numeric year", "25DEC20x2:00:00:00", 0, time.Time{}, true},
		{"too short", "25DEC", 0, time.Time{}, true},
		{"impossible day", "31FEB2023:00:00:00", 0, time.Time{}, true},
		{"negative action time", "25DEC2022:00:00:00", -1, time.Time{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeTimestamp(tc.opd, tc.act)
			if tc.wantErr {
				var pe *ParseError
				require.Error(t, err)
				assert.True(t, errors.As(err, &pe), "want *ParseError, got %T", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeTimestampKeepsWallClockAcrossDST(t *testing.T) {
	// Portland springs forward at 02:00 on 12MAR2023 and falls back at 02:00
	// on 05NOV2023. Neither hour may shift or collapse into another.
	cases := []struct {
		opd  string
		act  int64
		want string
	}{
		{"12MAR2023:00:00:00", 5400, "2023-03-12 01:30:00"},
		{"12MAR2023:00:00:00", 9000, "2023-03-12 02:30:00"},
		{"12MAR2023:00:00:00", 10800, "2023-03-12 03:00:00"},
		{"05NOV2023:00:00:00", 5400, "2023-11-05 01:30:00"},
		{"05NOV2023:00:00:00", 9000, "2023-11-05 02:30:00"},
		{"11MAR2023:00:00:00", 86400 + 9000, "2023-03-12 02:30:00"},
	}
	seen := map[string]int64{}
	for _, tc := range cases {
		got, err := DecodeTimestamp(tc.opd, tc.act)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.Format("2006-01-02 15:04:05"), "%s+%d", tc.opd, tc.act)
		assert.Equal(t, time.UTC, got.Location())
		if tc.opd == "12MAR2023:00:00:00" {
			_, dup := seen[tc.want]
			assert.False(t, dup, "%d collides with %d", tc.act, seen[tc.want])
			seen[tc.want] = tc.act
		}
	}
}

func TestProperty_DecodeTimestamp(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("action times within a day keep the operating date", prop.ForAll(
		func(dayOffset int, act int64) bool {
			day := base.AddDate(0, 0, dayOffset)
			got, err := DecodeTimestamp(opdDate(day), act)
			if err != nil {
				return false
			}
			y, m, d := got.Date()
			wy, wm, wd := day.Date()
			return y == wy && m == wm && d == wd
		},
		gen.IntRange(0, 20000),
		gen.Int64Range(0, 86399),
	))

	properties.Property("action times past a day roll over by whole days", prop.ForAll(
		func(dayOffset int, act int64) bool {
			day := base.AddDate(0, 0, dayOffset)
			got, err := DecodeTimestamp(opdDate(day), act)
			if err != nil {
				return false
			}
			wantDay := day.AddDate(0, 0, int(act/86400))
			sod := act % 86400
			return got.Year() == wantDay.Year() && got.YearDay() == wantDay.YearDay() &&
				int64(got.Hour()) == sod/3600 &&
				int64(got.Minute()) == (sod%3600)/60 &&
				int64(got.Second()) == sod%60
		},
		gen.IntRange(0, 20000),
		gen.Int64Range(86400, 3*86400),
	))

	properties.TestingRun(t)
}

func TestServiceCalendarClassify(t *testing.T) {
	c := DefaultServiceCalendar
	// 2023-05-01 is a Monday.
	monday := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	want := []ServiceKey{Weekday, Weekday, Weekday, Weekday, Weekday, Saturday, Sunday}
	for i, w := range want {
		assert.Equal(t, w, c.Classify(monday.AddDate(0, 0, i)), "day %d", i)
	}
}

func TestServiceCalendarCustom(t *testing.T) {
	c := ServiceCalendar{Saturday: time.Friday, Sunday: time.Saturday}
	require.NoError(t, c.Validate())
	assert.Equal(t, Saturday, c.Classify(time.Date(2023, 5, 5, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, Sunday, c.Classify(time.Date(2023, 5, 6, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, Weekday, c.Classify(time.Date(2023, 5, 7, 0, 0, 0, 0, time.UTC)))

	assert.Error(t, ServiceCalendar{Saturday: time.Sunday, Sunday: time.Sunday}.Validate())
}

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]time.Weekday{"sat": time.Saturday, "Sunday": time.Sunday, "5": time.Friday, " 0 ": time.Sunday} {
		got, err := ParseWeekday(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"7", "-1", "someday", ""} {
		_, err := ParseWeekday(in)
		assert.Error(t, err, in)
	}
}

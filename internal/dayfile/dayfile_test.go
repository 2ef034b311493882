package dayfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

func TestReadDaySkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	content := strings.Join([]string{
		`{"EVENT_NO_TRIP":1,"OPD_DATE":"01MAY2023:00:00:00","VEHICLE_ID":2,"METERS":0,"ACT_TIME":0,"GPS_LONGITUDE":-122,"GPS_LATITUDE":45}`,
		`{"EVENT_NO_TRIP":1,"OPD_DATE":`,
		``,
		`not json`,
		`{"EVENT_NO_TRIP":1,"OPD_DATE":"01MAY2023:00:00:00","VEHICLE_ID":2,"METERS":50,"ACT_TIME":5,"GPS_LONGITUDE":-122,"GPS_LATITUDE":45}`,
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "breadcrumbs_2023-05-01.jsonl"), []byte(content), 0o644))

	r := &Reader{Dir: dir}
	raws, st, err := r.ReadDay(day)
	require.NoError(t, err)
	assert.Equal(t, ReadStats{Lines: 5, Malformed: 2, Records: 2}, st)
	require.Len(t, raws, 2)
	assert.Equal(t, int64(5), *raws[1].ActTime)
}

func TestReadDayMissingFile(t *testing.T) {
	r := &Reader{Dir: t.TempDir()}
	_, _, err := r.ReadDay(day)
	assert.True(t, errors.Is(err, ErrNoDayFile))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "breadcrumbs_2023-05-01.jsonl", FileName(day.Add(23*time.Hour)))
}

func TestWriterCacheAppendRotateClose(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	var open []int
	c, err := NewWriterCache(dir, true)
	require.NoError(t, err)
	c.OnChange = func(n int) { open = append(open, n) }

	require.NoError(t, c.Append(day, []byte(`{"a":1}`)))
	require.NoError(t, c.Append(day, []byte("{\"a\":2}\n")))
	next := day.AddDate(0, 0, 1)
	require.NoError(t, c.Append(next, []byte(`{"a":3}`)))
	assert.Equal(t, []string{"2023-05-01", "2023-05-02"}, c.Open())

	assert.Equal(t, []string{"2023-05-01"}, c.Rotate(next))
	assert.Equal(t, []string{"2023-05-02"}, c.Open())

	// Reopening after rotation appends rather than truncates.
	require.NoError(t, c.Append(day, []byte(`{"a":4}`)))
	require.NoError(t, c.Close())
	assert.Empty(t, c.Open())
	assert.Error(t, c.Append(day, []byte(`{}`)))

	b, err := os.ReadFile(filepath.Join(dir, "breadcrumbs_2023-05-01.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n{\"a\":2}\n{\"a\":4}\n", string(b))
	b, err = os.ReadFile(filepath.Join(dir, "breadcrumbs_2023-05-02.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":3}\n", string(b))

	assert.Equal(t, []int{1, 2, 1, 2, 0}, open)
}

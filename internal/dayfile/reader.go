// Package dayfile reads and writes the per-day JSONL breadcrumb files.
package dayfile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"breadcrumb-pipeline/internal/breadcrumb"
)

const (
	DateLayout  = "2006-01-02"
	maxLineSize = 1 << 20
)

// ErrNoDayFile is returned when no file exists for the requested date.
var ErrNoDayFile = errors.New("no day file")

// FileName is the base name of the day file for date.
func FileName(date time.Time) string {
	return fileName(date.Format(DateLayout))
}

func fileName(key string) string { return "breadcrumbs_" + key + ".jsonl" }

// ReadStats counts the lines of one read.
type ReadStats struct {
	Lines     int
	Malformed int
	Records   int
}

type Reader struct {
	Dir string
	Log *log.Logger
}

// Path returns the day file path for date.
func (r *Reader) Path(date time.Time) string {
	return filepath.Join(r.Dir, FileName(date))
}

// ReadDay decodes every line of date's file. Lines that are not valid JSON
// breadcrumbs are logged with their line number and skipped.
func (r *Reader) ReadDay(date time.Time) ([]breadcrumb.Raw, ReadStats, error) {
	path := r.Path(date)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ReadStats{}, fmt.Errorf("%w: %s", ErrNoDayFile, path)
		}
		return nil, ReadStats{}, err
	}
	defer f.Close()
	return r.decode(f, path)
}

func (r *Reader) decode(src io.Reader, name string) ([]breadcrumb.Raw, ReadStats, error) {
	logger := r.Log
	if logger == nil {
		logger = log.Default()
	}
	var (
		st   ReadStats
		raws []breadcrumb.Raw
	)
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		st.Lines++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var raw breadcrumb.Raw
		if err := json.Unmarshal(line, &raw); err != nil {
			st.Malformed++
			logger.Printf("error decoding JSON at line %d in %s: %v", st.Lines, name, err)
			continue
		}
		raws = append(raws, raw)
	}
	if err := sc.Err(); err != nil {
		return raws, st, fmt.Errorf("read %s at line %d: %w", name, st.Lines+1, err)
	}
	st.Records = len(raws)
	logger.Printf("read %d breadcrumbs from %d lines of %s", st.Records, st.Lines, name)
	return raws, st, nil
}

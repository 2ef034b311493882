// Package subscriber persists bus messages to per-day files.
package subscriber

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"breadcrumb-pipeline/internal/breadcrumb"
	"breadcrumb-pipeline/internal/dayfile"
)

// Message is the part of a bus delivery the subscriber needs.
type Message interface {
	Data() []byte
	Ack() error
	Nak() error
}

type Metrics interface {
	RecordWritten()
	MessageAcked()
	MessageNacked()
}

type Subscriber struct {
	cache   *dayfile.WriterCache
	tz      *time.Location
	metrics Metrics
	now     func() time.Time

	mu       sync.Mutex
	lastDate time.Time
	written  int
}

func New(cache *dayfile.WriterCache, tz *time.Location, m Metrics) *Subscriber {
	if tz == nil {
		tz = time.Local
	}
	return &Subscriber{cache: cache, tz: tz, metrics: m, now: time.Now}
}

// Handle writes one message to its day file and acknowledges it. Any failure
// before the line is written negatively acknowledges the message so the bus
// redelivers it.
func (s *Subscriber) Handle(msg Message) {
	if err := s.write(msg.Data()); err != nil {
		log.Printf("error processing message: %v", err)
		if s.metrics != nil {
			s.metrics.MessageNacked()
		}
		if nerr := msg.Nak(); nerr != nil {
			log.Printf("nak failed: %v", nerr)
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordWritten()
	}
	if err := msg.Ack(); err != nil {
		// Already on disk; a redelivery is collapsed by the loader.
		log.Printf("ack failed: %v", err)
	} else if s.metrics != nil {
		s.metrics.MessageAcked()
	}
	s.cache.Rotate(s.now().In(s.tz))
}

func (s *Subscriber) write(data []byte) error {
	var line bytes.Buffer
	if err := json.Compact(&line, data); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	date, err := s.recordDate(line.Bytes())
	if err != nil {
		return err
	}
	if err := s.cache.Append(date, line.Bytes()); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastDate = date
	s.written++
	s.mu.Unlock()
	return nil
}

// recordDate picks the day file for a record: its "timestamp" field when
// present, else its operating date, else today.
func (s *Subscriber) recordDate(data []byte) (time.Time, error) {
	var head struct {
		Timestamp *string `json:"timestamp"`
		OpdDate   *string `json:"OPD_DATE"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return time.Time{}, fmt.Errorf("decode message: %w", err)
	}
	if head.Timestamp != nil {
		day, _, _ := strings.Cut(strings.TrimSpace(*head.Timestamp), " ")
		day, _, _ = strings.Cut(day, "T")
		d, err := time.ParseInLocation(dayfile.DateLayout, day, s.tz)
		if err != nil {
			return time.Time{}, fmt.Errorf("record timestamp %q: %w", *head.Timestamp, err)
		}
		return d, nil
	}
	if head.OpdDate != nil {
		if d, err := breadcrumb.ParseOpDate(*head.OpdDate, s.tz); err == nil {
			return d, nil
		}
	}
	return s.now().In(s.tz), nil
}

// LastDate is the date of the most recently written record.
func (s *Subscriber) LastDate() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDate, s.written > 0
}

func (s *Subscriber) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Close releases every day file.
func (s *Subscriber) Close() error {
	return s.cache.Close()
}

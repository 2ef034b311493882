package dayfile

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// WriterCache owns one append-mode file per date. Writers are opened on first
// use and released by Rotate or Close.
type WriterCache struct {
	dir  string
	sync bool

	mu      sync.Mutex
	writers map[string]*os.File
	closed  bool

	// OnChange, if set, is called with the number of open files after each change.
	OnChange func(open int)
}

// NewWriterCache creates dir if needed. With syncWrites every Append is
// fsynced before it returns.
func NewWriterCache(dir string, syncWrites bool) (*WriterCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &WriterCache{dir: dir, sync: syncWrites, writers: make(map[string]*os.File)}, nil
}

var errCacheClosed = errors.New("writer cache closed")

// Append writes line, newline-terminated, to date's file. When it returns nil
// the line has been handed to the OS (and synced if configured).
func (c *WriterCache) Append(date time.Time, line []byte) error {
	key := date.Format(DateLayout)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errCacheClosed
	}
	f, err := c.acquire(key)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, bytes.TrimRight(line, "\r\n")...)
	buf = append(buf, '\n')
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("write %s: %w", f.Name(), err)
	}
	if c.sync {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("sync %s: %w", f.Name(), err)
		}
	}
	return nil
}

func (c *WriterCache) acquire(key string) (*os.File, error) {
	if f, ok := c.writers[key]; ok {
		return f, nil
	}
	path := filepath.Join(c.dir, fileName(key))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open day file: %w", err)
	}
	c.writers[key] = f
	log.Printf("opened day file for %s: %s", key, path)
	c.changed()
	return f, nil
}

// Rotate closes every writer except the one for current and returns the
// dates it closed.
func (c *WriterCache) Rotate(current time.Time) []string {
	keep := current.Format(DateLayout)
	c.mu.Lock()
	defer c.mu.Unlock()
	var closed []string
	for key, f := range c.writers {
		if key == keep {
			continue
		}
		if err := c.release(key, f); err != nil {
			log.Printf("rotate: %v", err)
		}
		closed = append(closed, key)
	}
	if len(closed) > 0 {
		c.changed()
	}
	sort.Strings(closed)
	return closed
}

// Close releases every writer. Later Appends fail.
func (c *WriterCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for key, f := range c.writers {
		if err := c.release(key, f); err != nil {
			errs = append(errs, err)
		}
	}
	c.closed = true
	c.changed()
	return errors.Join(errs...)
}

// Open lists the dates with an open writer.
func (c *WriterCache) Open() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.writers))
	for k := range c.writers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *WriterCache) release(key string, f *os.File) error {
	delete(c.writers, key)
	err := f.Sync()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("close day file for %s: %w", key, err)
	}
	log.Printf("closed day file for %s", key)
	return nil
}

func (c *WriterCache) changed() {
	if c.OnChange != nil {
		c.OnChange(len(c.writers))
	}
}

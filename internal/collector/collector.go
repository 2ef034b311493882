// Package collector polls the vehicle breadcrumb API and forwards every
// record to the bus.
package collector

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Publisher forwards one raw record for a vehicle.
type Publisher interface {
	Publish(ctx context.Context, vehicleID string, record []byte) error
}

type Metrics interface {
	RecordsFetched(n int)
	FetchFailed()
}

// Totals summarize one collection pass. Errors counts failed fetches and
// failed publishes.
type Totals struct {
	Vehicles  int
	Fetched   int
	Published int
	Errors    int
	Duration  time.Duration
}

type Collector struct {
	apiURL  string
	client  *http.Client
	pub     Publisher
	rawDir  string
	workers int
	tz      *time.Location
	metrics Metrics

	mu     sync.Mutex
	totals Totals
}

// New returns a collector. An empty rawDir disables raw-response archiving.
func New(apiURL string, client *http.Client, pub Publisher, rawDir string, workers int, tz *time.Location, m Metrics) *Collector {
	if client == nil {
		client = http.DefaultClient
	}
	if workers <= 0 {
		workers = 1
	}
	if tz == nil {
		tz = time.Local
	}
	return &Collector{apiURL: apiURL, client: client, pub: pub, rawDir: rawDir, workers: workers, tz: tz, metrics: m}
}

// ReadVehicleIDs reads one vehicle id per line, ignoring blanks and # comments.
func ReadVehicleIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read vehicle ids: %w", err)
	}
	defer f.Close()
	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		id := strings.TrimSpace(sc.Text())
		if id == "" || strings.HasPrefix(id, "#") {
			continue
		}
		ids = append(ids, id)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vehicle ids: %w", err)
	}
	return ids, nil
}

// Run processes every vehicle with at most workers requests in flight and
// returns once all of them are done.
func (c *Collector) Run(ctx context.Context, vehicleIDs []string) Totals {
	start := time.Now()
	c.mu.Lock()
	c.totals = Totals{Vehicles: len(vehicleIDs)}
	c.mu.Unlock()

	log.Printf("collecting breadcrumbs for %d vehicles with %d workers", len(vehicleIDs), c.workers)
	var g errgroup.Group
	g.SetLimit(c.workers)
	for _, id := range vehicleIDs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fetched, published, errs := c.processVehicle(ctx, id)
			c.mu.Lock()
			c.totals.Fetched += fetched
			c.totals.Published += published
			c.totals.Errors += errs
			c.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	t := c.totals
	c.mu.Unlock()
	t.Duration = time.Since(start)
	log.Printf("collection finished in %s: fetched=%d published=%d errors=%d",
		t.Duration.Round(time.Millisecond), t.Fetched, t.Published, t.Errors)
	return t
}

func (c *Collector) processVehicle(ctx context.Context, id string) (fetched, published, errs int) {
	records, err := c.fetch(ctx, id)
	if err != nil {
		if c.metrics != nil {
			c.metrics.FetchFailed()
		}
		log.Printf("vehicle %s: fetch failed: %v", id, err)
		return 0, 0, 1
	}
	if len(records) == 0 {
		log.Printf("vehicle %s: no data received", id)
		return 0, 0, 0
	}
	if c.metrics != nil {
		c.metrics.RecordsFetched(len(records))
	}
	if c.rawDir != "" {
		if err := c.saveRaw(id, records); err != nil {
			log.Printf("vehicle %s: save raw data: %v", id, err)
		}
	}
	for _, rec := range records {
		if err := c.pub.Publish(ctx, id, rec); err != nil {
			errs++
			log.Printf("vehicle %s: publish failed: %v", id, err)
			continue
		}
		published++
	}
	if errs > 0 {
		log.Printf("vehicle %s: published %d/%d records (%d failed)", id, published, len(records), errs)
	}
	return len(records), published, errs
}

func (c *Collector) fetch(ctx context.Context, id string) ([]json.RawMessage, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("vehicle_id", id)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var records []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return records, nil
}

// RawFileName is the archive name of a vehicle's response for date.
func RawFileName(vehicleID string, date time.Time) string {
	return fmt.Sprintf("vehicle_%s_%s.json", vehicleID, date.Format("2006-01-02"))
}

func (c *Collector) saveRaw(id string, records []json.RawMessage) error {
	if err := os.MkdirAll(c.rawDir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(c.rawDir, RawFileName(filepath.Base(id), time.Now().In(c.tz)))
	return os.WriteFile(path, b, 0o644)
}

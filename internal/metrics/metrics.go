package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	RecordsFetched prometheus.Counter
	FetchErrors    prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	RecordsWritten prometheus.Counter
	MessagesAcked  prometheus.Counter
	MessagesNacked prometheus.Counter
	OpenDayFiles   prometheus.Gauge

	TransformRuns       *prometheus.CounterVec // result label: ok|skipped|failed
	BreadcrumbsInserted prometheus.Counter
	BatchErrors         prometheus.Counter
	TripInsertErrors    prometheus.Counter
	RunDuration         prometheus.Histogram

	BatchSize prometheus.Gauge
}

func NewCollector(batchSize int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		RecordsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breadcrumbs_fetched_total",
			Help: "Total breadcrumb records received from the vehicle API.",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breadcrumbs_fetch_errors_total",
			Help: "Total failed vehicle API requests.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breadcrumbs_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breadcrumbs_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breadcrumbs_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "breadcrumbs_publish_duration_seconds",
			Help:    "Duration to publish and confirm a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breadcrumbs_written_total",
			Help: "Total records appended to day files.",
		}),
		MessagesAcked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breadcrumbs_messages_acked_total",
			Help: "Total bus messages acknowledged.",
		}),
		MessagesNacked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breadcrumbs_messages_nacked_total",
			Help: "Total bus messages negatively acknowledged.",
		}),
		OpenDayFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breadcrumbs_open_day_files",
			Help: "Number of day files currently held open by the subscriber.",
		}),
		TransformRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breadcrumbs_transform_runs_total",
			Help: "Transform runs by result.",
		}, []string{"result"}),
		BreadcrumbsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breadcrumbs_inserted_total",
			Help: "Total breadcrumb rows inserted by transform runs.",
		}),
		BatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breadcrumbs_batch_errors_total",
			Help: "Total breadcrumb batches rolled back to their savepoint.",
		}),
		TripInsertErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breadcrumbs_trip_insert_errors_total",
			Help: "Total trip inserts rolled back to their savepoint.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "breadcrumbs_transform_duration_seconds",
			Help:    "Duration of a transform run.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		BatchSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breadcrumbs_transform_batch_size",
			Help: "Configured breadcrumb insert batch size.",
		}),
	}

	// Register
	reg.MustRegister(
		c.RecordsFetched, c.FetchErrors,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.RecordsWritten, c.MessagesAcked, c.MessagesNacked, c.OpenDayFiles,
		c.TransformRuns, c.BreadcrumbsInserted, c.BatchErrors, c.TripInsertErrors, c.RunDuration,
		c.BatchSize,
	)

	c.BatchSize.Set(float64(batchSize))

	return c
}

// ObserveRun records the outcome of one transform run.
func (c *Collector) ObserveRun(result string, d time.Duration) {
	c.TransformRuns.WithLabelValues(result).Inc()
	c.RunDuration.Observe(d.Seconds())
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}

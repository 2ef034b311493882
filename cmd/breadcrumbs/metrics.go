package main

import (
	"time"

	"breadcrumb-pipeline/internal/collector"
	"breadcrumb-pipeline/internal/metrics"
	"breadcrumb-pipeline/internal/publisher"
	"breadcrumb-pipeline/internal/subscriber"
	"breadcrumb-pipeline/internal/transform"
)

func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}

func wrapCollectorMetrics(c *metrics.Collector) collector.Metrics {
	if c == nil {
		return nil
	}
	return &fetchMetrics{c: c}
}

type fetchMetrics struct{ c *metrics.Collector }

func (f *fetchMetrics) RecordsFetched(n int) { f.c.RecordsFetched.Add(float64(n)) }
func (f *fetchMetrics) FetchFailed()         { f.c.FetchErrors.Inc() }

func wrapSubscriberMetrics(c *metrics.Collector) subscriber.Metrics {
	if c == nil {
		return nil
	}
	return &subMetrics{c: c}
}

type subMetrics struct{ c *metrics.Collector }

func (s *subMetrics) RecordWritten() { s.c.RecordsWritten.Inc() }
func (s *subMetrics) MessageAcked()  { s.c.MessagesAcked.Inc() }
func (s *subMetrics) MessageNacked() { s.c.MessagesNacked.Inc() }

func wrapLoaderMetrics(c *metrics.Collector) transform.Metrics {
	if c == nil {
		return nil
	}
	return &loadMetrics{c: c}
}

type loadMetrics struct{ c *metrics.Collector }

func (l *loadMetrics) BreadcrumbsInserted(n int64) { l.c.BreadcrumbsInserted.Add(float64(n)) }
func (l *loadMetrics) BatchFailed()                { l.c.BatchErrors.Inc() }
func (l *loadMetrics) TripInsertFailed()           { l.c.TripInsertErrors.Inc() }

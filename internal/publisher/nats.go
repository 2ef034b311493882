package publisher

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type NATSPublisher struct {
	nc          *nats.Conn
	js          jetstream.JetStream
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// Connect dials NATS and reports connection state changes to m (may be nil).
func Connect(url, name string, m PublisherMetrics) (*nats.Conn, error) {
	setConnected := func(up bool) {
		if m != nil {
			m.NATSSetConnected(up)
		}
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			setConnected(false)
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			setConnected(true)
			log.Printf("nats reconnected to %s", nc.ConnectedUrlRedacted())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			setConnected(false)
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	setConnected(true)
	return nc, nil
}

// EnsureStream creates or updates the stream capturing every subject under
// prefix.
func EnsureStream(ctx context.Context, js jetstream.JetStream, stream, prefix string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{prefix + ".>"},
		Storage:  jetstream.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", stream, err)
	}
	return nil
}

func NewNATSPublisher(ctx context.Context, url, stream, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := Connect(url, "breadcrumb-collector", m)
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}
	if err := EnsureStream(ctx, js, stream, prefix); err != nil {
		nc.Close()
		return nil, err
	}
	return &NATSPublisher{nc: nc, js: js, prefix: prefix, logSubjects: logSubjects, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// Publish sends one raw breadcrumb record and waits for the stream to
// confirm it.
func (p *NATSPublisher) Publish(ctx context.Context, vehicleID string, record []byte) error {
	subject := Subject(p.prefix, vehicleID)
	if p.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	start := time.Now()
	_, err := p.js.Publish(ctx, subject, record)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// Subject is the bus subject for a vehicle's breadcrumbs.
func Subject(prefix, vehicleID string) string {
	return fmt.Sprintf("%s.%s", prefix, subjectToken(vehicleID))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}

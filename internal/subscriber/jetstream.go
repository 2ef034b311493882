package subscriber

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// ConsumerConfig names the durable consumer the subscriber reads from.
type ConsumerConfig struct {
	Stream        string
	Durable       string
	SubjectPrefix string
	MaxDeliver    int
	AckWait       time.Duration
}

// Consume delivers messages from the durable consumer to s until ctx is
// done, then drains in-flight messages.
func Consume(ctx context.Context, js jetstream.JetStream, cfg ConsumerConfig, s *Subscriber) error {
	if cfg.MaxDeliver == 0 {
		cfg.MaxDeliver = 5
	}
	if cfg.AckWait == 0 {
		cfg.AckWait = 30 * time.Second
	}
	cons, err := js.CreateOrUpdateConsumer(ctx, cfg.Stream, jetstream.ConsumerConfig{
		Durable:       cfg.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: cfg.SubjectPrefix + ".>",
		MaxDeliver:    cfg.MaxDeliver,
		AckWait:       cfg.AckWait,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", cfg.Durable, err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) { s.Handle(msg) },
		jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
			log.Printf("consume error: %v", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", cfg.Durable, err)
	}
	log.Printf("listening for messages on %s/%s", cfg.Stream, cfg.Durable)

	<-ctx.Done()
	cc.Drain()
	select {
	case <-cc.Closed():
	case <-time.After(10 * time.Second):
		log.Printf("drain timed out")
		cc.Stop()
	}
	log.Printf("subscriber stopped after %d records", s.Written())
	return nil
}

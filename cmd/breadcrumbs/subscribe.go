package main

import (
	"context"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"breadcrumb-pipeline/internal/dayfile"
	"breadcrumb-pipeline/internal/publisher"
	"breadcrumb-pipeline/internal/subscriber"
)

var (
	flagTransformOnExit bool
	flagSyncWrites      bool
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Persist bus messages to per-day JSONL files",
	Long: `Consumes the breadcrumb stream with a durable consumer and appends every
record to breadcrumbs_<date>.jsonl under OUTPUT_DIR. A message is
acknowledged only after its line is written. On shutdown every file is
closed and, with --transform-on-exit, the last written date is loaded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		mcol := startMetrics(ctx)
		if !cmd.Flags().Changed("transform-on-exit") {
			flagTransformOnExit = cfg.TransformOnExit
		}

		nc, err := publisher.Connect(cfg.NATSURL, "breadcrumb-subscriber", wrapPublisherMetrics(mcol))
		if err != nil {
			return err
		}
		defer nc.Close()
		js, err := jetstream.New(nc)
		if err != nil {
			return err
		}
		if err := publisher.EnsureStream(ctx, js, cfg.NATSStreamName, cfg.NATSSubjectPrefix); err != nil {
			return err
		}

		cache, err := dayfile.NewWriterCache(cfg.OutputDir, flagSyncWrites)
		if err != nil {
			return err
		}
		if mcol != nil {
			cache.OnChange = func(open int) { mcol.OpenDayFiles.Set(float64(open)) }
		}
		sub := subscriber.New(cache, cfg.Location, wrapSubscriberMetrics(mcol))
		log.Printf("output directory: %s", cfg.OutputDir)

		consumeErr := subscriber.Consume(ctx, js, subscriber.ConsumerConfig{
			Stream:        cfg.NATSStreamName,
			Durable:       cfg.NATSConsumer,
			SubjectPrefix: cfg.NATSSubjectPrefix,
		}, sub)
		if err := sub.Close(); err != nil {
			log.Printf("close day files: %v", err)
		}
		if consumeErr != nil {
			return consumeErr
		}

		date, ok := sub.LastDate()
		if !flagTransformOnExit || !ok {
			return nil
		}
		log.Printf("starting transformation for %s", date.Format(dayfile.DateLayout))
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Minute)
		defer cancel()
		store, err := openStore(tctx, "")
		if err != nil {
			return err
		}
		defer store.Close()
		_, err = runTransform(tctx, store, mcol, date, true)
		return err
	},
}

func init() {
	subscribeCmd.Flags().BoolVar(&flagTransformOnExit, "transform-on-exit", false, "load the last written date after shutdown (default TRANSFORM_ON_EXIT)")
	subscribeCmd.Flags().BoolVar(&flagSyncWrites, "sync", false, "fsync every line before acknowledging")
}

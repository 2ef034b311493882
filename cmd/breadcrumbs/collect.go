package main

import (
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"breadcrumb-pipeline/internal/collector"
	"breadcrumb-pipeline/internal/publisher"
)

var (
	flagIDsFile string
	flagNoRaw   bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Fetch breadcrumbs for every vehicle and publish them to NATS",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		mcol := startMetrics(ctx)

		idsFile := cfg.VehicleIDsFile
		if flagIDsFile != "" {
			idsFile = flagIDsFile
		}
		ids, err := collector.ReadVehicleIDs(idsFile)
		if err != nil {
			return err
		}
		log.Printf("read %d vehicle ids from %s", len(ids), idsFile)

		pub, err := publisher.NewNATSPublisher(ctx, cfg.NATSURL, cfg.NATSStreamName, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			return err
		}
		defer pub.Close()

		rawDir := cfg.RawDataDir
		if flagNoRaw {
			rawDir = ""
		}
		client := &http.Client{Timeout: cfg.HTTPTimeout}
		c := collector.New(cfg.APIURL, client, pub, rawDir, cfg.CollectorWorkers, cfg.Location, wrapCollectorMetrics(mcol))
		tot := c.Run(ctx, ids)
		if tot.Errors > 0 {
			log.Printf("failed to publish %d records", tot.Errors)
		}
		return ctx.Err()
	},
}

func init() {
	collectCmd.Flags().StringVar(&flagIDsFile, "ids-file", "", "vehicle id list (default VEHICLE_IDS_FILE)")
	collectCmd.Flags().BoolVar(&flagNoRaw, "no-raw", false, "do not archive raw API responses")
}

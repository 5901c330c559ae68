package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/jjenkins/visawatch/internal/service"
	"github.com/jjenkins/visawatch/internal/store"
)

var (
	watchInterval time.Duration
	watchMonths   int
	watchDetails  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Import repeatedly on a fixed interval",
	Long: `Watch runs an import immediately and then again every interval until it is
interrupted. Runs never overlap.`,
	Run: func(cmd *cobra.Command, args []string) {
		interval := cfg.Watch.Interval.Std()
		if cmd.Flags().Changed("interval") {
			interval = watchInterval
		}
		if interval <= 0 {
			fatal("interval must be positive", "interval", interval.String())
		}
		if cmd.Flags().Changed("months") {
			cfg.Watch.Months = watchMonths
		}
		if cmd.Flags().Changed("details") {
			cfg.Watch.IncludeDetails = watchDetails
		}

		ctx, cancel := signalContext()
		defer cancel()

		db := openDB(ctx)
		defer db.Close()

		importer := service.NewImporter(newScraper(), store.NewSnapshotStore(db))
		importer.Run(ctx, interval, service.ImportOptions{
			Limit:          cfg.Watch.Months,
			IncludeDetails: cfg.Watch.IncludeDetails,
		})
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 6*time.Hour, "Time between import runs")
	watchCmd.Flags().IntVarP(&watchMonths, "months", "n", 1, "Import the newest N months each run (0 for all)")
	watchCmd.Flags().BoolVar(&watchDetails, "details", false, "Also fetch each case's details page")
}

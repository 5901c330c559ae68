package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jjenkins/visawatch/internal/service"
	"github.com/jjenkins/visawatch/internal/store"
)

var (
	importMonth       string
	importMonths      int
	importSkipChanges bool
	importDryRun      bool
	importDetails     bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Scrape checkee.info and store a snapshot per month",
	Long: `Import scrapes the monthly listings from checkee.info, compares every month
with its previous snapshot and stores the new snapshot together with the
detected changes.

Examples:
  # Import every month listed on the site
  visawatch import

  # Import only the newest two months
  visawatch import --months 2

  # Import a single month without writing anything
  visawatch import --month 2024-02 --dry-run`,
	Run: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importMonth, "month", "m", "", "Import only this month (YYYY-MM)")
	importCmd.Flags().IntVarP(&importMonths, "months", "n", 0, "Import only the newest N months (0 for all)")
	importCmd.Flags().BoolVar(&importSkipChanges, "skip-changes", false, "Store snapshots without detecting changes")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Detect changes but do not persist anything")
	importCmd.Flags().BoolVar(&importDetails, "details", false, "Also fetch each case's details page")
}

func runImport(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	db := openDB(ctx)
	defer db.Close()

	snapshots := store.NewSnapshotStore(db)
	importer := service.NewImporter(newScraper(), snapshots)

	slog.Info("starting import", "month", importMonth, "months", importMonths, "dry_run", importDryRun)
	stats, err := importer.Import(ctx, service.ImportOptions{
		Month:          importMonth,
		Limit:          importMonths,
		SkipChanges:    importSkipChanges,
		DryRun:         importDryRun,
		IncludeDetails: importDetails,
	})
	if err != nil {
		if ctx.Err() != nil {
			slog.Warn("import cancelled")
			if stats != nil {
				service.PrintSummary(os.Stdout, stats)
			}
			os.Exit(1)
		}
		if errors.Is(err, service.ErrMonthNotFound) {
			fatal("month is not listed on the site", "month", importMonth)
		}
		fatal("import failed", "error", err)
	}
	service.PrintSummary(os.Stdout, stats)

	if stats.Failed > 0 {
		os.Exit(1)
	}
}

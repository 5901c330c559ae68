package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jjenkins/visawatch/internal/export"
	"github.com/jjenkins/visawatch/internal/model"
	"github.com/jjenkins/visawatch/internal/service"
)

var (
	scrapeOutputs []string
	scrapeMonth   string
	scrapeMonths  int
	scrapeDetails bool
	scrapeTest    bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape checkee.info into csv, json or xlsx files",
	Long: `Scrape fetches the monthly listings without touching the database and writes
the rows to one or more files. The format follows the file extension.

Examples:
  visawatch scrape --months 3 -o cases.csv -o cases.json
  visawatch scrape --month 2024-02 --details -o 2024-02.xlsx`,
	Run: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringSliceVarP(&scrapeOutputs, "output", "o", []string{"checkee_data.csv"}, "Output file (.csv, .json or .xlsx); repeatable")
	scrapeCmd.Flags().StringVarP(&scrapeMonth, "month", "m", "", "Scrape only this month (YYYY-MM)")
	scrapeCmd.Flags().IntVarP(&scrapeMonths, "months", "n", 0, "Scrape only the newest N months (0 for all)")
	scrapeCmd.Flags().BoolVar(&scrapeDetails, "details", false, "Also fetch each case's details page")
	scrapeCmd.Flags().BoolVar(&scrapeTest, "test", false, "Scrape only the newest month")
}

func runScrape(cmd *cobra.Command, args []string) {
	formats := make([]export.Format, len(scrapeOutputs))
	for i, path := range scrapeOutputs {
		format, err := export.FormatFromPath(path)
		if err != nil {
			fatal("unsupported output file", "path", path, "error", err)
		}
		formats[i] = format
	}

	if scrapeTest {
		scrapeMonths = 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	// scraping never reads or writes the store
	importer := service.NewImporter(newScraper(), nil)
	rows, err := importer.Scrape(ctx, service.ImportOptions{
		Month:          scrapeMonth,
		Limit:          scrapeMonths,
		IncludeDetails: scrapeDetails,
	})
	if err != nil {
		if len(rows) == 0 {
			fatal("scrape failed", "error", err)
		}
		slog.Warn("scrape stopped early, writing partial results", "error", err, "records", len(rows))
	}

	for i, path := range scrapeOutputs {
		if err := writeExport(path, formats[i], rows); err != nil {
			fatal("failed to write output", "path", path, "error", err)
		}
		slog.Info("wrote output", "path", path, "format", string(formats[i]), "records", len(rows))
	}
}

func writeExport(path string, format export.Format, rows []model.RawRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(f, format, rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return f.Close()
}

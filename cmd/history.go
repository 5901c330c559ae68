package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jjenkins/visawatch/internal/detect"
	"github.com/jjenkins/visawatch/internal/model"
	"github.com/jjenkins/visawatch/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history <casenum>",
	Short: "Show every stored version of a case",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		db := openDB(ctx)
		defer db.Close()

		caseNumber := args[0]
		records, err := detect.NewDetector(store.NewSnapshotStore(db)).History(ctx, caseNumber)
		if err != nil {
			fatal("failed to load history", "casenum", caseNumber, "error", err)
		}
		if len(records) == 0 {
			fmt.Printf("Case %s has not been seen yet.\n", caseNumber)
			return
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetTitle("Case " + caseNumber)
		t.AppendHeader(table.Row{"Scraped", "Month", "Status", "Check Date", "Complete Date", "Waiting Days", "Note"})
		for _, r := range records {
			waiting := model.NullDisplay
			if r.WaitingDays.Valid {
				waiting = fmt.Sprint(r.WaitingDays.Int64)
			}
			t.AppendRow(table.Row{
				r.CreatedAt.Format("2006-01-02 15:04"),
				r.Period,
				r.Status,
				model.DisplayDate(r.CheckDate),
				model.DisplayDate(r.CompleteDate),
				waiting,
				model.Truncate(r.Note),
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

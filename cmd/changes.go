package cmd

import (
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jjenkins/visawatch/internal/model"
	"github.com/jjenkins/visawatch/internal/store"
)

var (
	changesSince time.Duration
	changesMonth string
	changesKind  string
	changesCase  string
	changesLimit int
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "List detected changes, newest first",
	Long: `Changes lists the changes recorded by past imports.

Examples:
  # Status changes of the last day
  visawatch changes --since 24h --type status_change

  # Everything recorded for one case
  visawatch changes --case 123456`,
	Run: func(cmd *cobra.Command, args []string) {
		filter := store.ChangeFilter{
			Period:     changesMonth,
			CaseNumber: changesCase,
			Limit:      changesLimit,
		}
		if changesSince > 0 {
			filter.Since = time.Now().Add(-changesSince)
		}
		if changesKind != "" {
			kind, err := model.ParseChangeKind(changesKind)
			if err != nil {
				fatal("invalid change type", "error", err)
			}
			filter.Kind = kind
		}

		ctx, cancel := signalContext()
		defer cancel()

		db := openDB(ctx)
		defer db.Close()

		changes, err := store.NewChangeStore(db).ListChanges(ctx, filter)
		if err != nil {
			fatal("failed to list changes", "error", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Detected", "Case", "Change", "Old", "New"})
		for _, c := range changes {
			old := model.NullDisplay
			if c.OldValue.Valid {
				old = c.OldValue.String
			}
			t.AppendRow(table.Row{
				c.DetectedAt.Local().Format("2006-01-02 15:04"),
				c.CaseNumber,
				string(c.Kind),
				model.Truncate(old),
				model.Truncate(c.NewValue),
			})
		}
		t.AppendFooter(table.Row{"", "", "", "Total", len(changes)})
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

func init() {
	rootCmd.AddCommand(changesCmd)

	changesCmd.Flags().DurationVar(&changesSince, "since", 0, "Only changes detected within this duration (e.g. 24h)")
	changesCmd.Flags().StringVarP(&changesMonth, "month", "m", "", "Only changes of this month (YYYY-MM)")
	changesCmd.Flags().StringVarP(&changesKind, "type", "t", "", "Only this change type")
	changesCmd.Flags().StringVar(&changesCase, "case", "", "Only changes of this case number")
	changesCmd.Flags().IntVarP(&changesLimit, "limit", "l", 50, "Maximum number of changes to show (0 for all)")
}

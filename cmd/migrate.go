package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables",
	Long:  `Migrate applies the schema to the configured database. It is safe to run repeatedly.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		db := openDB(ctx)
		defer db.Close()

		slog.Info("database schema is up to date")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

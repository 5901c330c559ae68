package cmd

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/cobra"

	"github.com/jjenkins/visawatch/internal/handlers"
	"github.com/jjenkins/visawatch/internal/service"
	"github.com/jjenkins/visawatch/internal/store"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the visawatch web server",
	Long:  `Start the web server with the dashboard, case history pages and the JSON API.`,
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = port
		}

		ctx, cancel := signalContext()
		defer cancel()

		db := openDB(ctx)
		defer db.Close()

		snapshots := store.NewSnapshotStore(db)

		app := fiber.New(fiber.Config{
			AppName: "visawatch",
		})

		app.Use(logger.New())

		handlers.Register(app, handlers.Deps{
			Snapshots: snapshots,
			Changes:   store.NewChangeStore(db),
			Stats:     service.NewStatsService(snapshots),
		})

		go func() {
			<-ctx.Done()
			slog.Info("shutting down server")
			if err := app.Shutdown(); err != nil {
				slog.Error("failed to shut down server", "error", err)
			}
		}()

		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("starting server", "addr", addr)
		if err := app.Listen(addr); err != nil {
			fatal("failed to start server", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to run the server on")
}

package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jjenkins/visawatch/internal/config"
	"github.com/jjenkins/visawatch/internal/logging"
	"github.com/jjenkins/visawatch/internal/scraper"
	"github.com/jjenkins/visawatch/internal/store"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "visawatch",
	Short: "Track visa administrative processing cases listed on checkee.info",
	Long: `visawatch scrapes the monthly case listings from checkee.info, stores every
scrape as a snapshot and records what changed between snapshots of the same
month.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Logging.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Logging.Format = logFormat
		}
		logging.Setup(loaded.Logging.Level, loaded.Logging.Format)
		slog.Debug("configuration loaded", "config", loaded.String())

		cfg = loaded
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a json5 config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

// openDB connects to the configured database and applies the schema
func openDB(ctx context.Context) *store.DB {
	slog.Info("connecting to database")
	db, err := store.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		fatal("failed to connect to database", "error", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		fatal("failed to migrate database", "error", err)
	}
	return db
}

func newScraper() *scraper.Client {
	client, err := scraper.NewClient(scraper.Options{
		BaseURL:         cfg.Scraper.BaseURL,
		Timeout:         cfg.Scraper.Timeout.Std(),
		RequestInterval: cfg.Scraper.RequestInterval.Std(),
		MaxRetries:      cfg.Scraper.MaxRetries,
	})
	if err != nil {
		fatal("failed to create scraper", "error", err)
	}
	return client
}

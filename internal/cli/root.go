// Package cli provides the command-line interface for identify.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/identifyhq/identify/internal/client"
	"github.com/identifyhq/identify/internal/config"
	"github.com/identifyhq/identify/internal/pipeline"
	"github.com/identifyhq/identify/internal/store"
)

// Timeouts for the auxiliary services. The scrape itself uses the
// configured scrape timeout; analysis is an LLM call and gets more room.
const (
	serviceTimeout = 15 * time.Second
	analyzeTimeout = 60 * time.Second
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool
	useMock bool

	// Global wiring, set up in PersistentPreRunE
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func() error
	kvStore    *store.SQLiteKV
	scores     *store.Store
	history    historyService
	deps       pipeline.Deps
)

// historyService is the full surface of the history backend: writes for
// the pipeline, reads for the history and show commands.
type historyService interface {
	SaveSearch(ctx context.Context, rec client.SearchRecord) error
	History(ctx context.Context, userID string) ([]client.SearchRecord, error)
	Search(ctx context.Context, id string) (*client.SearchRecord, error)
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "identify",
	Short: "Look up a person's public web presence",
	Long: `Identify resolves a name or handle into candidate social profiles,
scrapes the confirmed sources, and produces an AI community analysis.

Sources are resolved first and can be overridden per platform before the
scrape runs. Completed lookups are persisted to the history service.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip service wiring for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if useMock {
			cfg.Mock = true
		}

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, logCleanup = config.SetupLogger(cfg.LogFile, level)

		// The score store is best-effort: a broken local database falls
		// back to in-memory state rather than blocking the lookup.
		var kv store.KV
		sqlKV, err := store.Open(cfg.StorePath)
		if err != nil {
			logger.Warn("score store unavailable, using in-memory fallback",
				"path", cfg.StorePath, "error", err)
			kv = store.NewMemoryKV()
		} else {
			kvStore = sqlKV
			kv = sqlKV
		}
		scores = store.New(kv, cfg.DeviceID, logger)

		deps = pipeline.Deps{
			Scores:  scores,
			Timeout: cfg.ScrapeTimeout,
			UserID:  cfg.UserID,
			Logger:  logger,
		}

		if cfg.Mock {
			m := client.NewMock()
			deps.Resolver = m
			deps.Provider = m
			deps.History = m
			deps.Analyzer = m
			history = m
			return nil
		}

		h := client.NewHistoryClient(cfg.HistoryURL, serviceTimeout, logger)
		deps.Resolver = client.NewResolveClient(cfg.ResolverURL, serviceTimeout, logger)
		deps.Provider = client.NewScrapeClient(cfg.ScraperURL, cfg.ScrapeTimeout, logger)
		deps.History = h
		deps.Analyzer = client.NewAnalyzeClient(cfg.AnalyzeURL, analyzeTimeout, logger)
		history = h
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if kvStore != nil {
			if err := kvStore.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close score store: %v\n", err)
			}
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&useMock, "mock", false, "use in-process mock backends instead of the real services")

	// Add subcommands
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(scoreCmd)
}

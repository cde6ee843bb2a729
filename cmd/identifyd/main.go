// Package main provides the identify daemon: the HTTP and websocket
// surface consumed by the host UI.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/identifyhq/identify/internal/client"
	"github.com/identifyhq/identify/internal/config"
	"github.com/identifyhq/identify/internal/pipeline"
	"github.com/identifyhq/identify/internal/server"
	"github.com/identifyhq/identify/internal/store"
)

// Timeouts for the auxiliary services. The scrape itself uses the
// configured scrape timeout; analysis is an LLM call and gets more room.
const (
	serviceTimeout = 15 * time.Second
	analyzeTimeout = 60 * time.Second
)

func main() {
	cfg := config.Load()

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("starting identifyd", "port", cfg.ServerPort, "mock", cfg.Mock)

	// The score store is best-effort: a broken local database falls back
	// to in-memory state rather than blocking startup.
	var kv store.KV
	sqlKV, err := store.Open(cfg.StorePath)
	if err != nil {
		logger.Warn("score store unavailable, using in-memory fallback",
			"path", cfg.StorePath, "error", err)
		kv = store.NewMemoryKV()
	} else {
		defer sqlKV.Close()
		kv = sqlKV
	}
	scores := store.New(kv, cfg.DeviceID, logger)

	deps := pipeline.Deps{
		Scores:  scores,
		Timeout: cfg.ScrapeTimeout,
		UserID:  cfg.UserID,
		Logger:  logger,
	}
	var history server.HistoryProxy
	if cfg.Mock {
		m := client.NewMock()
		deps.Resolver = m
		deps.Provider = m
		deps.History = m
		deps.Analyzer = m
		history = m
	} else {
		h := client.NewHistoryClient(cfg.HistoryURL, serviceTimeout, logger)
		deps.Resolver = client.NewResolveClient(cfg.ResolverURL, serviceTimeout, logger)
		deps.Provider = client.NewScrapeClient(cfg.ScraperURL, cfg.ScrapeTimeout, logger)
		deps.History = h
		deps.Analyzer = client.NewAnalyzeClient(cfg.AnalyzeURL, analyzeTimeout, logger)
		history = h
	}

	srv := server.New(deps, history, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second, // confirm responses return fast; history proxies can be slow
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("API available", "url", "http://localhost:"+cfg.ServerPort+"/api")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

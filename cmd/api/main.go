package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/api/handlers"
	"github.com/dvloznov/finance-reconciler/internal/api/middleware"
	"github.com/dvloznov/finance-reconciler/internal/app"
	"github.com/dvloznov/finance-reconciler/internal/config"
	"github.com/dvloznov/finance-reconciler/internal/ingest"
	"github.com/dvloznov/finance-reconciler/internal/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	var (
		port  = flag.String("port", cfg.HTTPPort, "HTTP server port (or set HTTP_PORT env)")
		watch = flag.Bool("watch", cfg.MailEnabled(), "Process new mail as it arrives")
	)
	flag.Parse()
	cfg.HTTPPort = *port

	log := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := logger.WithContext(context.Background(), log)

	a, err := app.New(ctx, cfg, log, app.Overrides{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}
	defer a.Close()

	// Start workers in background to process sync jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := a.StartWorkers(workerCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	var watcher *ingest.Watcher
	if *watch {
		watcher = ingest.NewWatcher(a.Pipeline)
		if err := watcher.Start(workerCtx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start mailbox watcher")
		}
	}

	router := handlers.Router{
		Transactions: handlers.NewTransactionsHandler(a.Stores.Transactions),
		Accounts:     handlers.NewAccountsHandler(a.Stores.Accounts),
		Sync:         handlers.NewSyncHandler(a.Stores.Accounts, a.Queue, a.JobStore, a.Tracker),
		Jobs:         handlers.NewJobsHandler(a.JobStore),
	}

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      middleware.Chain(router.Mux(), log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("backend", cfg.StorageBackend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if watcher != nil {
		if err := watcher.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping mailbox watcher")
		}
	}

	// Stop job queue and wait for in-flight jobs
	if err := a.Queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}

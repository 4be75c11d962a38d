package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/app"
	"github.com/dvloznov/finance-reconciler/internal/config"
	"github.com/dvloznov/finance-reconciler/internal/ingest"
	"github.com/dvloznov/finance-reconciler/internal/jobs"
	"github.com/dvloznov/finance-reconciler/internal/logger"
)

func main() {
	interval := flag.Duration("interval", 0, "Run a delta sync of every account at this interval (0 disables)")
	flag.Parse()

	cfg, err := config.Load(os.Getenv)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	a, err := app.New(ctx, cfg, log, app.Overrides{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}
	defer a.Close()

	log.Info().Msg("Starting worker service")

	if err := a.StartWorkers(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	watcher := ingest.NewWatcher(a.Pipeline)
	if err := watcher.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start mailbox watcher")
	}

	if *interval > 0 {
		go scheduleDeltaSyncs(ctx, a, *interval)
	}

	log.Info().Msg("Worker service started, waiting for mail...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := watcher.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping mailbox watcher")
	}

	// Stop the queue and wait for in-flight jobs
	if err := a.Queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	cancel()

	log.Info().Msg("Worker service exited")
}

// scheduleDeltaSyncs publishes one delta sync job covering every account per
// tick until ctx is done.
func scheduleDeltaSyncs(ctx context.Context, a *app.App, every time.Duration) {
	log := logger.Component(logger.FromContext(ctx), "scheduler")
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ids, err := a.AccountIDs(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list accounts")
			continue
		}
		if len(ids) == 0 {
			continue
		}
		job := &jobs.SyncJob{Kind: jobs.JobKindSyncAccounts, AccountIDs: ids, DeltaSync: true}
		if err := a.Queue.Publish(ctx, job); err != nil {
			log.Error().Err(err).Msg("Failed to publish delta sync")
			continue
		}
		log.Info().Str("job_id", job.JobID).Int("accounts", len(ids)).Msg("Delta sync scheduled")
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/app"
	"github.com/dvloznov/finance-reconciler/internal/config"
	"github.com/dvloznov/finance-reconciler/internal/logger"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	var (
		accounts = flag.String("accounts", "", "Comma-separated account ids (empty syncs every account)")
		delta    = flag.Bool("delta", false, "Only search mail received since each account's last sync")
		timeout  = flag.Duration("timeout", 10*time.Minute, "Overall time limit")
	)
	flag.Parse()

	ids, err := parseIDs(*accounts)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -accounts")
	}

	cfg, err := config.Load(os.Getenv)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log = logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat)

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log, app.Overrides{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}
	defer a.Close()

	if len(ids) == 0 {
		if ids, err = a.AccountIDs(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to list accounts")
		}
	}

	log.Info().Ints64("accounts", ids).Bool("delta", *delta).Msg("Starting sync")

	report, err := a.Pipeline.SyncAccounts(ctx, ids, *delta)
	for _, f := range report.Failures() {
		log.Warn().Err(f.Err).Int64("account_id", f.AccountID).Str("sender", f.Sender).Msg("Message failed")
	}
	if err != nil {
		log.Error().Err(err).Msg("Sync finished with errors")
	}

	fmt.Printf("Sync completed: %s\n", report.Summary())
	if err != nil {
		os.Exit(1)
	}
}

// parseIDs splits a comma-separated list of account ids.
func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid account id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

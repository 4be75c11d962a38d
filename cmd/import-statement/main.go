package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/acquire"
	"github.com/dvloznov/finance-reconciler/internal/app"
	"github.com/dvloznov/finance-reconciler/internal/config"
	"github.com/dvloznov/finance-reconciler/internal/logger"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	var (
		accountID  int64
		filePath   string
		objectName string
		ref        string
	)
	flag.Int64Var(&accountID, "account", 0, "Account the statement belongs to (required)")
	flag.StringVar(&filePath, "file", "", "Local statement JSON to upload before importing")
	flag.StringVar(&objectName, "object", "", "GCS object name for -file (optional; defaults to statements/<file name>)")
	flag.StringVar(&ref, "ref", "", "gs:// URI of an already uploaded statement")
	flag.Parse()

	if accountID <= 0 || (filePath == "") == (ref == "") {
		log.Fatal().Msg("Usage: import-statement -account ID (-file /path/to/statement.json [-object NAME] | -ref gs://bucket/object)")
	}

	cfg, err := config.Load(os.Getenv)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.GCSBucket == "" {
		log.Fatal().Msg("GCS_BUCKET is required to import statements")
	}
	log = logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat)

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log, app.Overrides{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}
	defer a.Close()

	if filePath != "" {
		if objectName == "" {
			objectName = "statements/" + filepath.Base(filePath)
		}
		log.Info().Str("file", filePath).Str("object", objectName).Msg("Uploading statement to GCS")
		if ref, err = acquire.UploadFile(ctx, a.Acquirer, objectName, filePath); err != nil {
			log.Fatal().Err(err).Msg("Upload failed")
		}
	}

	log.Info().Int64("account_id", accountID).Str("ref", ref).Msg("Starting statement import")

	report, err := a.Pipeline.ImportStatement(ctx, accountID, ref)
	for _, f := range report.Failures() {
		log.Warn().Err(f.Err).Int("entry", f.Entry).Msg("Entry failed")
	}
	if err != nil {
		log.Error().Err(err).Msg("Import failed")
		os.Exit(1)
	}

	fmt.Printf("Imported %s: %s\n", ref, report.Summary())
}

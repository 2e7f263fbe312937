package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dmorales/accounting-etl/internal/archive"
	"github.com/dmorales/accounting-etl/internal/batch"
	"github.com/dmorales/accounting-etl/internal/config"
	infraBQ "github.com/dmorales/accounting-etl/internal/infra/bigquery"
	"github.com/dmorales/accounting-etl/internal/logger"
	"github.com/dmorales/accounting-etl/internal/reconciler"
)

func main() {
	log := logger.New()

	var (
		envFile     = flag.String("env", ".env", "Path to env file (optional)")
		uid         = flag.String("uid", "", "Tenant UID (overrides ETL_UID)")
		spreadsheet = flag.String("spreadsheet", "", "Invoice XLSX path (overrides ETL_SPREADSHEET_PATH)")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}
	if *uid != "" {
		cfg.UID = *uid
	}
	if *spreadsheet != "" {
		cfg.SpreadsheetPath = *spreadsheet
	}
	if err := cfg.ValidateStore(); err != nil {
		log.Fatal().Err(err).Msg("Configuration incomplete")
	}
	if cfg.SpreadsheetPath == "" {
		log.Fatal().Msg("Usage: upload-invoices -spreadsheet /path/to/causaciones.xlsx (or set ETL_SPREADSHEET_PATH)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	client, err := infraBQ.NewClient(ctx, infraBQ.Dataset{
		ProjectID: cfg.ProjectID,
		DatasetID: cfg.DatasetID,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create warehouse client")
	}
	defer client.Close()

	log.Info().Str("uid", cfg.UID).Str("spreadsheet", cfg.SpreadsheetPath).
		Str("archive_dir", cfg.ArchiveDir).Msg("Starting invoice upload")

	state := &batch.State{
		Config:    cfg,
		Uploader:  reconciler.NewInvoiceUploader(client.Invoices()),
		Runs:      client.BatchRuns(),
		Extractor: archive.NewExtractor(cfg.ArchiveDir, cfg.ExtractDir),
		Flow:      batch.FlowInvoiceUpload,
	}
	if err := batch.Run(ctx, batch.NewInvoiceUploadPipeline(), state); err != nil {
		log.Fatal().Err(err).Msg("Invoice upload failed")
	}

	fmt.Println("Invoice upload completed successfully.")
}

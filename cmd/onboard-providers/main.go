package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dmorales/accounting-etl/internal/batch"
	"github.com/dmorales/accounting-etl/internal/config"
	infraBQ "github.com/dmorales/accounting-etl/internal/infra/bigquery"
	"github.com/dmorales/accounting-etl/internal/logger"
	"github.com/dmorales/accounting-etl/internal/reconciler"
)

func main() {
	log := logger.New()

	var (
		envFile = flag.String("env", ".env", "Path to env file (optional)")
		uid     = flag.String("uid", "", "Tenant UID (overrides ETL_UID)")
		csvDir  = flag.String("csv-dir", "", "Directory with processed ledger CSVs (overrides ETL_CSV_DIR)")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}
	if *uid != "" {
		cfg.UID = *uid
	}
	if *csvDir != "" {
		cfg.CSVDir = *csvDir
	}
	if err := cfg.ValidateStore(); err != nil {
		log.Fatal().Err(err).Msg("Configuration incomplete")
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

	log.Info().Str("uid", cfg.UID).Str("csv_dir", cfg.CSVDir).Msg("Starting provider onboarding")

	state := &batch.State{
		Config:     cfg,
		Reconciler: reconciler.New(client.Providers()),
		Runs:       client.BatchRuns(),
		Flow:       batch.FlowProviderOnboarding,
	}
	if err := batch.Run(ctx, batch.NewProviderOnboardingPipeline(), state); err != nil {
		log.Fatal().Err(err).Msg("Provider onboarding failed")
	}

	fmt.Println("Provider onboarding completed successfully.")
}

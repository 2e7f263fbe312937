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
		envFile  = flag.String("env", ".env", "Path to env file (optional)")
		uid      = flag.String("uid", "", "Tenant UID (overrides ETL_UID)")
		modelCSV = flag.String("model", "", "Fiscal model CSV path (overrides ETL_MODEL_CSV_PATH)")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}
	if *uid != "" {
		cfg.UID = *uid
	}
	if *modelCSV != "" {
		cfg.ModelCSVPath = *modelCSV
	}
	if err := cfg.ValidateStore(); err != nil {
		log.Fatal().Err(err).Msg("Configuration incomplete")
	}
	if cfg.ModelCSVPath == "" {
		log.Fatal().Msg("Usage: update-providers -model /path/to/modelo_terceros.csv (or set ETL_MODEL_CSV_PATH)")
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

	log.Info().Str("uid", cfg.UID).Str("model", cfg.ModelCSVPath).Msg("Starting fiscal update")

	state := &batch.State{
		Config:     cfg,
		Reconciler: reconciler.New(client.Providers()),
		Runs:       client.BatchRuns(),
		Flow:       batch.FlowFiscalUpdate,
	}
	if err := batch.Run(ctx, batch.NewFiscalUpdatePipeline(), state); err != nil {
		log.Fatal().Err(err).Msg("Fiscal update failed")
	}

	fmt.Println("Fiscal update completed successfully.")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dmorales/accounting-etl/internal/archive"
	"github.com/dmorales/accounting-etl/internal/config"
	"github.com/dmorales/accounting-etl/internal/logger"
)

func main() {
	log := logger.New()

	var (
		envFile    = flag.String("env", ".env", "Path to env file (optional)")
		archiveDir = flag.String("archive-dir", "", "Directory with invoice archives (overrides ETL_ARCHIVE_DIR)")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}
	if *archiveDir != "" {
		cfg.ArchiveDir = *archiveDir
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	log.Info().Str("archive_dir", cfg.ArchiveDir).Msg("Renaming archives to their invoice numbers")

	extractor := archive.NewExtractor(cfg.ArchiveDir, cfg.ExtractDir)
	renamed, err := extractor.RenameToInvoiceNumber(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Archive renaming failed")
	}

	fmt.Printf("Renamed %d archives.\n", renamed)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dmorales/accounting-etl/internal/config"
	"github.com/dmorales/accounting-etl/internal/gcsfetch"
	"github.com/dmorales/accounting-etl/internal/logger"
)

func main() {
	log := logger.New()

	var (
		envFile = flag.String("env", ".env", "Path to env file (optional)")
		bucket  = flag.String("bucket", "", "GCS bucket with invoice archives (overrides ETL_BUCKET)")
		prefix  = flag.String("prefix", "", "Object prefix to fetch (overrides ETL_BUCKET_PREFIX)")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}
	if *bucket != "" {
		cfg.Bucket = *bucket
	}
	if *prefix != "" {
		cfg.BucketPrefix = *prefix
	}
	if err := cfg.ValidateBucket(); err != nil {
		log.Fatal().Err(err).Msg("Configuration incomplete")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	log.Info().Str("bucket", cfg.Bucket).Str("prefix", cfg.BucketPrefix).
		Str("dest", cfg.ArchiveDir).Msg("Fetching invoice archives")

	downloaded, err := gcsfetch.DownloadArchives(ctx, cfg.Bucket, cfg.BucketPrefix, cfg.ArchiveDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Archive fetch failed")
	}

	fmt.Printf("Downloaded %d archives to %s.\n", len(downloaded), cfg.ArchiveDir)
}

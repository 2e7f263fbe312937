// Package config builds the explicit configuration value object shared by all
// batch tools. Components never read the environment themselves; each main
// constructs one Config and passes it down.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every externally supplied setting for a batch run.
type Config struct {
	// Warehouse coordinates.
	ProjectID string
	DatasetID string

	// UID is the tenant key partitioning all persisted records.
	UID string

	// Filesystem inputs.
	ArchiveDir      string // directory scanned for .zip invoice bundles
	ExtractDir      string // working directory for extracted archive members
	SpreadsheetPath string // XLSX with the invoice model
	CSVDir          string // directory of processed provider CSVs
	ModelCSVPath    string // fiscal-detail model CSV

	// Optional GCS source for archive bundles.
	Bucket       string
	BucketPrefix string
}

// Load reads the configuration from the environment. When envFile is
// non-empty it is loaded first (missing .env files are not an error, the
// variables may come from the real environment).
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("Load: reading env file %q: %w", envFile, err)
		}
	}

	cfg := &Config{
		ProjectID:       getenv("ETL_PROJECT_ID", ""),
		DatasetID:       getenv("ETL_DATASET_ID", "accounting"),
		UID:             getenv("ETL_UID", ""),
		ArchiveDir:      getenv("ETL_ARCHIVE_DIR", "data/facturas"),
		ExtractDir:      getenv("ETL_EXTRACT_DIR", "data/facturas/targetdir"),
		SpreadsheetPath: getenv("ETL_SPREADSHEET_PATH", ""),
		CSVDir:          getenv("ETL_CSV_DIR", "results"),
		ModelCSVPath:    getenv("ETL_MODEL_CSV_PATH", ""),
		Bucket:          getenv("ETL_BUCKET", ""),
		BucketPrefix:    getenv("ETL_BUCKET_PREFIX", ""),
	}

	return cfg, nil
}

// ValidateStore checks the settings every warehouse-backed tool needs.
// A failure here is a configuration error and aborts the whole batch.
func (c *Config) ValidateStore() error {
	var missing []string
	if c.ProjectID == "" {
		missing = append(missing, "ETL_PROJECT_ID")
	}
	if c.DatasetID == "" {
		missing = append(missing, "ETL_DATASET_ID")
	}
	if c.UID == "" {
		missing = append(missing, "ETL_UID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("ValidateStore: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateBucket checks the settings the archive fetcher needs.
func (c *Config) ValidateBucket() error {
	if c.Bucket == "" {
		return fmt.Errorf("ValidateBucket: missing required setting: ETL_BUCKET")
	}
	return nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

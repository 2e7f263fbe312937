package batch

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dmorales/accounting-etl/internal/gcsfetch"
	"github.com/dmorales/accounting-etl/internal/logger"
	"github.com/dmorales/accounting-etl/internal/reconciler"
)

// falloutFileName is where the rejected records of the latest run land,
// next to the source CSVs. Overwritten on every run.
const falloutFileName = "fallidos.csv"

// report is the JSON shape of the end-of-batch summary file.
type report struct {
	Flow      string               `json:"flow"`
	RunID     string               `json:"run_id,omitempty"`
	UID       string               `json:"uid"`
	Timestamp time.Time            `json:"timestamp"`
	Created   int                  `json:"created"`
	Updated   int                  `json:"updated"`
	Skipped   int                  `json:"skipped"`
	Failed    int                  `json:"failed"`
	Fallout   []reconciler.Fallout `json:"fallout,omitempty"`
}

// WriteReportStep writes the batch summary JSON and the fallout CSV into the
// results directory, then pushes the summary to the bucket when one is
// configured. Report failures are logged, never fatal.
type WriteReportStep struct{}

func (s *WriteReportStep) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)
	stats := state.Stats
	if stats == nil {
		stats = &reconciler.Stats{}
	}

	if err := os.MkdirAll(state.Config.CSVDir, 0o755); err != nil {
		log.Error().Err(err).Msg("Could not create results directory")
		return nil
	}

	now := time.Now().UTC()
	rep := report{
		Flow:      state.Flow,
		RunID:     state.RunID,
		UID:       state.Config.UID,
		Timestamp: now,
		Created:   stats.Created,
		Updated:   stats.Updated,
		Skipped:   stats.Skipped,
		Failed:    stats.Failed,
		Fallout:   stats.Fallout,
	}

	reportPath := filepath.Join(state.Config.CSVDir,
		fmt.Sprintf("report_%s_%s.json", state.Flow, now.Format("20060102T150405")))
	if err := writeJSON(reportPath, rep); err != nil {
		log.Error().Err(err).Str("path", reportPath).Msg("Could not write batch report")
	} else {
		log.Info().Str("path", reportPath).Msg("Batch report written")
	}

	if len(stats.Fallout) > 0 {
		falloutPath := filepath.Join(state.Config.CSVDir, falloutFileName)
		if err := writeFalloutCSV(falloutPath, stats.Fallout); err != nil {
			log.Error().Err(err).Str("path", falloutPath).Msg("Could not write fallout file")
		}
	}

	if state.Config.Bucket != "" {
		object := path.Join(state.Config.BucketPrefix, "reports", filepath.Base(reportPath))
		if err := gcsfetch.UploadReport(ctx, state.Config.Bucket, object, reportPath); err != nil {
			log.Error().Err(err).Str("object", object).Msg("Could not upload batch report")
		}
	}

	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func writeFalloutCSV(path string, fallout []reconciler.Fallout) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %q: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"archivo", "fila", "nit", "error"}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, entry := range fallout {
		record := []string{entry.SourceFile, strconv.Itoa(entry.Line), entry.TaxID, entry.Reason}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing %q: %w", path, err)
	}
	return f.Close()
}

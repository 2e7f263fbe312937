package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmorales/accounting-etl/internal/identifier"
	"github.com/dmorales/accounting-etl/internal/logger"
	"github.com/dmorales/accounting-etl/internal/reconciler"
	"github.com/dmorales/accounting-etl/internal/source"
)

// ledgerSuffix marks the exported ledger CSVs the onboarding flow consumes.
const ledgerSuffix = "_Procesado.csv"

// requiredLedgerColumns must all be present in a ledger export. A file
// missing any of them is a configuration error and is skipped whole.
var requiredLedgerColumns = []string{
	"CUENTA", "DESCRIPCION", "NIT", "NOMBRE", "FECHA",
	"DIG.VER.", "CENTRO COSTO", "SALDO ACUMULADO",
}

// transactionColumns maps ledger headers onto the stored movement fields.
var transactionColumns = map[string]string{
	"COMPROBANTE":     "comprobante",
	"FECHA":           "fecha",
	"DETALLE":         "detalle",
	"DEBITOS":         "debitos",
	"CREDITOS":        "creditos",
	"SALDO ACUMULADO": "saldo_acumulado",
	"INV-CRUC-BASE":   "inv_cruc_base",
	"CENTRO COSTO":    "centro_costo",
}

// ReadLedgerCSVsStep loads every ledger export in the CSV directory into raw
// provider rows. Unreadable or incomplete files are logged and skipped; they
// never abort the batch.
type ReadLedgerCSVsStep struct{}

func (s *ReadLedgerCSVsStep) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)

	entries, err := os.ReadDir(state.Config.CSVDir)
	if err != nil {
		return fmt.Errorf("ReadLedgerCSVsStep: reading %q: %w", state.Config.CSVDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ledgerSuffix) {
			continue
		}
		path := filepath.Join(state.Config.CSVDir, entry.Name())
		log.Info().Str("file", path).Msg("Processing ledger export")

		table, err := source.ReadTable(path, 0)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Could not read ledger export")
			continue
		}
		if err := table.RequireColumns(requiredLedgerColumns...); err != nil {
			log.Error().Err(err).Str("file", path).Msg("Ledger export rejected")
			continue
		}

		state.FilesRead++
		s.collectRows(state, table, entry.Name())
	}

	log.Info().Int("files", state.FilesRead).Int("rows", len(state.Rows)).
		Msg("Ledger exports loaded")
	return nil
}

func (s *ReadLedgerCSVsStep) collectRows(state *State, table *source.Table, name string) {
	required := make(map[string]bool, len(requiredLedgerColumns))
	for _, col := range requiredLedgerColumns {
		required[col] = true
	}

	for i, row := range table.Rows {
		line := i + 2 // 1-based, counting the header row

		taxID := identifier.Clean(table.Value(row, "NIT"))
		account := table.Value(row, "CUENTA")
		providerName := table.Value(row, "NOMBRE")
		if account == "" || taxID == "" || providerName == "" {
			state.PreFallout = append(state.PreFallout, reconciler.Fallout{
				SourceFile: name,
				Line:       line,
				TaxID:      taxID,
				Reason:     "missing required CUENTA, NIT or NOMBRE",
			})
			continue
		}

		raw := reconciler.RawRow{
			SourceFile:  name,
			Line:        line,
			TaxID:       taxID,
			Name:        providerName,
			Description: table.Value(row, "DESCRIPCION"),
			AccountCode: account,
			Date:        table.Value(row, "FECHA"),
			Balance:     table.Value(row, "SALDO ACUMULADO"),
		}

		tx := map[string]string{}
		for header, field := range transactionColumns {
			if v := table.Value(row, header); v != "" {
				tx[field] = v
			}
		}
		if len(tx) > 0 {
			raw.Transaction = tx
		}

		for col, header := range table.Headers {
			if required[header] || header == "" {
				continue
			}
			if v := source.Cell(row, col); v != "" {
				if raw.Extra == nil {
					raw.Extra = map[string]string{}
				}
				raw.Extra[extraFieldName(header)] = v
			}
		}

		state.Rows = append(state.Rows, raw)
	}
}

var extraFieldReplacer = strings.NewReplacer(" ", "_", ".", "_", "-", "_")

// extraFieldName normalizes a source header into a storable field name.
func extraFieldName(header string) string {
	return strings.ToLower(extraFieldReplacer.Replace(header))
}

// CleanSlateStep removes every provider of the tenant ahead of the full
// reload the onboarding flow performs.
type CleanSlateStep struct{}

func (s *CleanSlateStep) Execute(ctx context.Context, state *State) error {
	deleted, err := state.Reconciler.CleanSlate(ctx, state.Config.UID)
	if err != nil {
		return fmt.Errorf("CleanSlateStep: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().Int64("deleted", deleted).
		Str("uid", state.Config.UID).Msg("Existing providers removed")
	return nil
}

// ReconcileStep consolidates the loaded rows and applies them to the store.
type ReconcileStep struct{}

func (s *ReconcileStep) Execute(ctx context.Context, state *State) error {
	stats, err := state.Reconciler.Run(ctx, state.Config.UID, state.Rows)
	if stats != nil {
		stats.Failed += len(state.PreFallout)
		stats.Fallout = append(stats.Fallout, state.PreFallout...)
	}
	state.Stats = stats
	if err != nil {
		return fmt.Errorf("ReconcileStep: %w", err)
	}
	return nil
}

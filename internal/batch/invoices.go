package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dmorales/accounting-etl/internal/identifier"
	"github.com/dmorales/accounting-etl/internal/logger"
	"github.com/dmorales/accounting-etl/internal/matcher"
	"github.com/dmorales/accounting-etl/internal/reconciler"
	"github.com/dmorales/accounting-etl/internal/source"
)

// invoiceHeaderLabel anchors the data region of the invoice spreadsheet.
const invoiceHeaderLabel = "TIPO DE FACTURA"

// invoiceTypeTags mark the invoice types the upload flow accepts.
var invoiceTypeTags = []string{"Servicio", "Arrendamiento"}

// SheetLayout gives the fixed column positions of the invoice spreadsheet.
// The export never carries usable per-column headers below the anchor row,
// so positions are configuration.
type SheetLayout struct {
	Type            int
	Supplier        int
	FileDescription int
	InvoiceID       int
}

// DefaultSheetLayout matches the accounting export in production use.
var DefaultSheetLayout = SheetLayout{
	Type:            0,
	Supplier:        16,
	FileDescription: 18,
	InvoiceID:       86,
}

// ReadSpreadsheetStep loads the invoice spreadsheet and locates the header
// row. A missing header is a configuration error that aborts the batch.
type ReadSpreadsheetStep struct{}

func (s *ReadSpreadsheetStep) Execute(ctx context.Context, state *State) error {
	rows, err := source.ReadSheetRows(state.Config.SpreadsheetPath)
	if err != nil {
		return fmt.Errorf("ReadSpreadsheetStep: %w", err)
	}
	headerRow, ok := source.LocateHeaderRow(rows, invoiceHeaderLabel)
	if !ok {
		return fmt.Errorf("ReadSpreadsheetStep: header %q not found in %q",
			invoiceHeaderLabel, state.Config.SpreadsheetPath)
	}
	state.SheetRows = rows
	state.DataStart = headerRow + 1
	log := logger.FromContext(ctx)
	log.Info().Int("header_row", headerRow).
		Int("rows", len(rows)-state.DataStart).Msg("Invoice spreadsheet loaded")
	return nil
}

// ListArchivesStep snapshots the downloaded archives the matcher runs
// against.
type ListArchivesStep struct{}

func (s *ListArchivesStep) Execute(ctx context.Context, state *State) error {
	archives, err := state.Extractor.ListArchives()
	if err != nil {
		return fmt.Errorf("ListArchivesStep: %w", err)
	}
	state.Archives = archives
	log := logger.FromContext(ctx)
	log.Info().Int("archives", len(archives)).Msg("Archives listed")
	return nil
}

// UploadInvoicesStep walks the spreadsheet data rows and inserts each new
// invoice, enriching it with the description extracted from its matching
// archive when one is found. Rows whose reference was already handled in
// this batch are skipped.
type UploadInvoicesStep struct {
	// Layout defaults to DefaultSheetLayout when zero.
	Layout *SheetLayout
}

func (s *UploadInvoicesStep) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)
	layout := DefaultSheetLayout
	if s.Layout != nil {
		layout = *s.Layout
	}

	stats := &reconciler.Stats{}
	state.Stats = stats
	seen := make(map[string]bool)
	sheetName := filepath.Base(state.Config.SpreadsheetPath)

	for i, row := range state.SheetRows[state.DataStart:] {
		line := state.DataStart + i + 1

		invoiceType := source.Cell(row, layout.Type)
		if invoiceType == "" {
			continue
		}
		if !acceptedInvoiceType(invoiceType) {
			log.Debug().Str("type", invoiceType).Int("line", line).Msg("Invoice type not handled")
			stats.Skipped++
			continue
		}

		supplierID := identifier.Clean(source.Cell(row, layout.Supplier))
		fileDescription := source.Cell(row, layout.FileDescription)
		invoiceID := source.Cell(row, layout.InvoiceID)

		// Token-less descriptions share the empty reference, so after the
		// first such row the rest are treated as duplicates too.
		reference, hasReference := identifier.ExtractReferenceToken(fileDescription)
		if seen[reference] {
			log.Info().Str("reference", reference).Int("line", line).
				Msg("Duplicate invoice reference in spreadsheet")
			stats.Skipped++
			continue
		}
		seen[reference] = true

		var extracted *string
		if hasReference {
			if zipName, found := matcher.FindBestMatch(reference, state.Archives); found {
				if description, ok := state.Extractor.ReferenceField(ctx, zipName); ok {
					extracted = &description
				}
			} else {
				log.Warn().Str("reference", reference).Int("line", line).
					Msg("No archive matches invoice reference")
			}
		}

		created, err := state.Uploader.Insert(ctx, &reconciler.Invoice{
			UID:                  state.Config.UID,
			SupplierID:           supplierID,
			InvoiceID:            invoiceID,
			FileDescription:      fileDescription,
			InvoiceType:          invoiceType,
			ExtractedDescription: extracted,
		})
		if err != nil {
			log.Error().Err(err).Str("invoice_id", invoiceID).Int("line", line).
				Msg("Failed to insert invoice")
			stats.Failed++
			stats.Fallout = append(stats.Fallout, reconciler.Fallout{
				SourceFile: sheetName,
				Line:       line,
				TaxID:      supplierID,
				Reason:     fmt.Sprintf("insert: %v", err),
			})
			continue
		}
		if created {
			log.Info().Str("invoice_id", invoiceID).Str("supplier_id", supplierID).
				Msg("Created invoice")
			stats.Created++
		} else {
			log.Info().Str("invoice_id", invoiceID).Msg("Invoice already stored")
			stats.Skipped++
		}
	}

	return nil
}

func acceptedInvoiceType(invoiceType string) bool {
	for _, tag := range invoiceTypeTags {
		if strings.Contains(invoiceType, tag) {
			return true
		}
	}
	return false
}

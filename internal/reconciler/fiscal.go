package reconciler

import (
	"context"
	"fmt"

	"github.com/dmorales/accounting-etl/internal/logger"
)

// FiscalUpdate carries the fiscal-detail fields of one model row. The tax ID
// is already cleaned; empty fields are left untouched on the record.
type FiscalUpdate struct {
	SourceFile           string
	Line                 int
	TaxID                string
	FiscalResponsibility string
	Activity             string
	City                 string
	BusinessName         string
	BranchOffice         string
}

// ApplyFiscalUpdates sets fiscal details on existing providers. Providers the
// tenant does not have are counted as failed, never inserted.
func (r *Reconciler) ApplyFiscalUpdates(ctx context.Context, uid string, updates []FiscalUpdate) (*Stats, error) {
	log := logger.FromContext(ctx)
	stats := &Stats{}

	existing, err := r.store.ListByUID(ctx, uid)
	if err != nil {
		return stats, fmt.Errorf("ApplyFiscalUpdates: listing providers for uid %s: %w", uid, err)
	}
	byTaxID := make(map[string]StoredProvider, len(existing))
	for _, sp := range existing {
		if sp.TaxID != "" {
			byTaxID[sp.TaxID] = sp
		}
	}

	for _, update := range updates {
		if update.TaxID == "" {
			stats.fail(Fallout{
				SourceFile: update.SourceFile,
				Line:       update.Line,
				Reason:     "missing required identifier",
			})
			continue
		}
		sp, ok := byTaxID[update.TaxID]
		if !ok {
			log.Warn().Str("tax_id", update.TaxID).Msg("Provider not found for fiscal update")
			stats.fail(Fallout{
				SourceFile: update.SourceFile,
				Line:       update.Line,
				TaxID:      update.TaxID,
				Reason:     "provider not found",
			})
			continue
		}

		fields := map[string]string{}
		for name, value := range map[string]string{
			"fiscal_responsibility": update.FiscalResponsibility,
			"activity":              update.Activity,
			"city":                  update.City,
			"business_name":         update.BusinessName,
			"branch_office":         update.BranchOffice,
		} {
			if value != "" {
				fields[name] = value
			}
		}
		if len(fields) == 0 {
			log.Warn().Str("tax_id", update.TaxID).Msg("No fiscal data to update")
			stats.Skipped++
			continue
		}

		affected, err := r.store.UpdateFields(ctx, uid, sp.Key, fields)
		if err != nil {
			log.Error().Err(err).Str("tax_id", update.TaxID).Msg("Failed to update provider fiscal details")
			stats.fail(Fallout{
				SourceFile: update.SourceFile,
				Line:       update.Line,
				TaxID:      update.TaxID,
				Reason:     fmt.Sprintf("update: %v", err),
			})
			continue
		}
		if affected == 0 {
			log.Warn().Str("tax_id", update.TaxID).Msg("Fiscal update was a no-op")
			stats.Skipped++
			continue
		}
		stats.Updated++
	}

	return stats, nil
}

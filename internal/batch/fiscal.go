package batch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dmorales/accounting-etl/internal/identifier"
	"github.com/dmorales/accounting-etl/internal/logger"
	"github.com/dmorales/accounting-etl/internal/reconciler"
	"github.com/dmorales/accounting-etl/internal/source"
)

// ReadModelCSVStep loads the fiscal model CSV. Header spelling varies
// between exports, so columns are located by fragment rather than by exact
// name. Missing identifier, responsibility, activity or city columns abort
// the batch.
type ReadModelCSVStep struct{}

func (s *ReadModelCSVStep) Execute(ctx context.Context, state *State) error {
	table, err := source.ReadTable(state.Config.ModelCSVPath, 0)
	if err != nil {
		return fmt.Errorf("ReadModelCSVStep: %w", err)
	}

	taxCol, ok := table.FindColumn("IDENTIFICACIÓN", "IDENTIFICACION")
	if !ok {
		return fmt.Errorf("ReadModelCSVStep: %q has no identifier column", table.Path)
	}
	respCol, respOK := table.FindColumn("RESPONSABILIDAD FISCAL")
	actCol, actOK := table.FindColumn("ACTIVIDAD ECONÓMICA", "CODIGO ACTIVIDAD")
	cityCol, cityOK := table.FindColumn("CIUDAD")
	if !respOK || !actOK || !cityOK {
		return fmt.Errorf("ReadModelCSVStep: %q is missing fiscal columns", table.Path)
	}
	nameCol, nameOK := table.FindColumn("RAZÓN SOCIAL", "RAZON SOCIAL")
	branchCol, branchOK := table.FindColumn("SUCURSAL")

	name := filepath.Base(table.Path)
	for i, row := range table.Rows {
		update := reconciler.FiscalUpdate{
			SourceFile:           name,
			Line:                 i + 2,
			TaxID:                identifier.Clean(source.Cell(row, taxCol)),
			FiscalResponsibility: source.Cell(row, respCol),
			Activity:             source.Cell(row, actCol),
			City:                 source.Cell(row, cityCol),
		}
		if nameOK {
			update.BusinessName = source.Cell(row, nameCol)
		}
		if branchOK {
			update.BranchOffice = source.Cell(row, branchCol)
		}
		state.FiscalUpdates = append(state.FiscalUpdates, update)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("file", table.Path).
		Int("rows", len(state.FiscalUpdates)).Msg("Fiscal model loaded")
	return nil
}

// ApplyFiscalUpdatesStep patches the fiscal fields of existing providers.
type ApplyFiscalUpdatesStep struct{}

func (s *ApplyFiscalUpdatesStep) Execute(ctx context.Context, state *State) error {
	stats, err := state.Reconciler.ApplyFiscalUpdates(ctx, state.Config.UID, state.FiscalUpdates)
	state.Stats = stats
	if err != nil {
		return fmt.Errorf("ApplyFiscalUpdatesStep: %w", err)
	}
	return nil
}

// Package batch wires the source readers, the reconciler and the stores into
// sequential pipelines, one per back-office workflow.
package batch

import (
	"context"
	"fmt"

	"github.com/dmorales/accounting-etl/internal/archive"
	"github.com/dmorales/accounting-etl/internal/config"
	infra "github.com/dmorales/accounting-etl/internal/infra/bigquery"
	"github.com/dmorales/accounting-etl/internal/logger"
	"github.com/dmorales/accounting-etl/internal/reconciler"
)

// Flow names recorded with each batch run.
const (
	FlowProviderOnboarding = "provider-onboarding"
	FlowInvoiceUpload      = "invoice-upload"
	FlowFiscalUpdate       = "fiscal-update"
)

// RunRecorder persists the lifecycle of one batch run.
type RunRecorder interface {
	Start(ctx context.Context, uid, flow string) (string, error)
	Finish(ctx context.Context, runID string, result infra.RunResult) error
}

// Step represents a single step in a batch pipeline.
type Step interface {
	Execute(ctx context.Context, state *State) error
}

// State holds the shared state across all pipeline steps.
type State struct {
	Config *config.Config

	Reconciler *reconciler.Reconciler
	Uploader   *reconciler.InvoiceUploader
	Runs       RunRecorder
	Extractor  *archive.Extractor

	Flow  string
	RunID string

	// Provider onboarding.
	Rows       []reconciler.RawRow
	PreFallout []reconciler.Fallout
	FilesRead  int

	// Invoice upload.
	SheetRows [][]string
	DataStart int
	Archives  []string

	// Fiscal update.
	FiscalUpdates []reconciler.FiscalUpdate

	Stats *reconciler.Stats
}

// Pipeline runs its steps in order, stopping at the first failure.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewProviderOnboardingPipeline builds the full-reload provider flow: read
// the exported ledger CSVs, wipe the tenant, reconcile and report.
func NewProviderOnboardingPipeline() *Pipeline {
	return NewPipeline(
		&StartRunStep{},
		&ReadLedgerCSVsStep{},
		&CleanSlateStep{},
		&ReconcileStep{},
		&WriteReportStep{},
	)
}

// NewInvoiceUploadPipeline builds the invoice flow: locate the spreadsheet
// header, match each row against the downloaded archives and insert what is
// not already stored.
func NewInvoiceUploadPipeline() *Pipeline {
	return NewPipeline(
		&StartRunStep{},
		&ReadSpreadsheetStep{},
		&ListArchivesStep{},
		&UploadInvoicesStep{},
		&WriteReportStep{},
	)
}

// NewFiscalUpdatePipeline builds the fiscal model flow: read the model CSV
// and patch the fiscal fields of existing providers.
func NewFiscalUpdatePipeline() *Pipeline {
	return NewPipeline(
		&StartRunStep{},
		&ReadModelCSVStep{},
		&ApplyFiscalUpdatesStep{},
		&WriteReportStep{},
	)
}

// Run executes the pipeline, closes the batch run record either way and logs
// the end-of-batch summary.
func Run(ctx context.Context, p *Pipeline, state *State) error {
	err := p.Execute(ctx, state)
	finishRun(ctx, state, err)
	logSummary(ctx, state, err)
	return err
}

// StartRunStep opens the batch run record. A recording failure is logged and
// the batch continues without a run entry.
type StartRunStep struct{}

func (s *StartRunStep) Execute(ctx context.Context, state *State) error {
	if state.Runs == nil {
		return nil
	}
	runID, err := state.Runs.Start(ctx, state.Config.UID, state.Flow)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("flow", state.Flow).
			Msg("Could not record batch run start")
		return nil
	}
	state.RunID = runID
	return nil
}

func finishRun(ctx context.Context, state *State, runErr error) {
	if state.Runs == nil || state.RunID == "" {
		return
	}
	result := infra.RunResult{Err: runErr}
	if state.Stats != nil {
		result.Created = state.Stats.Created
		result.Updated = state.Stats.Updated
		result.Skipped = state.Stats.Skipped
		result.Failed = state.Stats.Failed
	}
	if err := state.Runs.Finish(ctx, state.RunID, result); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("run_id", state.RunID).
			Msg("Could not record batch run finish")
	}
}

func logSummary(ctx context.Context, state *State, runErr error) {
	log := logger.FromContext(ctx)
	event := log.Info()
	if runErr != nil {
		event = log.Error().Err(runErr)
	}
	stats := state.Stats
	if stats == nil {
		stats = &reconciler.Stats{}
	}
	event.Str("flow", state.Flow).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Msg("Batch finished")

	for _, f := range stats.Fallout {
		log.Warn().Str("file", f.SourceFile).Int("line", f.Line).
			Str("tax_id", f.TaxID).Str("reason", f.Reason).
			Msg("Record not processed")
	}
}

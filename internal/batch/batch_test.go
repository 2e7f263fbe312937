package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/dmorales/accounting-etl/internal/archive"
	"github.com/dmorales/accounting-etl/internal/config"
	infra "github.com/dmorales/accounting-etl/internal/infra/bigquery"
	"github.com/dmorales/accounting-etl/internal/reconciler"
)

type fakeRecord struct {
	taxID        string
	accountCodes []string
	transactions []map[string]string
	fields       map[string]string
}

type fakeProviderStore struct {
	records map[string]*fakeRecord
}

func newFakeProviderStore() *fakeProviderStore {
	return &fakeProviderStore{records: map[string]*fakeRecord{}}
}

func (s *fakeProviderStore) ListByUID(_ context.Context, _ string) ([]reconciler.StoredProvider, error) {
	var out []reconciler.StoredProvider
	for key, rec := range s.records {
		out = append(out, reconciler.StoredProvider{
			Key:          key,
			TaxID:        rec.taxID,
			AccountCodes: append([]string(nil), rec.accountCodes...),
		})
	}
	return out, nil
}

func (s *fakeProviderStore) Insert(_ context.Context, _, externalID string, p *reconciler.Provider) error {
	s.records[externalID] = &fakeRecord{
		taxID:        p.TaxID,
		accountCodes: append([]string(nil), p.AccountCodes...),
		transactions: append([]map[string]string(nil), p.Transactions...),
		fields:       map[string]string{},
	}
	return nil
}

func (s *fakeProviderStore) Update(_ context.Context, _, key string, p *reconciler.Provider, accountCodes []string) (int64, error) {
	rec, ok := s.records[key]
	if !ok {
		return 0, nil
	}
	rec.accountCodes = append([]string(nil), accountCodes...)
	rec.transactions = append(rec.transactions, p.Transactions...)
	return 1, nil
}

func (s *fakeProviderStore) UpdateFields(_ context.Context, _, key string, fields map[string]string) (int64, error) {
	rec, ok := s.records[key]
	if !ok {
		return 0, nil
	}
	for k, v := range fields {
		rec.fields[k] = v
	}
	return 1, nil
}

func (s *fakeProviderStore) DeleteByUID(_ context.Context, _ string) (int64, error) {
	n := int64(len(s.records))
	s.records = map[string]*fakeRecord{}
	return n, nil
}

type fakeInvoiceStore struct {
	invoices map[string]*reconciler.Invoice
}

func newFakeInvoiceStore() *fakeInvoiceStore {
	return &fakeInvoiceStore{invoices: map[string]*reconciler.Invoice{}}
}

func (s *fakeInvoiceStore) Exists(_ context.Context, uid, invoiceID string) (bool, error) {
	_, ok := s.invoices[uid+"/"+invoiceID]
	return ok, nil
}

func (s *fakeInvoiceStore) Insert(_ context.Context, inv *reconciler.Invoice) error {
	s.invoices[inv.UID+"/"+inv.InvoiceID] = inv
	return nil
}

type fakeRunRecorder struct {
	started  int
	finished []infra.RunResult
}

func (r *fakeRunRecorder) Start(_ context.Context, _, _ string) (string, error) {
	r.started++
	return fmt.Sprintf("run-%d", r.started), nil
}

func (r *fakeRunRecorder) Finish(_ context.Context, _ string, result infra.RunResult) error {
	r.finished = append(r.finished, result)
	return nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestProviderOnboardingPipeline(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "mayo_Procesado.csv"),
		"CUENTA,DESCRIPCION,NIT,NOMBRE,FECHA,DIG.VER.,CENTRO COSTO,SALDO ACUMULADO,DETALLE\n"+
			"5100,Servicios,900123456-7,ACME SAS,02/05/2025,7,CC01,\"1.000,50\",Pago mayo\n"+
			"6200,Servicios,900123456-7,ACME SAS,03/05/2025,7,CC01,,Pago junio\n"+
			",Sin cuenta,800999888,OTRO SAS,04/05/2025,1,CC02,,\n")
	// Not a ledger export, must be ignored.
	writeFile(t, filepath.Join(dir, "notas.csv"), "A,B\n1,2\n")

	store := newFakeProviderStore()
	runs := &fakeRunRecorder{}
	state := &State{
		Config:     &config.Config{UID: "tenant-1", CSVDir: dir},
		Reconciler: reconciler.New(store),
		Runs:       runs,
		Flow:       FlowProviderOnboarding,
	}

	err := Run(context.Background(), NewProviderOnboardingPipeline(), state)
	require.NoError(t, err)
	require.NotNil(t, state.Stats)

	assert.Equal(t, 1, state.Stats.Created)
	assert.Equal(t, 1, state.Stats.Failed)
	require.Len(t, state.Stats.Fallout, 1)
	assert.Equal(t, "mayo_Procesado.csv", state.Stats.Fallout[0].SourceFile)
	assert.Equal(t, 4, state.Stats.Fallout[0].Line)

	require.Len(t, store.records, 1)
	for _, rec := range store.records {
		assert.Equal(t, "9001234567", rec.taxID)
		assert.Equal(t, []string{"5100", "6200"}, rec.accountCodes)
		require.Len(t, rec.transactions, 2)
		assert.Equal(t, "Pago mayo", rec.transactions[0]["detalle"])
	}

	assert.Equal(t, 1, runs.started)
	require.Len(t, runs.finished, 1)
	assert.Equal(t, 1, runs.finished[0].Created)
	assert.NoError(t, runs.finished[0].Err)
}

func TestProviderOnboardingPipelineCleanSlate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "junio_Procesado.csv"),
		"CUENTA,DESCRIPCION,NIT,NOMBRE,FECHA,DIG.VER.,CENTRO COSTO,SALDO ACUMULADO\n"+
			"5100,Servicios,123456,NUEVO SAS,01/06/2025,3,CC01,\n")

	store := newFakeProviderStore()
	store.records["stale"] = &fakeRecord{taxID: "999", fields: map[string]string{}}

	state := &State{
		Config:     &config.Config{UID: "tenant-1", CSVDir: dir},
		Reconciler: reconciler.New(store),
		Flow:       FlowProviderOnboarding,
	}
	require.NoError(t, Run(context.Background(), NewProviderOnboardingPipeline(), state))

	assert.Equal(t, 1, state.Stats.Created)
	require.Len(t, store.records, 1)
	for _, rec := range store.records {
		assert.Equal(t, "123456", rec.taxID)
	}
}

func writeInvoiceSheet(t *testing.T, path string, dataRows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"REPORTE DE CAUSACIONES"}))
	header := make([]any, DefaultSheetLayout.InvoiceID+1)
	header[0] = "TIPO DE FACTURA"
	require.NoError(t, f.SetSheetRow(sheet, "A2", &header))
	for i, row := range dataRows {
		cell := fmt.Sprintf("A%d", i+3)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
}

func invoiceRow(invoiceType, supplier, fileDesc, invoiceID string) []any {
	row := make([]any, DefaultSheetLayout.InvoiceID+1)
	row[DefaultSheetLayout.Type] = invoiceType
	row[DefaultSheetLayout.Supplier] = supplier
	row[DefaultSheetLayout.FileDescription] = fileDesc
	row[DefaultSheetLayout.InvoiceID] = invoiceID
	return row
}

func TestInvoiceUploadPipeline(t *testing.T) {
	dir := t.TempDir()
	sheetPath := filepath.Join(dir, "causaciones.xlsx")
	writeInvoiceSheet(t, sheetPath, [][]any{
		invoiceRow("Servicio - Gasto", "900.123.456-7", "Factura No 000123 Arriendo", "FG123"),
		invoiceRow("Arrendamiento", "800999888", "Factura No 000123 Arriendo", "FG124"),
		invoiceRow("Honorarios", "111", "Factura No 555", "FG555"),
	})

	invoices := newFakeInvoiceStore()
	state := &State{
		Config:    &config.Config{UID: "tenant-1", SpreadsheetPath: sheetPath},
		Uploader:  reconciler.NewInvoiceUploader(invoices),
		Extractor: archive.NewExtractor(t.TempDir(), t.TempDir()),
		Flow:      FlowInvoiceUpload,
	}
	require.NoError(t, Run(context.Background(), NewInvoiceUploadPipeline(), state))

	// One created; the duplicate reference and the foreign type are skipped.
	assert.Equal(t, 1, state.Stats.Created)
	assert.Equal(t, 2, state.Stats.Skipped)
	assert.Equal(t, 0, state.Stats.Failed)

	inv, ok := invoices.invoices["tenant-1/FG123"]
	require.True(t, ok)
	assert.Equal(t, "9001234567", inv.SupplierID)
	assert.Equal(t, "Servicio - Gasto", inv.InvoiceType)
	assert.Nil(t, inv.ExtractedDescription)
}

func TestInvoiceUploadPipelineRerunSkips(t *testing.T) {
	dir := t.TempDir()
	sheetPath := filepath.Join(dir, "causaciones.xlsx")
	writeInvoiceSheet(t, sheetPath, [][]any{
		invoiceRow("Servicio", "900123456", "Factura No 000123", "FG123"),
	})

	invoices := newFakeInvoiceStore()
	newState := func() *State {
		return &State{
			Config:    &config.Config{UID: "tenant-1", SpreadsheetPath: sheetPath},
			Uploader:  reconciler.NewInvoiceUploader(invoices),
			Extractor: archive.NewExtractor(t.TempDir(), t.TempDir()),
			Flow:      FlowInvoiceUpload,
		}
	}

	first := newState()
	require.NoError(t, Run(context.Background(), NewInvoiceUploadPipeline(), first))
	assert.Equal(t, 1, first.Stats.Created)

	second := newState()
	require.NoError(t, Run(context.Background(), NewInvoiceUploadPipeline(), second))
	assert.Equal(t, 0, second.Stats.Created)
	assert.Equal(t, 1, second.Stats.Skipped)
	assert.Len(t, invoices.invoices, 1)
}

func TestInvoiceUploadPipelineTokenlessDescriptions(t *testing.T) {
	dir := t.TempDir()
	sheetPath := filepath.Join(dir, "causaciones.xlsx")
	// Descriptions without a digit-bearing token all share the empty
	// reference: the first row goes through, the rest count as duplicates.
	writeInvoiceSheet(t, sheetPath, [][]any{
		invoiceRow("Servicio", "900123456", "Arriendo local", "FG200"),
		invoiceRow("Servicio", "800999888", "Otro arriendo", "FG201"),
	})

	invoices := newFakeInvoiceStore()
	state := &State{
		Config:    &config.Config{UID: "tenant-1", SpreadsheetPath: sheetPath},
		Uploader:  reconciler.NewInvoiceUploader(invoices),
		Extractor: archive.NewExtractor(t.TempDir(), t.TempDir()),
		Flow:      FlowInvoiceUpload,
	}
	require.NoError(t, Run(context.Background(), NewInvoiceUploadPipeline(), state))

	assert.Equal(t, 1, state.Stats.Created)
	assert.Equal(t, 1, state.Stats.Skipped)
	_, ok := invoices.invoices["tenant-1/FG200"]
	assert.True(t, ok)
	_, ok = invoices.invoices["tenant-1/FG201"]
	assert.False(t, ok)
}

func TestInvoiceUploadPipelineMissingHeader(t *testing.T) {
	dir := t.TempDir()
	sheetPath := filepath.Join(dir, "sin_encabezado.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow(f.GetSheetName(0), "A1", &[]any{"OTRA COSA"}))
	require.NoError(t, f.SaveAs(sheetPath))
	require.NoError(t, f.Close())

	state := &State{
		Config:    &config.Config{UID: "tenant-1", SpreadsheetPath: sheetPath},
		Uploader:  reconciler.NewInvoiceUploader(newFakeInvoiceStore()),
		Extractor: archive.NewExtractor(t.TempDir(), t.TempDir()),
		Flow:      FlowInvoiceUpload,
	}
	err := Run(context.Background(), NewInvoiceUploadPipeline(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TIPO DE FACTURA")
}

func TestFiscalUpdatePipeline(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "modelo_terceros.csv")
	writeFile(t, modelPath,
		"IDENTIFICACIÓN  (OBLIGATORIO),RESPONSABILIDAD FISCAL,ACTIVIDAD ECONÓMICA,CIUDAD,RAZÓN SOCIAL,SUCURSAL\n"+
			"900.123.456,R-99,6201,11001,ACME SAS,Principal\n"+
			"555000111,R-01,4711,05001,DESCONOCIDA SAS,\n")

	store := newFakeProviderStore()
	store.records["20250101_abcd1234"] = &fakeRecord{
		taxID:        "900123456",
		accountCodes: []string{"5100"},
		fields:       map[string]string{},
	}

	state := &State{
		Config:     &config.Config{UID: "tenant-1", ModelCSVPath: modelPath},
		Reconciler: reconciler.New(store),
		Flow:       FlowFiscalUpdate,
	}
	require.NoError(t, Run(context.Background(), NewFiscalUpdatePipeline(), state))

	assert.Equal(t, 1, state.Stats.Updated)
	assert.Equal(t, 1, state.Stats.Failed)

	rec := store.records["20250101_abcd1234"]
	assert.Equal(t, "R-99", rec.fields["fiscal_responsibility"])
	assert.Equal(t, "6201", rec.fields["activity"])
	assert.Equal(t, "11001", rec.fields["city"])
	assert.Equal(t, "ACME SAS", rec.fields["business_name"])
}

func TestExtraFieldName(t *testing.T) {
	assert.Equal(t, "dig_ver_", extraFieldName("DIG.VER."))
	assert.Equal(t, "inv_cruc_base", extraFieldName("INV-CRUC-BASE"))
	assert.Equal(t, "centro_costo", extraFieldName("CENTRO COSTO"))
}

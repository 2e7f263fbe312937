package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "model.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("saving workbook: %v", err)
	}
	return path
}

func TestReadSheetRows_And_LocateHeaderRow(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"Reporte generado", ""},
		{"", ""},
		{"TIPO DE FACTURA", "PROVEEDOR", "DESCRIPCION"},
		{"Servicio - Gasto", "900123456", "Factura No 000123"},
	})

	rows, err := ReadSheetRows(path)
	if err != nil {
		t.Fatalf("ReadSheetRows failed: %v", err)
	}

	idx, ok := LocateHeaderRow(rows, "TIPO DE FACTURA")
	if !ok || idx != 2 {
		t.Errorf("LocateHeaderRow = (%d, %v), want (2, true)", idx, ok)
	}

	if got := Cell(rows[idx+1], 0); got != "Servicio - Gasto" {
		t.Errorf("first data cell = %q", got)
	}
}

func TestLocateHeaderRow_Missing(t *testing.T) {
	rows := [][]string{{"foo"}, {"bar"}}
	if _, ok := LocateHeaderRow(rows, "TIPO DE FACTURA"); ok {
		t.Error("expected header to be missing")
	}
}

func TestFindHeaderCell(t *testing.T) {
	rows := [][]string{
		{"", "x"},
		{"a", " NIT ", "b"},
	}
	r, c, ok := FindHeaderCell(rows, "NIT")
	if !ok || r != 1 || c != 1 {
		t.Errorf("FindHeaderCell = (%d, %d, %v), want (1, 1, true)", r, c, ok)
	}
}

func TestCell_ShortRow(t *testing.T) {
	row := []string{"a", "b"}
	if got := Cell(row, 5); got != "" {
		t.Errorf("Cell out of range = %q, want empty", got)
	}
	if got := Cell(row, -1); got != "" {
		t.Errorf("Cell negative index = %q, want empty", got)
	}
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadTable_BOMAndSkip(t *testing.T) {
	path := writeCSV(t, "\xEF\xBB\xBFreporte,,\nfecha,,\nNIT,NOMBRE,CUENTA\n900123456,ACME SAS,5100\n")

	table, err := ReadTable(path, 2)
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(table.Rows))
	}
	if got := table.Value(table.Rows[0], "NIT"); got != "900123456" {
		t.Errorf("NIT = %q", got)
	}
	if got := table.Value(table.Rows[0], "NOMBRE"); got != "ACME SAS" {
		t.Errorf("NOMBRE = %q", got)
	}
}

func TestReadTable_RequireColumns(t *testing.T) {
	path := writeCSV(t, "NIT,NOMBRE\n1,2\n")

	table, err := ReadTable(path, 0)
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	if err := table.RequireColumns("NIT", "NOMBRE"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := table.RequireColumns("NIT", "CUENTA", "FECHA"); err == nil {
		t.Error("expected error for missing columns")
	}
}

func TestReadTable_FindColumn(t *testing.T) {
	path := writeCSV(t, "IDENTIFICACIÓN  (OBLIGATORIO),RAZÓN SOCIAL,CODIGO CIUDAD\n1,ACME,11001\n")

	table, err := ReadTable(path, 0)
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	if idx, ok := table.FindColumn("IDENTIFICACIÓN"); !ok || idx != 0 {
		t.Errorf("FindColumn(IDENTIFICACIÓN) = (%d, %v)", idx, ok)
	}
	if idx, ok := table.FindColumn("RAZÓN SOCIAL"); !ok || idx != 1 {
		t.Errorf("FindColumn(RAZÓN SOCIAL) = (%d, %v)", idx, ok)
	}
	if _, ok := table.FindColumn("SUCURSAL"); ok {
		t.Error("expected SUCURSAL to be absent")
	}
}

func TestReadTable_SkipPastEnd(t *testing.T) {
	path := writeCSV(t, "a,b\n")
	if _, err := ReadTable(path, 5); err == nil {
		t.Error("expected error when skip exceeds file length")
	}
}

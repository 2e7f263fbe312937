package archive

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Header labels accepted for the description column. The source invoices
// carry either spelling depending on the issuing system.
var descriptionLabels = []string{"Descripción", "Descripcion"}

var invoiceNumberRe = regexp.MustCompile(`N[úu]mero de Factura:?\s*(\S+)`)

// descriptionColumn scans the PDF's row structure for a header cell carrying
// the description label, then collects the non-empty values below it in the
// same column. The pdf library can panic on malformed documents, so the scan
// is wrapped in a recover and reported as an error instead.
func descriptionColumn(path string) (values []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			values, err = nil, fmt.Errorf("descriptionColumn: parsing %q: %v", path, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("descriptionColumn: opening %q: %w", path, err)
	}
	defer f.Close()

	for pageNo := 1; pageNo <= reader.NumPage(); pageNo++ {
		page := reader.Page(pageNo)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("descriptionColumn: page %d of %q: %w", pageNo, path, err)
		}

		headerRow, headerCol := locateHeaderCell(rows)
		if headerRow < 0 {
			continue
		}
		values = append(values, collectColumn(rows, headerRow, headerCol)...)
	}
	return values, nil
}

// collectColumn gathers the non-empty cells below the header position, in
// the header's column. Rows too short to reach the column are skipped.
func collectColumn(rows pdf.Rows, headerRow, headerCol int) []string {
	var values []string
	for _, row := range rows[headerRow+1:] {
		if len(row.Content) <= headerCol {
			continue
		}
		if cell := strings.TrimSpace(row.Content[headerCol].S); cell != "" {
			values = append(values, cell)
		}
	}
	return values
}

// locateHeaderCell returns the first (row, column) position whose cell
// carries a description label, or (-1, -1) when the page has none.
func locateHeaderCell(rows pdf.Rows) (int, int) {
	for rowIdx, row := range rows {
		for colIdx, cell := range row.Content {
			for _, label := range descriptionLabels {
				if strings.Contains(cell.S, label) {
					return rowIdx, colIdx
				}
			}
		}
	}
	return -1, -1
}

// invoiceNumber scans the PDF text for the "Número de Factura" label and
// returns the value following it, or "" when the document has none.
func invoiceNumber(path string) (number string, err error) {
	defer func() {
		if r := recover(); r != nil {
			number, err = "", fmt.Errorf("invoiceNumber: parsing %q: %v", path, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("invoiceNumber: opening %q: %w", path, err)
	}
	defer f.Close()

	for pageNo := 1; pageNo <= reader.NumPage(); pageNo++ {
		page := reader.Page(pageNo)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("invoiceNumber: page %d of %q: %w", pageNo, path, err)
		}
		for _, row := range rows {
			var line strings.Builder
			for _, word := range row.Content {
				line.WriteString(word.S)
				line.WriteString(" ")
			}
			if m := invoiceNumberRe.FindStringSubmatch(line.String()); m != nil {
				return strings.TrimSpace(m[1]), nil
			}
		}
	}
	return "", nil
}

package source

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// Table is a CSV file loaded into memory with header-name access.
type Table struct {
	Path    string
	Headers []string
	Rows    [][]string

	index map[string]int
}

// ReadTable loads a UTF-8 CSV file, tolerating a BOM and skipping the first
// skip rows of non-data boilerplate before the header row.
func ReadTable(path string, skip int) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadTable: opening %q: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	// Strip a UTF-8 BOM if present.
	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		if _, err := br.Discard(3); err != nil {
			return nil, fmt.Errorf("ReadTable: discarding BOM in %q: %w", path, err)
		}
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ReadTable: parsing %q: %w", path, err)
	}
	if skip >= len(records) {
		return nil, fmt.Errorf("ReadTable: %q has no rows after skipping %d", path, skip)
	}
	records = records[skip:]

	headers := make([]string, len(records[0]))
	index := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
		if _, seen := index[headers[i]]; !seen {
			index[headers[i]] = i
		}
	}

	return &Table{
		Path:    path,
		Headers: headers,
		Rows:    records[1:],
		index:   index,
	}, nil
}

// Column returns the index of the named header.
func (t *Table) Column(name string) (int, bool) {
	idx, ok := t.index[name]
	return idx, ok
}

// FindColumn returns the first header containing any of the given substrings,
// compared case-insensitively. The source model CSVs vary header spelling
// between exports, so lookups match by fragment.
func (t *Table) FindColumn(fragments ...string) (int, bool) {
	for idx, header := range t.Headers {
		upper := strings.ToUpper(header)
		for _, fragment := range fragments {
			if strings.Contains(upper, strings.ToUpper(fragment)) {
				return idx, true
			}
		}
	}
	return -1, false
}

// RequireColumns verifies that every named header exists. A missing required
// header is a configuration error for the batch.
func (t *Table) RequireColumns(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, ok := t.index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("RequireColumns: %q is missing required columns: %s",
			t.Path, strings.Join(missing, ", "))
	}
	return nil
}

// Value returns the trimmed cell under the named header for the given row,
// or "" when the header is unknown or the row is short.
func (t *Table) Value(row []string, name string) string {
	idx, ok := t.index[name]
	if !ok {
		return ""
	}
	return Cell(row, idx)
}

package loader

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/corpwatch/mca-insights/internal/reconcile"
)

// ReadXLSX parses one registry workbook into raw rows keyed by the first
// row's column names. sheet selects a sheet by name; "" means the first
// sheet.
func ReadXLSX(path, sheet string) ([]reconcile.RawRow, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open xlsx %s", path)
	}

	var sh *xlsx.Sheet
	if sheet != "" {
		var ok bool
		if sh, ok = f.Sheet[sheet]; !ok {
			return nil, eris.Errorf("loader: sheet %q not found in %s", sheet, path)
		}
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.Errorf("loader: %s has no sheets", path)
		}
		sh = f.Sheets[0]
	}

	if len(sh.Rows) == 0 {
		return nil, nil
	}

	header := make([]string, len(sh.Rows[0].Cells))
	for i, cell := range sh.Rows[0].Cells {
		header[i] = strings.TrimSpace(cell.String())
	}

	var rows []reconcile.RawRow
	for _, r := range sh.Rows[1:] {
		cells := make([]string, len(r.Cells))
		for i, cell := range r.Cells {
			cells[i] = cell.String()
		}
		rows = append(rows, rowFromCells(header, cells))
	}
	return rows, nil
}

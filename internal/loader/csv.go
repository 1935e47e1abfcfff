package loader

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/corpwatch/mca-insights/internal/reconcile"
)

// ReadCSV parses one registry CSV into raw rows keyed by the header
// columns. Header names are trimmed; rows shorter than the header are
// padded with empty cells; extra trailing cells are dropped. encoding
// names a non-UTF-8 charset (e.g. "windows-1252") to decode through, ""
// means the input is already UTF-8.
func ReadCSV(r io.Reader, encoding string) ([]reconcile.RawRow, error) {
	if encoding != "" {
		enc, err := htmlindex.Get(encoding)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: unknown encoding %q", encoding)
		}
		r = enc.NewDecoder().Reader(r)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "loader: read csv header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []reconcile.RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "loader: read csv row")
		}
		rows = append(rows, rowFromCells(header, record))
	}
	return rows, nil
}

func rowFromCells(header, cells []string) reconcile.RawRow {
	row := make(reconcile.RawRow, len(header))
	for i, name := range header {
		if name == "" {
			continue
		}
		if i < len(cells) {
			row[name] = cells[i]
		} else {
			row[name] = ""
		}
	}
	return row
}

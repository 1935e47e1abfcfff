// Package export writes change logs to CSV and JSON for downstream
// consumers.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/corpwatch/mca-insights/internal/model"
)

// csvHeader is the stable change-log column set downstream tooling
// expects.
var csvHeader = []string{
	"CIN", "Change_Type", "Field_Changed", "Old_Value", "New_Value",
	"Date", "Company_Name", "State", "Status",
}

// kindLabels render change kinds the way analysts read them.
var kindLabels = map[model.ChangeKind]string{
	model.ChangeNewIncorporation: "New Incorporation",
	model.ChangeDeregistration:   "Deregistration",
	model.ChangeFieldUpdate:      "Field Update",
}

// KindLabel returns the human-readable label for a change kind.
func KindLabel(k model.ChangeKind) string {
	if label, ok := kindLabels[k]; ok {
		return label
	}
	return string(k)
}

// WriteCSV writes events as a CSV table. Absent old/new values render as
// empty cells; CSV cannot carry the absent/empty-string distinction, so
// consumers needing it should take the JSON form.
func WriteCSV(w io.Writer, events []model.ChangeEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}

	for _, ev := range events {
		row := []string{
			ev.CIN,
			KindLabel(ev.Kind),
			string(ev.Field),
			ev.OldDisplay(),
			ev.NewDisplay(),
			ev.Date.Format("2006-01-02"),
			ev.CompanyName,
			ev.State,
			ev.Status,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", ev.CIN)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteJSON writes events as an indented JSON array, preserving the
// absent/present distinction as null values.
func WriteJSON(w io.Writer, events []model.ChangeEvent) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if events == nil {
		events = []model.ChangeEvent{}
	}
	return eris.Wrap(enc.Encode(events), "export: encode json")
}

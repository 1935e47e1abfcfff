// Package summary aggregates snapshots and change logs into the figures
// the status command and query API report.
package summary

import (
	"sort"
	"time"

	"github.com/corpwatch/mca-insights/internal/model"
)

// Count pairs a label with how many records carry it.
type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// SnapshotSummary describes one snapshot's population.
type SnapshotSummary struct {
	TakenAt       time.Time  `json:"taken_at"`
	TotalRecords  int        `json:"total_records"`
	ByState       []Count    `json:"by_state"`
	ByStatus      []Count    `json:"by_status"`
	EarliestRegn  *time.Time `json:"earliest_registration,omitempty"`
	LatestRegn    *time.Time `json:"latest_registration,omitempty"`
	MissingStatus int        `json:"missing_status"`
}

// Summarize tallies a snapshot by state and status and finds the
// registration-date range. Records without a state or status count under
// the empty label is avoided; they are tracked separately.
func Summarize(snap model.Snapshot) SnapshotSummary {
	s := SnapshotSummary{
		TakenAt:      snap.Timestamp,
		TotalRecords: snap.Len(),
	}

	byState := map[string]int{}
	byStatus := map[string]int{}
	for _, rec := range snap.Records {
		if st := rec.StrAttr(model.FieldState); st != "" {
			byState[st]++
		}
		if st := rec.StrAttr(model.FieldStatus); st != "" {
			byStatus[st]++
		} else {
			s.MissingStatus++
		}
		if v, ok := rec.Attr(model.FieldRegistrationDate); ok {
			d := v.Date
			if s.EarliestRegn == nil || d.Before(*s.EarliestRegn) {
				s.EarliestRegn = &d
			}
			if s.LatestRegn == nil || d.After(*s.LatestRegn) {
				s.LatestRegn = &d
			}
		}
	}

	s.ByState = sortedCounts(byState)
	s.ByStatus = sortedCounts(byStatus)
	return s
}

// ChangeSummary describes a window of the change log.
type ChangeSummary struct {
	Total            int     `json:"total"`
	NewIncorporation int     `json:"new_incorporations"`
	Deregistration   int     `json:"deregistrations"`
	FieldUpdate      int     `json:"field_updates"`
	UpdatedFields    []Count `json:"updated_fields,omitempty"`
	ByState          []Count `json:"by_state,omitempty"`
}

// SummarizeChanges tallies events by kind, updated field, and state.
func SummarizeChanges(events []model.ChangeEvent) ChangeSummary {
	s := ChangeSummary{Total: len(events)}

	byField := map[string]int{}
	byState := map[string]int{}
	for _, ev := range events {
		switch ev.Kind {
		case model.ChangeNewIncorporation:
			s.NewIncorporation++
		case model.ChangeDeregistration:
			s.Deregistration++
		case model.ChangeFieldUpdate:
			s.FieldUpdate++
			byField[string(ev.Field)]++
		}
		if ev.State != "" {
			byState[ev.State]++
		}
	}

	s.UpdatedFields = sortedCounts(byField)
	s.ByState = sortedCounts(byState)
	return s
}

// sortedCounts orders descending by count, then label, so the biggest
// buckets lead and output is stable.
func sortedCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for label, n := range m {
		out = append(out, Count{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// Package diff compares two canonical snapshots and produces an ordered
// change log of incorporations, deregistrations, and field updates.
package diff

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/corpwatch/mca-insights/internal/model"
)

// ErrInvalidSnapshotOrdering is returned when the current snapshot is not
// strictly newer than the baseline. The differ never infers ordering;
// handing it a misordered pair is a caller bug and the comparison aborts,
// since its output would be meaningless.
var ErrInvalidSnapshotOrdering = eris.New("diff: current snapshot must be newer than baseline")

// DetectChanges compares a baseline and a current snapshot and returns the
// change log: one new-incorporation event per identifier only in current,
// one deregistration event per identifier only in baseline, and one
// field-update event per differing canonical field on identifiers present
// in both. Events are ordered by kind (new, deregistered, updates), then
// ascending CIN, then ascending field name; the order never depends on map
// iteration. Event dates carry the current snapshot's timestamp.
func DetectChanges(baseline, current model.Snapshot) ([]model.ChangeEvent, error) {
	if !current.Timestamp.After(baseline.Timestamp) {
		return nil, eris.Wrapf(ErrInvalidSnapshotOrdering, "baseline %s, current %s",
			baseline.Timestamp.Format("2006-01-02"), current.Timestamp.Format("2006-01-02"))
	}

	var events []model.ChangeEvent
	var added, removed, common []string

	for _, cin := range current.CINs() {
		if _, ok := baseline.Records[cin]; ok {
			common = append(common, cin)
		} else {
			added = append(added, cin)
		}
	}
	for _, cin := range baseline.CINs() {
		if _, ok := current.Records[cin]; !ok {
			removed = append(removed, cin)
		}
	}

	for _, cin := range added {
		rec := current.Records[cin]
		events = append(events, model.ChangeEvent{
			CIN:         cin,
			Kind:        model.ChangeNewIncorporation,
			Date:        current.Timestamp,
			CompanyName: rec.StrAttr(model.FieldCompanyName),
			State:       rec.StrAttr(model.FieldState),
			Status:      rec.StrAttr(model.FieldStatus),
		})
	}

	for _, cin := range removed {
		rec := baseline.Records[cin]
		events = append(events, model.ChangeEvent{
			CIN:         cin,
			Kind:        model.ChangeDeregistration,
			Date:        current.Timestamp,
			CompanyName: rec.StrAttr(model.FieldCompanyName),
			State:       rec.StrAttr(model.FieldState),
			Status:      rec.StrAttr(model.FieldStatus),
		})
	}

	fields := model.Fields()
	for _, cin := range common {
		events = append(events, compareRecords(baseline.Records[cin], current.Records[cin], fields, current)...)
	}

	zap.L().Info("detected changes",
		zap.Time("baseline", baseline.Timestamp),
		zap.Time("current", current.Timestamp),
		zap.Int("new_incorporations", len(added)),
		zap.Int("deregistrations", len(removed)),
		zap.Int("events", len(events)),
	)

	return events, nil
}

// compareRecords scans every canonical field pairwise and classifies each
// difference, including the asymmetric absent->present and present->absent
// cases. Two absent values are equal; present values compare exactly. An
// identifier with zero differing fields contributes zero events.
func compareRecords(old, cur model.CanonicalRecord, fields []model.Field, current model.Snapshot) []model.ChangeEvent {
	var events []model.ChangeEvent

	for _, f := range fields {
		oldV, oldOK := old.Attr(f)
		newV, newOK := cur.Attr(f)

		switch {
		case !oldOK && !newOK:
			continue
		case oldOK && newOK && oldV.Equal(newV):
			continue
		}

		ev := model.ChangeEvent{
			CIN:         cur.CIN,
			Kind:        model.ChangeFieldUpdate,
			Field:       f,
			Date:        current.Timestamp,
			CompanyName: cur.StrAttr(model.FieldCompanyName),
			State:       cur.StrAttr(model.FieldState),
			Status:      cur.StrAttr(model.FieldStatus),
		}
		if oldOK {
			v := oldV
			ev.OldValue = &v
		}
		if newOK {
			v := newV
			ev.NewValue = &v
		}
		events = append(events, ev)
	}

	return events
}

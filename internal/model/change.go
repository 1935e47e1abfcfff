package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// ChangeKind classifies one detected difference between two snapshots.
type ChangeKind string

const (
	ChangeNewIncorporation ChangeKind = "new_incorporation"
	ChangeDeregistration   ChangeKind = "deregistration"
	ChangeFieldUpdate      ChangeKind = "field_update"
)

// ChangeEvent is one detected difference between a baseline and a current
// snapshot for one CIN. Events are created only by the differ and are
// immutable once emitted.
//
// OldValue and NewValue are nil when the corresponding side is absent:
// both are nil-free only for a present->present field update; a
// new incorporation carries neither.
type ChangeEvent struct {
	CIN      string
	Kind     ChangeKind
	Field    Field // set only for field updates
	OldValue *Value
	NewValue *Value
	Date     time.Time

	// Denormalized from the current (or, for deregistrations, baseline)
	// record so downstream readers need no snapshot join.
	CompanyName string
	State       string
	Status      string
}

// jsonScalar renders a possibly-absent value as its natural JSON scalar,
// nil meaning absent. null round-trips, so "absent" survives serialization
// where an empty string would not.
func jsonScalar(v *Value) any {
	if v == nil {
		return nil
	}
	switch v.Type {
	case TypeNumber:
		return v.Num
	case TypeDate:
		return v.Date.Format("2006-01-02")
	default:
		return v.Str
	}
}

func scalarValue(f Field, raw any) (*Value, error) {
	if raw == nil {
		return nil, nil
	}
	t, ok := fieldTypes[f]
	if !ok {
		// New/removed events carry no field; values there are always null.
		return nil, eris.Errorf("change: unknown field %q", f)
	}
	switch t {
	case TypeNumber:
		n, ok := raw.(float64)
		if !ok {
			return nil, eris.Errorf("change: field %q: expected number, got %T", f, raw)
		}
		v := Number(n)
		return &v, nil
	case TypeDate:
		s, ok := raw.(string)
		if !ok {
			return nil, eris.Errorf("change: field %q: expected date string, got %T", f, raw)
		}
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, eris.Wrapf(err, "change: field %q: parse date", f)
		}
		v := Date(d)
		return &v, nil
	default:
		s, ok := raw.(string)
		if !ok {
			return nil, eris.Errorf("change: field %q: expected string, got %T", f, raw)
		}
		v := String(s)
		return &v, nil
	}
}

type changeEventJSON struct {
	CIN         string     `json:"cin"`
	Kind        ChangeKind `json:"change_type"`
	Field       Field      `json:"field_changed,omitempty"`
	OldValue    any        `json:"old_value"`
	NewValue    any        `json:"new_value"`
	Date        time.Time  `json:"date"`
	CompanyName string     `json:"company_name"`
	State       string     `json:"state"`
	Status      string     `json:"status"`
}

// MarshalJSON encodes old/new values as nullable scalars.
func (e ChangeEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(changeEventJSON{
		CIN:         e.CIN,
		Kind:        e.Kind,
		Field:       e.Field,
		OldValue:    jsonScalar(e.OldValue),
		NewValue:    jsonScalar(e.NewValue),
		Date:        e.Date,
		CompanyName: e.CompanyName,
		State:       e.State,
		Status:      e.Status,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON; value types are recovered
// from the canonical field declarations.
func (e *ChangeEvent) UnmarshalJSON(data []byte) error {
	var raw changeEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "change: unmarshal event")
	}
	ev := ChangeEvent{
		CIN:         raw.CIN,
		Kind:        raw.Kind,
		Field:       raw.Field,
		Date:        raw.Date,
		CompanyName: raw.CompanyName,
		State:       raw.State,
		Status:      raw.Status,
	}
	if raw.Field != "" {
		var err error
		if ev.OldValue, err = scalarValue(raw.Field, raw.OldValue); err != nil {
			return err
		}
		if ev.NewValue, err = scalarValue(raw.Field, raw.NewValue); err != nil {
			return err
		}
	}
	*e = ev
	return nil
}

// OldDisplay renders the old value for exports; "" when absent.
func (e ChangeEvent) OldDisplay() string {
	if e.OldValue == nil {
		return ""
	}
	return e.OldValue.Display()
}

// NewDisplay renders the new value for exports; "" when absent.
func (e ChangeEvent) NewDisplay() string {
	if e.NewValue == nil {
		return ""
	}
	return e.NewValue.Display()
}

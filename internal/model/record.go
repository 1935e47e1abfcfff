package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Field is a canonical attribute field name. The canonical field set is
// fixed: source columns that do not map onto one of these are dropped
// during normalization.
type Field string

const (
	FieldCompanyName       Field = "company_name"
	FieldState             Field = "state"
	FieldStateCode         Field = "state_code"
	FieldStatus            Field = "status"
	FieldCompanyClass      Field = "company_class"
	FieldCompanyCategory   Field = "company_category"
	FieldActivityCode      Field = "activity_code"
	FieldEmail             Field = "email"
	FieldRegisteredAddress Field = "registered_address"
	FieldAuthorizedCapital Field = "authorized_capital"
	FieldPaidupCapital     Field = "paidup_capital"
	FieldRegistrationDate  Field = "registration_date"
)

// FieldType is the declared scalar type of a canonical field.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeNumber FieldType = "number"
	TypeDate   FieldType = "date"
)

// fieldTypes declares the type of every canonical field. Fields absent
// from this map are not canonical.
var fieldTypes = map[Field]FieldType{
	FieldCompanyName:       TypeString,
	FieldState:             TypeString,
	FieldStateCode:         TypeString,
	FieldStatus:            TypeString,
	FieldCompanyClass:      TypeString,
	FieldCompanyCategory:   TypeString,
	FieldActivityCode:      TypeString,
	FieldEmail:             TypeString,
	FieldRegisteredAddress: TypeString,
	FieldAuthorizedCapital: TypeNumber,
	FieldPaidupCapital:     TypeNumber,
	FieldRegistrationDate:  TypeDate,
}

// Fields returns all canonical fields in ascending name order.
func Fields() []Field {
	fields := make([]Field, 0, len(fieldTypes))
	for f := range fieldTypes {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

// TypeOf returns the declared type of a canonical field.
// ok is false for unknown fields.
func TypeOf(f Field) (FieldType, bool) {
	t, ok := fieldTypes[f]
	return t, ok
}

// Value is one scalar attribute value: a string, a number, or a date.
// Absence is represented by the attribute key not being present in the
// record's attribute map, never by a zero Value.
type Value struct {
	Type FieldType
	Str  string
	Num  float64
	Date time.Time
}

// String returns a Value holding a string.
func String(s string) Value { return Value{Type: TypeString, Str: s} }

// Number returns a Value holding a number.
func Number(n float64) Value { return Value{Type: TypeNumber, Num: n} }

// Date returns a Value holding a date, truncated to day precision in UTC.
func Date(t time.Time) Value {
	y, m, d := t.UTC().Date()
	return Value{Type: TypeDate, Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Equal reports exact value equality. Values of different types are never
// equal. Numbers compare exactly, with no epsilon.
func (v Value) Equal(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case TypeString:
		return v.Str == other.Str
	case TypeNumber:
		return v.Num == other.Num
	case TypeDate:
		return v.Date.Equal(other.Date)
	}
	return false
}

// Display renders the value for logs and exports. Dates render as
// YYYY-MM-DD; numbers drop a trailing .0.
func (v Value) Display() string {
	switch v.Type {
	case TypeNumber:
		s := fmt.Sprintf("%f", v.Num)
		s = strings.TrimRight(s, "0")
		return strings.TrimSuffix(s, ".")
	case TypeDate:
		return v.Date.Format("2006-01-02")
	default:
		return v.Str
	}
}

// Attributes maps canonical field -> value. A missing key means the field
// is absent for this record.
type Attributes map[Field]Value

// MarshalJSON renders each value as its natural JSON scalar; dates render
// as YYYY-MM-DD strings. Field types are recovered on unmarshal from the
// canonical field declarations.
func (a Attributes) MarshalJSON() ([]byte, error) {
	out := make(map[Field]any, len(a))
	for f, v := range a {
		switch v.Type {
		case TypeNumber:
			out[f] = v.Num
		case TypeDate:
			out[f] = v.Date.Format("2006-01-02")
		default:
			out[f] = v.Str
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON. Unknown fields are rejected
// so a stored snapshot cannot silently drift from the canonical set.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	var raw map[Field]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "attributes: unmarshal")
	}
	out := make(Attributes, len(raw))
	for f, rv := range raw {
		t, ok := fieldTypes[f]
		if !ok {
			return eris.Errorf("attributes: unknown canonical field %q", f)
		}
		switch t {
		case TypeNumber:
			n, ok := rv.(float64)
			if !ok {
				return eris.Errorf("attributes: field %q: expected number, got %T", f, rv)
			}
			out[f] = Number(n)
		case TypeDate:
			s, ok := rv.(string)
			if !ok {
				return eris.Errorf("attributes: field %q: expected date string, got %T", f, rv)
			}
			d, err := time.Parse("2006-01-02", s)
			if err != nil {
				return eris.Wrapf(err, "attributes: field %q: parse date", f)
			}
			out[f] = Date(d)
		default:
			s, ok := rv.(string)
			if !ok {
				return eris.Errorf("attributes: field %q: expected string, got %T", f, rv)
			}
			out[f] = String(s)
		}
	}
	*a = out
	return nil
}

// Clone returns a copy of the attribute map.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for f, v := range a {
		out[f] = v
	}
	return out
}

// CanonicalRecord is one corporate entity at a point in time, keyed by its
// CIN (Corporate Identification Number).
type CanonicalRecord struct {
	CIN        string     `json:"cin"`
	Attributes Attributes `json:"attributes"`
	SourceTag  string     `json:"source_tag"`
}

// Attr returns the value of a canonical field and whether it is present.
func (r CanonicalRecord) Attr(f Field) (Value, bool) {
	v, ok := r.Attributes[f]
	return v, ok
}

// PresentFields returns how many canonical fields carry a value.
func (r CanonicalRecord) PresentFields() int {
	return len(r.Attributes)
}

// StrAttr returns the string value of a field, or "" when absent or not a
// string. Convenience for denormalized display columns.
func (r CanonicalRecord) StrAttr(f Field) string {
	v, ok := r.Attributes[f]
	if !ok || v.Type != TypeString {
		return ""
	}
	return v.Str
}

// Snapshot is an immutable mapping from CIN to CanonicalRecord at one
// logical point in time. Snapshots are produced once by the builder and
// never mutated; an updated view is a new Snapshot.
type Snapshot struct {
	Timestamp time.Time                  `json:"timestamp"`
	Records   map[string]CanonicalRecord `json:"records"`
}

// CINs returns the identifiers in the snapshot in ascending order.
func (s Snapshot) CINs() []string {
	ids := make([]string, 0, len(s.Records))
	for id := range s.Records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of records in the snapshot.
func (s Snapshot) Len() int { return len(s.Records) }

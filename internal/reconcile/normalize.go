package reconcile

import (
	"strconv"
	"strings"
	"time"

	"github.com/corpwatch/mca-insights/internal/model"
)

// dateLayouts are the formats registry files use for registration dates.
var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
}

// Normalize maps one raw row onto the canonical field set using the
// source's column mapping. For each canonical field the configured column
// candidates are tried in order; an empty (after trimming) or missing cell
// leaves the field absent. A cell that fails type coercion also leaves the
// field absent and yields a warning; it never fails the row.
func Normalize(row RawRow, mapping ColumnMapping, sourceTag string) (model.Attributes, []Warning) {
	attrs := make(model.Attributes)
	var warnings []Warning

	for field, columns := range mapping.Columns {
		fieldType, ok := model.TypeOf(field)
		if !ok {
			warnings = append(warnings, Warning{
				SourceTag: sourceTag,
				Field:     field,
				Reason:    "mapping targets unknown canonical field",
			})
			continue
		}

		column, raw, found := firstNonEmpty(row, columns)
		if !found {
			continue
		}

		value, err := coerce(raw, fieldType)
		if err != nil {
			warnings = append(warnings, Warning{
				SourceTag: sourceTag,
				Field:     field,
				Column:    column,
				Raw:       raw,
				Reason:    err.Error(),
			})
			continue
		}
		attrs[field] = value
	}

	return attrs, warnings
}

// Identifier extracts the canonical identifier from a raw row, trying the
// mapping's identifier columns in order. ok is false when every candidate
// cell is empty or missing.
func Identifier(row RawRow, mapping ColumnMapping) (string, bool) {
	_, raw, found := firstNonEmpty(row, mapping.IdentifierColumns)
	if !found {
		return "", false
	}
	return strings.ToUpper(raw), true
}

func firstNonEmpty(row RawRow, columns []string) (column, value string, found bool) {
	for _, c := range columns {
		if v, ok := row[c]; ok {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return c, trimmed, true
			}
		}
	}
	return "", "", false
}

type coercionError string

func (e coercionError) Error() string { return string(e) }

// coerce converts a trimmed non-empty cell to the field's declared type.
// Text fields are upper-cased so casing differences between sources do not
// register as field updates later.
func coerce(raw string, t model.FieldType) (model.Value, error) {
	switch t {
	case model.TypeNumber:
		n, err := strconv.ParseFloat(cleanNumeric(raw), 64)
		if err != nil {
			return model.Value{}, coercionError("not a number")
		}
		return model.Number(n), nil
	case model.TypeDate:
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, raw); err == nil {
				return model.Date(d), nil
			}
		}
		return model.Value{}, coercionError("unparseable date")
	default:
		return model.String(strings.ToUpper(raw)), nil
	}
}

// cleanNumeric strips grouping commas and currency markers that registry
// exports put on capital figures ("₹ 1,00,000", "Rs. 500000").
func cleanNumeric(raw string) string {
	s := strings.NewReplacer(",", "", "₹", "", "Rs.", "", "Rs", "", "INR", "").Replace(raw)
	return strings.TrimSpace(s)
}

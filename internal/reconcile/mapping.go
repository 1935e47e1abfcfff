// Package reconcile normalizes and deduplicates per-source registry record
// batches into one canonical snapshot.
package reconcile

import (
	"github.com/corpwatch/mca-insights/internal/model"
)

// RawRow is one record as read from a source file: source column name ->
// raw cell text. Values arrive untrimmed and untyped.
type RawRow map[string]string

// ColumnMapping declares how one source's column layout maps onto the
// canonical field set. Adding a source means adding a mapping, not code.
type ColumnMapping struct {
	// IdentifierColumns lists the source columns that may carry the CIN,
	// tried in order. A row with no non-empty identifier cell is dropped.
	IdentifierColumns []string `yaml:"identifier_columns"`

	// Columns maps each canonical field to its source column candidates,
	// tried in order. Canonical fields with no entry are absent for every
	// row of this source; source columns not listed here are ignored.
	Columns map[model.Field][]string `yaml:"columns"`
}

// SourceBatch is one source's raw rows plus the mapping that describes
// them. Tag identifies the origin for audit and precedence.
type SourceBatch struct {
	Tag     string
	Mapping ColumnMapping
	Rows    []RawRow
}

// Warning records a non-fatal data-quality issue encountered while
// building a snapshot. Warnings never abort a batch.
type Warning struct {
	SourceTag string      `json:"source_tag"`
	CIN       string      `json:"cin,omitempty"`
	Field     model.Field `json:"field,omitempty"`
	Column    string      `json:"column,omitempty"`
	Raw       string      `json:"raw,omitempty"`
	Reason    string      `json:"reason"`
}

package reconcile

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/corpwatch/mca-insights/internal/model"
)

// Options controls deduplication precedence and conflict handling.
type Options struct {
	// SourcePriority orders source tags from lowest to highest precedence:
	// a duplicate from a later-listed source beats one from an earlier
	// source. Tags not listed rank below every listed tag.
	SourcePriority []string

	// Strict makes a registration-date disagreement between duplicates a
	// fatal DuplicateIdentifierConflict instead of a warning.
	Strict bool

	// DateTolerance is how far apart two registration dates may be before
	// they count as disagreeing. Zero means exact match required.
	DateTolerance time.Duration
}

func (o Options) sourceRank(tag string) int {
	for i, t := range o.SourcePriority {
		if t == tag {
			return i
		}
	}
	return -1
}

// DuplicateIdentifierConflict reports duplicate records that disagree on
// an identity-defining field. Returned only in strict mode.
type DuplicateIdentifierConflict struct {
	CIN     string
	Field   model.Field
	A, B    model.Value
	SourceA string
	SourceB string
}

func (e *DuplicateIdentifierConflict) Error() string {
	return fmt.Sprintf("duplicate identifier conflict: %s: %s %q (%s) vs %q (%s)",
		e.CIN, e.Field, e.A.Display(), e.SourceA, e.B.Display(), e.SourceB)
}

// candidate is one normalized record competing for an identifier, tagged
// with its global input position for the final tie-break.
type candidate struct {
	record model.CanonicalRecord
	index  int
}

// Dedupe collapses all candidates sharing one identifier into exactly one
// record. Precedence: highest source rank, then fewest absent canonical
// fields, then last in input order. The winner's attributes are taken
// wholesale; absent fields are never back-filled from losers, so two
// conflicting sources are never silently blended.
func Dedupe(cin string, group []candidate, opts Options) (model.CanonicalRecord, []Warning, error) {
	warnings, err := checkIdentityConflict(cin, group, opts)
	if err != nil {
		return model.CanonicalRecord{}, nil, err
	}

	winner := group[0]
	for _, c := range group[1:] {
		if !worse(c, winner, opts) {
			winner = c
		}
	}

	if len(group) > 1 {
		zap.L().Debug("collapsed duplicate records",
			zap.String("cin", cin),
			zap.Int("candidates", len(group)),
			zap.String("winning_source", winner.record.SourceTag),
		)
	}

	return winner.record, warnings, nil
}

// worse reports whether a ranks strictly below b. Equal rank and equal
// field count is not worse, which makes the sweep last-write-wins.
func worse(a, b candidate, opts Options) bool {
	ra, rb := opts.sourceRank(a.record.SourceTag), opts.sourceRank(b.record.SourceTag)
	if ra != rb {
		return ra < rb
	}
	return a.record.PresentFields() < b.record.PresentFields()
}

// checkIdentityConflict scans the group for registration-date disagreement
// beyond the configured tolerance.
func checkIdentityConflict(cin string, group []candidate, opts Options) ([]Warning, error) {
	var warnings []Warning
	for i := 0; i < len(group); i++ {
		a, aOK := group[i].record.Attr(model.FieldRegistrationDate)
		if !aOK {
			continue
		}
		for j := i + 1; j < len(group); j++ {
			b, bOK := group[j].record.Attr(model.FieldRegistrationDate)
			if !bOK {
				continue
			}
			delta := a.Date.Sub(b.Date)
			if delta < 0 {
				delta = -delta
			}
			if delta <= opts.DateTolerance {
				continue
			}
			if opts.Strict {
				return nil, &DuplicateIdentifierConflict{
					CIN:     cin,
					Field:   model.FieldRegistrationDate,
					A:       a,
					B:       b,
					SourceA: group[i].record.SourceTag,
					SourceB: group[j].record.SourceTag,
				}
			}
			warnings = append(warnings, Warning{
				SourceTag: group[j].record.SourceTag,
				CIN:       cin,
				Field:     model.FieldRegistrationDate,
				Reason: fmt.Sprintf("registration date disagrees across duplicates: %s vs %s",
					a.Display(), b.Display()),
			})
		}
	}
	return warnings, nil
}

package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpwatch/mca-insights/internal/model"
)

var buildDate = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func stateBatch(tag string, rows ...RawRow) SourceBatch {
	return SourceBatch{Tag: tag, Mapping: maharashtraMapping(), Rows: rows}
}

func TestBuildSnapshot_EmptyBatchFails(t *testing.T) {
	b := NewBuilder(Options{}, 1)

	_, _, err := b.BuildSnapshot(context.Background(), nil, buildDate)
	require.ErrorIs(t, err, ErrEmptyBatch)

	_, _, err = b.BuildSnapshot(context.Background(), []SourceBatch{stateBatch("maharashtra")}, buildDate)
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestBuildSnapshot_UniqueIdentifiers(t *testing.T) {
	b := NewBuilder(Options{SourcePriority: []string{"maharashtra", "gujarat"}}, 2)

	batches := []SourceBatch{
		stateBatch("maharashtra",
			RawRow{"CIN": "ID1", "CompanyName": "ONE", "CompanyStatus": "Active"},
			RawRow{"CIN": "ID2", "CompanyName": "TWO"},
			RawRow{"CIN": "ID1", "CompanyName": "ONE DUP"},
		),
		stateBatch("gujarat",
			RawRow{"CIN": "ID1", "CompanyName": "ONE GJ"},
			RawRow{"CIN": "ID3", "CompanyName": "THREE"},
		),
	}

	snap, summary, err := b.BuildSnapshot(context.Background(), batches, buildDate)
	require.NoError(t, err)

	assert.Equal(t, []string{"ID1", "ID2", "ID3"}, snap.CINs())
	assert.Equal(t, 5, summary.RecordsIn)
	assert.Equal(t, 2, summary.DuplicatesCollapsed)
	assert.Equal(t, buildDate, snap.Timestamp)

	// gujarat is listed later, so it outranks maharashtra for ID1.
	assert.Equal(t, "gujarat", snap.Records["ID1"].SourceTag)
}

func TestBuildSnapshot_RowsWithoutIdentifierDroppedAndCounted(t *testing.T) {
	b := NewBuilder(Options{}, 1)

	batches := []SourceBatch{stateBatch("maharashtra",
		RawRow{"CompanyName": "NO ID LTD"},
		RawRow{"CIN": "  ", "CompanyName": "BLANK ID LTD"},
		RawRow{"CIN": "ID1", "CompanyName": "KEPT"},
	)}

	snap, summary, err := b.BuildSnapshot(context.Background(), batches, buildDate)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, 2, summary.MissingIdentifier)
	_, present := snap.Records[""]
	assert.False(t, present, "no record may appear under an empty key")
}

func TestBuildSnapshot_Idempotent(t *testing.T) {
	batches := []SourceBatch{
		stateBatch("maharashtra",
			RawRow{"CIN": "ID1", "CompanyName": "Acme", "AuthorizedCapital": "100000"},
			RawRow{"CIN": "ID2", "CompanyName": "Beta", "CompanyStatus": "Active"},
			RawRow{"CIN": "ID1", "CompanyName": "Acme Again"},
		),
	}

	first, _, err := NewBuilder(Options{}, 4).BuildSnapshot(context.Background(), batches, buildDate)
	require.NoError(t, err)
	second, _, err := NewBuilder(Options{}, 1).BuildSnapshot(context.Background(), batches, buildDate)
	require.NoError(t, err)

	require.Equal(t, first.CINs(), second.CINs())
	for _, cin := range first.CINs() {
		a, b := first.Records[cin], second.Records[cin]
		assert.Equal(t, a.SourceTag, b.SourceTag, cin)
		require.Len(t, b.Attributes, len(a.Attributes), cin)
		for f, v := range a.Attributes {
			assert.True(t, b.Attributes[f].Equal(v), "%s/%s", cin, f)
		}
	}
}

func TestBuildSnapshot_WarningsBubbleUpWithoutAborting(t *testing.T) {
	b := NewBuilder(Options{}, 1)

	batches := []SourceBatch{stateBatch("maharashtra",
		RawRow{"CIN": "ID1", "AuthorizedCapital": "not a number"},
		RawRow{"CIN": "ID2", "CompanyName": "FINE"},
	)}

	snap, summary, err := b.BuildSnapshot(context.Background(), batches, buildDate)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())
	require.Len(t, summary.Warnings, 1)
	assert.Equal(t, "ID1", summary.Warnings[0].CIN)
	assert.Equal(t, model.FieldAuthorizedCapital, summary.Warnings[0].Field)
}

func TestBuildSnapshot_StrictConflictAborts(t *testing.T) {
	b := NewBuilder(Options{Strict: true}, 1)

	batches := []SourceBatch{stateBatch("maharashtra",
		RawRow{"CIN": "ID1", "CompanyRegistrationdate_date": "2010-01-01"},
		RawRow{"CIN": "ID1", "CompanyRegistrationdate_date": "2015-01-01"},
	)}

	_, _, err := b.BuildSnapshot(context.Background(), batches, buildDate)
	var conflict *DuplicateIdentifierConflict
	require.ErrorAs(t, err, &conflict)
}

func TestChunk(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}

	chunks := chunk(ids, 2)
	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"a", "b", "c"}, chunks[0])
	assert.Equal(t, []string{"d", "e"}, chunks[1])

	assert.Len(t, chunk(ids, 10), 5)
	assert.Len(t, chunk(ids, 0), 1)
}

package reconcile

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/corpwatch/mca-insights/internal/model"
)

// ErrEmptyBatch is returned when the combined input holds zero raw rows.
// An empty build is a caller bug, not bad data.
var ErrEmptyBatch = eris.New("reconcile: empty batch")

// BuildSummary reports counters for one snapshot build.
type BuildSummary struct {
	RecordsIn           int       `json:"records_in"`
	MissingIdentifier   int       `json:"missing_identifier"`
	DuplicatesCollapsed int       `json:"duplicates_collapsed"`
	Warnings            []Warning `json:"warnings,omitempty"`
}

// Builder composes the normalizer and deduplicator over ordered source
// batches to produce canonical snapshots.
type Builder struct {
	opts    Options
	workers int
}

// NewBuilder creates a Builder. workers bounds the parallel normalization
// of identifier groups; values below 1 mean sequential.
func NewBuilder(opts Options, workers int) *Builder {
	if workers < 1 {
		workers = 1
	}
	return &Builder{opts: opts, workers: workers}
}

// rawCandidate is one not-yet-normalized row with its source tag and
// global input position.
type rawCandidate struct {
	row     RawRow
	tag     string
	mapping ColumnMapping
	index   int
}

// groupResult is the dedup outcome for one contiguous chunk of
// identifiers.
type groupResult struct {
	records  []model.CanonicalRecord
	warnings []Warning
}

// BuildSnapshot groups every raw row across all batches by identifier,
// normalizes each group, deduplicates it, and returns the resulting
// snapshot stamped with asOf. Rows without an identifier are dropped and
// counted. The output is independent of worker count and map iteration
// order.
func (b *Builder) BuildSnapshot(ctx context.Context, batches []SourceBatch, asOf time.Time) (model.Snapshot, BuildSummary, error) {
	summary := BuildSummary{}

	groups := make(map[string][]rawCandidate)
	index := 0
	for _, batch := range batches {
		for _, row := range batch.Rows {
			summary.RecordsIn++
			cin, ok := Identifier(row, batch.Mapping)
			if !ok {
				summary.MissingIdentifier++
				index++
				continue
			}
			groups[cin] = append(groups[cin], rawCandidate{row: row, tag: batch.Tag, mapping: batch.Mapping, index: index})
			index++
		}
	}

	if summary.RecordsIn == 0 {
		return model.Snapshot{}, summary, ErrEmptyBatch
	}

	cins := make([]string, 0, len(groups))
	for cin := range groups {
		cins = append(cins, cin)
	}
	sort.Strings(cins)

	chunks := chunk(cins, b.workers)
	results := make([]groupResult, len(chunks))

	eg, _ := errgroup.WithContext(ctx)
	for i, ids := range chunks {
		eg.Go(func() error {
			res, err := b.processChunk(ids, groups)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return model.Snapshot{}, summary, err
	}

	records := make(map[string]model.CanonicalRecord, len(groups))
	for _, res := range results {
		for _, rec := range res.records {
			records[rec.CIN] = rec
		}
		summary.Warnings = append(summary.Warnings, res.warnings...)
	}

	summary.DuplicatesCollapsed = (summary.RecordsIn - summary.MissingIdentifier) - len(records)

	zap.L().Info("built canonical snapshot",
		zap.Time("as_of", asOf),
		zap.Int("records_in", summary.RecordsIn),
		zap.Int("records_out", len(records)),
		zap.Int("duplicates_collapsed", summary.DuplicatesCollapsed),
		zap.Int("missing_identifier", summary.MissingIdentifier),
		zap.Int("warnings", len(summary.Warnings)),
	)

	return model.Snapshot{Timestamp: asOf, Records: records}, summary, nil
}

// processChunk normalizes and dedupes a contiguous run of identifier
// groups. Each group depends only on its own rows, so chunks are
// independent.
func (b *Builder) processChunk(cins []string, groups map[string][]rawCandidate) (groupResult, error) {
	var res groupResult

	for _, cin := range cins {
		raws := groups[cin]
		candidates := make([]candidate, 0, len(raws))
		for _, rc := range raws {
			attrs, warns := Normalize(rc.row, rc.mapping, rc.tag)
			for i := range warns {
				warns[i].CIN = cin
			}
			res.warnings = append(res.warnings, warns...)
			candidates = append(candidates, candidate{
				record: model.CanonicalRecord{CIN: cin, Attributes: attrs, SourceTag: rc.tag},
				index:  rc.index,
			})
		}

		winner, warns, err := Dedupe(cin, candidates, b.opts)
		if err != nil {
			return groupResult{}, err
		}
		res.warnings = append(res.warnings, warns...)
		res.records = append(res.records, winner)
	}
	return res, nil
}

// chunk splits ids into at most n contiguous runs of near-equal size.
func chunk(ids []string, n int) [][]string {
	if n > len(ids) {
		n = len(ids)
	}
	if n < 1 {
		n = 1
	}
	out := make([][]string, 0, n)
	size := (len(ids) + n - 1) / n
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

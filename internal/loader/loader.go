package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/corpwatch/mca-insights/internal/fetcher"
	"github.com/corpwatch/mca-insights/internal/reconcile"
)

// Loader turns configured registry sources into raw record batches, in
// priority order, ready for the snapshot builder.
type Loader struct {
	sources *Sources
	dataDir string
	fetch   fetcher.Fetcher // nil means local files only
}

// New creates a Loader. fetch may be nil to disable remote download; then
// every source file must already exist under dataDir.
func New(sources *Sources, dataDir string, fetch fetcher.Fetcher) *Loader {
	return &Loader{sources: sources, dataDir: dataDir, fetch: fetch}
}

// Batches reads every configured source and returns one SourceBatch per
// source in priority order. A missing source file is skipped with a
// warning, matching how a registry drop that failed to publish should not
// block the others. Parse errors on a present file are fatal.
func (l *Loader) Batches(ctx context.Context) ([]reconcile.SourceBatch, error) {
	var batches []reconcile.SourceBatch

	for _, tag := range l.sources.Priority {
		spec := l.sources.Sources[tag]
		path := filepath.Join(l.dataDir, spec.File)

		if l.fetch != nil && spec.URL != "" {
			zap.L().Info("fetching source file",
				zap.String("source", tag),
				zap.String("url", spec.URL),
			)
			if _, err := l.fetch.DownloadToFile(ctx, spec.URL, path); err != nil {
				return nil, eris.Wrapf(err, "loader: fetch source %s", tag)
			}
		}

		rows, err := l.readFile(spec, path)
		if err != nil {
			if os.IsNotExist(eris.Cause(err)) {
				zap.L().Warn("source file not found, skipping",
					zap.String("source", tag),
					zap.String("path", path),
				)
				continue
			}
			return nil, err
		}

		zap.L().Info("loaded source batch",
			zap.String("source", tag),
			zap.Int("rows", len(rows)),
		)
		batches = append(batches, reconcile.SourceBatch{
			Tag:     tag,
			Mapping: spec.Mapping,
			Rows:    rows,
		})
	}

	return batches, nil
}

func (l *Loader) readFile(spec SourceSpec, path string) ([]reconcile.RawRow, error) {
	switch strings.ToLower(spec.Format) {
	case "", "csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: open %s", path)
		}
		defer f.Close()
		return ReadCSV(f, spec.Encoding)
	case "xlsx":
		if _, err := os.Stat(path); err != nil {
			return nil, eris.Wrapf(err, "loader: stat %s", path)
		}
		return ReadXLSX(path, spec.Sheet)
	default:
		return nil, eris.Errorf("loader: unsupported format %q", spec.Format)
	}
}

// DedupeOptions derives deduplication options from the configured source
// priority order.
func (s *Sources) DedupeOptions(strict bool) reconcile.Options {
	return reconcile.Options{SourcePriority: s.Priority, Strict: strict}
}

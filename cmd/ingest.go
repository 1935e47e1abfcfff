package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/corpwatch/mca-insights/internal/fetcher"
	"github.com/corpwatch/mca-insights/internal/loader"
	"github.com/corpwatch/mca-insights/internal/reconcile"
)

var (
	ingestFetch   bool
	ingestStrict  bool
	ingestAsOf    string
	ingestWorkers int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Reconcile raw registry batches into a new snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		asOf := time.Now().UTC()
		if ingestAsOf != "" {
			t, err := time.Parse("2006-01-02", ingestAsOf)
			if err != nil {
				return eris.Wrapf(err, "parse --as-of %q", ingestAsOf)
			}
			asOf = t
		}

		st, err := openStore(ctx, "ingest")
		if err != nil {
			return err
		}
		defer st.Close()

		sources, err := loader.LoadSources(cfg.Ingest.SourcesFile)
		if err != nil {
			return eris.Wrap(err, "load sources")
		}

		var fetch fetcher.Fetcher
		if ingestFetch {
			fetch = fetcher.NewAuto(
				fetcher.HTTPOptions{
					UserAgent:         cfg.Fetch.UserAgent,
					Timeout:           time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
					MaxRetries:        cfg.Fetch.MaxRetries,
					RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
				},
				fetcher.FTPOptions{
					Timeout:  time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
					User:     cfg.Fetch.FTPUser,
					Password: cfg.Fetch.FTPPassword,
				},
			)
		}

		batches, err := loader.New(sources, cfg.Ingest.DataDir, fetch).Batches(ctx)
		if err != nil {
			return eris.Wrap(err, "load batches")
		}

		strict := ingestStrict || cfg.Ingest.Strict
		opts := sources.DedupeOptions(strict)
		opts.DateTolerance = time.Duration(cfg.Ingest.DateTolerance) * 24 * time.Hour

		workers := ingestWorkers
		if workers == 0 {
			workers = cfg.Ingest.Workers
		}

		snap, summary, err := reconcile.NewBuilder(opts, workers).BuildSnapshot(ctx, batches, asOf)
		if err != nil {
			return eris.Wrap(err, "build snapshot")
		}

		id, err := st.SaveSnapshot(ctx, snap, summary)
		if err != nil {
			return eris.Wrap(err, "save snapshot")
		}

		zap.L().Info("snapshot saved",
			zap.String("snapshot_id", id),
			zap.Time("as_of", asOf),
			zap.Int("records", snap.Len()),
			zap.Int("records_in", summary.RecordsIn),
			zap.Int("missing_identifier", summary.MissingIdentifier),
			zap.Int("duplicates_collapsed", summary.DuplicatesCollapsed),
			zap.Int("warnings", len(summary.Warnings)),
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestFetch, "fetch", false, "download source files before loading")
	ingestCmd.Flags().BoolVar(&ingestStrict, "strict", false, "abort on registration-date conflicts between duplicates")
	ingestCmd.Flags().StringVar(&ingestAsOf, "as-of", "", "snapshot date (YYYY-MM-DD, default today)")
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 0, "parallel normalization workers (default from config)")
	rootCmd.AddCommand(ingestCmd)
}

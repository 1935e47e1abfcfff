package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/corpwatch/mca-insights/internal/diff"
	"github.com/corpwatch/mca-insights/internal/model"
	"github.com/corpwatch/mca-insights/internal/store"
)

// snapshotReader is the slice of store.Store the diff command reads.
type snapshotReader interface {
	SnapshotAt(ctx context.Context, takenAt time.Time) (*model.Snapshot, error)
	ListSnapshots(ctx context.Context) ([]store.SnapshotMeta, error)
}

var (
	diffBaseline string
	diffCurrent  string
	diffDryRun   bool
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Detect changes between two stored snapshots",
	Long:  "Compares the baseline snapshot against the current one and appends new incorporations, deregistrations, and field updates to the change log. Without flags the two most recent snapshots are compared.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "diff")
		if err != nil {
			return err
		}
		defer st.Close()

		baseline, current, err := resolveSnapshots(cmd, st)
		if err != nil {
			return err
		}

		events, err := diff.DetectChanges(*baseline, *current)
		if err != nil {
			return eris.Wrap(err, "detect changes")
		}

		if diffDryRun {
			zap.L().Info("dry run, change log untouched", zap.Int("events", len(events)))
			return nil
		}

		n, err := st.AppendChanges(ctx, events)
		if err != nil {
			return eris.Wrap(err, "append changes")
		}

		zap.L().Info("change log appended",
			zap.Time("baseline", baseline.Timestamp),
			zap.Time("current", current.Timestamp),
			zap.Int("events", n),
		)
		return nil
	},
}

func init() {
	diffCmd.Flags().StringVar(&diffBaseline, "baseline", "", "baseline snapshot date (YYYY-MM-DD)")
	diffCmd.Flags().StringVar(&diffCurrent, "current", "", "current snapshot date (YYYY-MM-DD)")
	diffCmd.Flags().BoolVar(&diffDryRun, "dry-run", false, "detect but do not persist changes")
	rootCmd.AddCommand(diffCmd)
}

func resolveSnapshots(cmd *cobra.Command, st snapshotReader) (baseline, current *model.Snapshot, err error) {
	ctx := cmd.Context()

	if diffBaseline != "" && diffCurrent != "" {
		baseline, err = snapshotByDate(ctx, st, diffBaseline)
		if err != nil {
			return nil, nil, err
		}
		current, err = snapshotByDate(ctx, st, diffCurrent)
		if err != nil {
			return nil, nil, err
		}
		return baseline, current, nil
	}
	if diffBaseline != "" || diffCurrent != "" {
		return nil, nil, eris.New("--baseline and --current must be given together")
	}

	// Default: the two most recent snapshots.
	metas, err := st.ListSnapshots(ctx)
	if err != nil {
		return nil, nil, eris.Wrap(err, "list snapshots")
	}
	if len(metas) < 2 {
		return nil, nil, eris.Errorf("need at least 2 snapshots to diff, have %d", len(metas))
	}
	baseline, err = st.SnapshotAt(ctx, metas[len(metas)-2].TakenAt)
	if err != nil {
		return nil, nil, eris.Wrap(err, "load baseline snapshot")
	}
	current, err = st.SnapshotAt(ctx, metas[len(metas)-1].TakenAt)
	if err != nil {
		return nil, nil, eris.Wrap(err, "load current snapshot")
	}
	return baseline, current, nil
}

func snapshotByDate(ctx context.Context, st snapshotReader, date string) (*model.Snapshot, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, eris.Wrapf(err, "parse snapshot date %q", date)
	}
	snap, err := st.SnapshotAt(ctx, t)
	if err != nil {
		return nil, eris.Wrapf(err, "load snapshot %s", date)
	}
	return snap, nil
}

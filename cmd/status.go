package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/corpwatch/mca-insights/internal/store"
	"github.com/corpwatch/mca-insights/internal/summary"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print snapshot and change-log totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "diff")
		if err != nil {
			return err
		}
		defer st.Close()

		p := message.NewPrinter(language.English)

		metas, err := st.ListSnapshots(ctx)
		if err != nil {
			return eris.Wrap(err, "list snapshots")
		}
		if len(metas) == 0 {
			p.Fprintln(os.Stdout, "No snapshots stored. Run ingest first.")
			return nil
		}

		p.Fprintf(os.Stdout, "Snapshots: %d (latest %s, %d records)\n",
			len(metas),
			metas[len(metas)-1].TakenAt.Format("2006-01-02"),
			metas[len(metas)-1].Records,
		)

		snap, err := st.LatestSnapshot(ctx)
		if err != nil {
			return eris.Wrap(err, "load latest snapshot")
		}
		s := summary.Summarize(*snap)

		p.Fprintf(os.Stdout, "Companies: %d\n", s.TotalRecords)
		for _, c := range s.ByStatus {
			p.Fprintf(os.Stdout, "  %-24s %d\n", c.Label, c.Count)
		}
		if s.MissingStatus > 0 {
			p.Fprintf(os.Stdout, "  %-24s %d\n", "(no status)", s.MissingStatus)
		}
		if s.EarliestRegn != nil && s.LatestRegn != nil {
			p.Fprintf(os.Stdout, "Registrations: %s to %s\n",
				s.EarliestRegn.Format("2006-01-02"), s.LatestRegn.Format("2006-01-02"))
		}

		events, err := st.ListChanges(ctx, store.ChangeFilter{})
		if err != nil {
			return eris.Wrap(err, "list changes")
		}
		cs := summary.SummarizeChanges(events)
		p.Fprintf(os.Stdout, "Changes: %d (%d new, %d deregistered, %d field updates)\n",
			cs.Total, cs.NewIncorporation, cs.Deregistration, cs.FieldUpdate)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

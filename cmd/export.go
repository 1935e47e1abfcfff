package main

import (
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/corpwatch/mca-insights/internal/export"
	"github.com/corpwatch/mca-insights/internal/model"
	"github.com/corpwatch/mca-insights/internal/store"
)

var (
	exportFormat string
	exportOut    string
	exportCIN    string
	exportKind   string
	exportState  string
	exportSince  string
	exportUntil  string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the change log as CSV or JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "diff")
		if err != nil {
			return err
		}
		defer st.Close()

		filter, err := changeFilterFromFlags()
		if err != nil {
			return err
		}

		events, err := st.ListChanges(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list changes")
		}

		var w io.Writer = os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", exportOut)
			}
			defer f.Close()
			w = f
		}

		switch exportFormat {
		case "csv":
			err = export.WriteCSV(w, events)
		case "json":
			err = export.WriteJSON(w, events)
		default:
			return eris.Errorf("unsupported format: %s", exportFormat)
		}
		if err != nil {
			return err
		}

		if exportOut != "" {
			zap.L().Info("change log exported",
				zap.String("path", exportOut),
				zap.String("format", exportFormat),
				zap.Int("events", len(events)),
			)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format: csv or json")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&exportCIN, "cin", "", "filter by company identifier")
	exportCmd.Flags().StringVar(&exportKind, "kind", "", "filter by change kind (new_incorporation, deregistration, field_update)")
	exportCmd.Flags().StringVar(&exportState, "state", "", "filter by state")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "changes on or after this date (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportUntil, "until", "", "changes on or before this date (YYYY-MM-DD)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "maximum events (0 for all)")
	rootCmd.AddCommand(exportCmd)
}

func changeFilterFromFlags() (store.ChangeFilter, error) {
	filter := store.ChangeFilter{
		CIN:   exportCIN,
		Kind:  model.ChangeKind(exportKind),
		State: exportState,
		Limit: exportLimit,
	}
	if exportSince != "" {
		t, err := time.Parse("2006-01-02", exportSince)
		if err != nil {
			return filter, eris.Wrapf(err, "parse --since %q", exportSince)
		}
		filter.Since = t
	}
	if exportUntil != "" {
		t, err := time.Parse("2006-01-02", exportUntil)
		if err != nil {
			return filter, eris.Wrapf(err, "parse --until %q", exportUntil)
		}
		filter.Until = t
	}
	return filter, nil
}

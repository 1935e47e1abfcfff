package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/corpwatch/mca-insights/internal/store"
	"github.com/corpwatch/mca-insights/internal/summary"
	"github.com/corpwatch/mca-insights/pkg/anthropic"
)

var (
	summarizeSince string
	summarizeUntil string
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Write a natural-language digest of recent registry changes",
	Long:  "Builds a briefing from the change log for the given window. With MCA_ANTHROPIC_KEY set the digest is model-written; without it a deterministic template is used.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "summarize")
		if err != nil {
			return err
		}
		defer st.Close()

		filter := store.ChangeFilter{}
		window := "all changes"
		if summarizeSince != "" {
			t, err := time.Parse("2006-01-02", summarizeSince)
			if err != nil {
				return eris.Wrapf(err, "parse --since %q", summarizeSince)
			}
			filter.Since = t
			window = "since " + summarizeSince
		}
		if summarizeUntil != "" {
			t, err := time.Parse("2006-01-02", summarizeUntil)
			if err != nil {
				return eris.Wrapf(err, "parse --until %q", summarizeUntil)
			}
			filter.Until = t
			if summarizeSince != "" {
				window = summarizeSince + " to " + summarizeUntil
			} else {
				window = "until " + summarizeUntil
			}
		}

		events, err := st.ListChanges(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list changes")
		}

		var client anthropic.Client
		if cfg.Anthropic.Key != "" {
			client = anthropic.NewClient(cfg.Anthropic.Key)
		}

		digest, err := summary.NewGenerator(client, cfg.Anthropic.Model).Digest(ctx, window, events)
		if err != nil {
			return err
		}

		fmt.Println(digest)
		return nil
	},
}

func init() {
	summarizeCmd.Flags().StringVar(&summarizeSince, "since", "", "window start (YYYY-MM-DD)")
	summarizeCmd.Flags().StringVar(&summarizeUntil, "until", "", "window end (YYYY-MM-DD)")
	rootCmd.AddCommand(summarizeCmd)
}

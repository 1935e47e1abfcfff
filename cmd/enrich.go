package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/corpwatch/mca-insights/internal/enrich"
	"github.com/corpwatch/mca-insights/internal/fetcher"
	"github.com/corpwatch/mca-insights/internal/store"
)

var (
	enrichCIN   string
	enrichState string
	enrichLimit int
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Look up supplementary company attributes from configured portals",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if len(cfg.Enrich.Portals) == 0 {
			return eris.New("no enrichment portals configured")
		}

		st, err := openStore(ctx, "diff")
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.ListCompanies(ctx, store.CompanyFilter{
			CIN:   enrichCIN,
			State: enrichState,
			Limit: enrichLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list companies")
		}
		if len(records) == 0 {
			return eris.New("no companies match the filter")
		}

		fetch := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:         cfg.Fetch.UserAgent,
			Timeout:           time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries:        cfg.Fetch.MaxRetries,
			RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		})

		providers := make([]enrich.Provider, 0, len(cfg.Enrich.Portals))
		for _, p := range cfg.Enrich.Portals {
			providers = append(providers, enrich.NewHTTPProvider(p.Name, p.BaseURL, fetch))
		}

		cins := make([]string, 0, len(records))
		for _, rec := range records {
			cins = append(cins, rec.CIN)
		}

		profiles, err := enrich.NewEnricher(providers, cfg.Enrich.Workers).Enrich(ctx, cins)
		if err != nil {
			return eris.Wrap(err, "enrich companies")
		}

		ordered := make([]enrich.Profile, 0, len(profiles))
		for _, cin := range enrich.SortedCINs(profiles) {
			ordered = append(ordered, profiles[cin])
		}

		saved, err := st.SaveProfiles(ctx, ordered)
		if err != nil {
			return eris.Wrap(err, "save profiles")
		}

		zap.L().Info("profiles resolved",
			zap.Int("companies", len(cins)),
			zap.Int("profiles", len(profiles)),
			zap.Int("saved", saved),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ordered)
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichCIN, "cin", "", "enrich a single company")
	enrichCmd.Flags().StringVar(&enrichState, "state", "", "enrich companies in one state")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 100, "maximum companies to enrich")
	rootCmd.AddCommand(enrichCmd)
}

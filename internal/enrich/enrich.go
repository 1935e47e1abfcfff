// Package enrich looks up supplementary company attributes from external
// portals. Enrichment results live alongside the canonical record and are
// never fed through change detection.
package enrich

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/corpwatch/mca-insights/internal/fetcher"
)

// Profile holds the non-diffing attributes a provider knows about a
// company.
type Profile struct {
	CIN       string    `json:"cin"`
	Directors []string  `json:"directors,omitempty"`
	Sector    string    `json:"sector,omitempty"`
	Website   string    `json:"website,omitempty"`
	Email     string    `json:"email,omitempty"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

// merge fills p's empty fields from other. Earlier providers win.
func (p *Profile) merge(other Profile) {
	if len(p.Directors) == 0 {
		p.Directors = other.Directors
	}
	if p.Sector == "" {
		p.Sector = other.Sector
	}
	if p.Website == "" {
		p.Website = other.Website
	}
	if p.Email == "" {
		p.Email = other.Email
	}
	if p.Source == "" {
		p.Source = other.Source
	} else if other.Source != "" && !strings.Contains(p.Source, other.Source) {
		p.Source += "," + other.Source
	}
}

func (p Profile) empty() bool {
	return len(p.Directors) == 0 && p.Sector == "" && p.Website == "" && p.Email == ""
}

// Provider resolves a CIN to a profile. ErrNoProfile means the provider
// has nothing for this company; any other error is a transport failure.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, cin string) (Profile, error)
}

// ErrNoProfile is returned by providers that have no data for a CIN.
var ErrNoProfile = eris.New("enrich: no profile for identifier")

// HTTPProvider queries a JSON portal endpoint of the form
// <base>/<cin>. The response body must decode into Profile.
type HTTPProvider struct {
	name    string
	baseURL string
	fetch   fetcher.Fetcher
}

// NewHTTPProvider builds a portal provider on top of a shared fetcher so
// all portals respect one rate limit and retry policy.
func NewHTTPProvider(name, baseURL string, fetch fetcher.Fetcher) *HTTPProvider {
	return &HTTPProvider{name: name, baseURL: strings.TrimRight(baseURL, "/"), fetch: fetch}
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) Lookup(ctx context.Context, cin string) (Profile, error) {
	body, err := p.fetch.Download(ctx, p.baseURL+"/"+cin)
	if err != nil {
		return Profile{}, eris.Wrapf(err, "enrich: %s lookup %s", p.name, cin)
	}
	defer body.Close()

	var prof Profile
	if err := json.NewDecoder(body).Decode(&prof); err != nil {
		if err == io.EOF {
			return Profile{}, ErrNoProfile
		}
		return Profile{}, eris.Wrapf(err, "enrich: %s decode %s", p.name, cin)
	}
	if prof.empty() {
		return Profile{}, ErrNoProfile
	}
	prof.CIN = cin
	prof.Source = p.name
	prof.FetchedAt = time.Now().UTC()
	return prof, nil
}

// Enricher fans company lookups out over its providers with bounded
// concurrency. Provider order sets field precedence when several portals
// know the same company.
type Enricher struct {
	providers []Provider
	workers   int
}

// NewEnricher builds an enricher; workers < 1 defaults to 4.
func NewEnricher(providers []Provider, workers int) *Enricher {
	if workers < 1 {
		workers = 4
	}
	return &Enricher{providers: providers, workers: workers}
}

// Enrich resolves profiles for the given CINs. Companies no provider
// knows are omitted from the result. Transport failures are logged and
// treated as misses; only context cancellation aborts the run.
func (e *Enricher) Enrich(ctx context.Context, cins []string) (map[string]Profile, error) {
	out := make(map[string]Profile, len(cins))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, cin := range cins {
		g.Go(func() error {
			prof, ok := e.lookup(ctx, cin)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !ok {
				return nil
			}
			mu.Lock()
			out[cin] = prof
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "enrich: lookups aborted")
	}

	zap.L().Info("enrichment complete",
		zap.Int("requested", len(cins)),
		zap.Int("resolved", len(out)))
	return out, nil
}

// lookup tries every provider in order, merging partial answers.
func (e *Enricher) lookup(ctx context.Context, cin string) (Profile, bool) {
	var merged Profile
	found := false
	for _, p := range e.providers {
		prof, err := p.Lookup(ctx, cin)
		if err != nil {
			if !eris.Is(err, ErrNoProfile) && ctx.Err() == nil {
				zap.L().Warn("enrichment provider failed",
					zap.String("provider", p.Name()),
					zap.String("cin", cin),
					zap.Error(err))
			}
			continue
		}
		merged.merge(prof)
		found = true
	}
	if !found {
		return Profile{}, false
	}
	merged.CIN = cin
	if merged.FetchedAt.IsZero() {
		merged.FetchedAt = time.Now().UTC()
	}
	return merged, true
}

// SortedCINs returns map keys in ascending order, for stable output.
func SortedCINs(profiles map[string]Profile) []string {
	cins := make([]string, 0, len(profiles))
	for cin := range profiles {
		cins = append(cins, cin)
	}
	sort.Strings(cins)
	return cins
}

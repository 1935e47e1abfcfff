// Package store persists canonical snapshots and the change log.
package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/corpwatch/mca-insights/internal/enrich"
	"github.com/corpwatch/mca-insights/internal/model"
	"github.com/corpwatch/mca-insights/internal/reconcile"
)

// ErrNotFound is returned when a requested snapshot or company does not
// exist.
var ErrNotFound = eris.New("store: not found")

// SnapshotMeta summarizes one stored snapshot.
type SnapshotMeta struct {
	ID        string    `json:"id"`
	TakenAt   time.Time `json:"taken_at"`
	Records   int       `json:"records"`
	CreatedAt time.Time `json:"created_at"`
}

// CompanyFilter selects companies from the latest snapshot.
type CompanyFilter struct {
	CIN    string `json:"cin,omitempty"`
	State  string `json:"state,omitempty"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// ChangeFilter selects change events from the persisted change log.
type ChangeFilter struct {
	CIN    string           `json:"cin,omitempty"`
	Kind   model.ChangeKind `json:"kind,omitempty"`
	State  string           `json:"state,omitempty"`
	Since  time.Time        `json:"since,omitempty"`
	Until  time.Time        `json:"until,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// Store is the persistence boundary for snapshots and change events. The
// core never mutates what it has written: snapshots are inserted whole and
// change events are append-only.
type Store interface {
	// Snapshots
	SaveSnapshot(ctx context.Context, snap model.Snapshot, summary reconcile.BuildSummary) (string, error)
	SnapshotAt(ctx context.Context, takenAt time.Time) (*model.Snapshot, error)
	LatestSnapshot(ctx context.Context) (*model.Snapshot, error)
	ListSnapshots(ctx context.Context) ([]SnapshotMeta, error)

	// Companies (latest snapshot view)
	ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.CanonicalRecord, error)

	// Change log
	AppendChanges(ctx context.Context, events []model.ChangeEvent) (int, error)
	ListChanges(ctx context.Context, filter ChangeFilter) ([]model.ChangeEvent, error)

	// Enrichment profiles, upserted by CIN
	SaveProfiles(ctx context.Context, profiles []enrich.Profile) (int, error)
	ProfileFor(ctx context.Context, cin string) (*enrich.Profile, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// encodeValue renders a possibly-absent value for a nullable text column.
// nil stays nil so SQL NULL preserves the absent/present distinction.
func encodeValue(v *model.Value) any {
	if v == nil {
		return nil
	}
	return v.Display()
}

// decodeValue reverses encodeValue using the field's declared type.
func decodeValue(f model.Field, s *string) (*model.Value, error) {
	if s == nil {
		return nil, nil
	}
	t, ok := model.TypeOf(f)
	if !ok {
		return nil, eris.Errorf("store: change references unknown field %q", f)
	}
	switch t {
	case model.TypeNumber:
		n, err := strconv.ParseFloat(*s, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "store: field %q: parse number %q", f, *s)
		}
		v := model.Number(n)
		return &v, nil
	case model.TypeDate:
		d, err := time.Parse("2006-01-02", *s)
		if err != nil {
			return nil, eris.Wrapf(err, "store: field %q: parse date %q", f, *s)
		}
		v := model.Date(d)
		return &v, nil
	default:
		v := model.String(*s)
		return &v, nil
	}
}

// encodeDirectors stores a director list as a JSON array, NULL when empty.
func encodeDirectors(directors []string) (any, error) {
	if len(directors) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(directors)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal directors")
	}
	return string(b), nil
}

func decodeDirectors(s *string) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(*s), &out); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal directors")
	}
	return out, nil
}

// dateKey normalizes a snapshot timestamp to its stored day-precision key.
func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

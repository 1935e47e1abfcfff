package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpwatch/mca-insights/internal/enrich"
	"github.com/corpwatch/mca-insights/internal/model"
	"github.com/corpwatch/mca-insights/internal/reconcile"
	"github.com/corpwatch/mca-insights/internal/store"
)

// fakeStore serves canned data to the api handlers.
type fakeStore struct {
	snap      *model.Snapshot
	companies []model.CanonicalRecord
	changes   []model.ChangeEvent
	profiles  map[string]enrich.Profile

	companyFilter store.CompanyFilter
	changeFilter  store.ChangeFilter
}

func (f *fakeStore) SaveSnapshot(context.Context, model.Snapshot, reconcile.BuildSummary) (string, error) {
	return "", nil
}

func (f *fakeStore) SnapshotAt(context.Context, time.Time) (*model.Snapshot, error) {
	return f.snap, nil
}

func (f *fakeStore) LatestSnapshot(context.Context) (*model.Snapshot, error) {
	if f.snap == nil {
		return nil, store.ErrNotFound
	}
	return f.snap, nil
}

func (f *fakeStore) ListSnapshots(context.Context) ([]store.SnapshotMeta, error) {
	return nil, nil
}

func (f *fakeStore) ListCompanies(_ context.Context, filter store.CompanyFilter) ([]model.CanonicalRecord, error) {
	f.companyFilter = filter
	out := f.companies
	if filter.CIN != "" {
		out = nil
		for _, rec := range f.companies {
			if rec.CIN == filter.CIN {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) AppendChanges(_ context.Context, events []model.ChangeEvent) (int, error) {
	return len(events), nil
}

func (f *fakeStore) ListChanges(_ context.Context, filter store.ChangeFilter) ([]model.ChangeEvent, error) {
	f.changeFilter = filter
	return f.changes, nil
}

func (f *fakeStore) SaveProfiles(_ context.Context, profiles []enrich.Profile) (int, error) {
	return len(profiles), nil
}

func (f *fakeStore) ProfileFor(_ context.Context, cin string) (*enrich.Profile, error) {
	prof, ok := f.profiles[cin]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &prof, nil
}

func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }

func apiFixture() (*fakeStore, http.Handler) {
	fs := &fakeStore{
		snap: &model.Snapshot{
			Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Records: map[string]model.CanonicalRecord{
				"CIN1": {CIN: "CIN1", Attributes: model.Attributes{
					model.FieldState:  model.String("MAHARASHTRA"),
					model.FieldStatus: model.String("ACTIVE"),
				}},
			},
		},
		companies: []model.CanonicalRecord{
			{CIN: "CIN1", Attributes: model.Attributes{model.FieldStatus: model.String("ACTIVE")}},
			{CIN: "CIN2", Attributes: model.Attributes{model.FieldStatus: model.String("STRIKE OFF")}},
		},
		changes: []model.ChangeEvent{
			{CIN: "CIN2", Kind: model.ChangeDeregistration, State: "MAHARASHTRA"},
		},
		profiles: map[string]enrich.Profile{
			"CIN1": {CIN: "CIN1", Sector: "MANUFACTURING", Source: "registry"},
		},
	}
	return fs, (&api{st: fs}).router()
}

func doGET(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	_, h := apiFixture()
	rec := doGET(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCompaniesPassesFilters(t *testing.T) {
	fs, h := apiFixture()
	rec := doGET(t, h, "/companies?state=MAHARASHTRA&status=ACTIVE&limit=10&offset=5")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "MAHARASHTRA", fs.companyFilter.State)
	assert.Equal(t, "ACTIVE", fs.companyFilter.Status)
	assert.Equal(t, 10, fs.companyFilter.Limit)
	assert.Equal(t, 5, fs.companyFilter.Offset)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
}

func TestCompaniesDefaultLimit(t *testing.T) {
	fs, h := apiFixture()
	doGET(t, h, "/companies")
	assert.Equal(t, 100, fs.companyFilter.Limit)
	assert.Zero(t, fs.companyFilter.Offset)
}

func TestCompanyByCIN(t *testing.T) {
	_, h := apiFixture()

	rec := doGET(t, h, "/companies/CIN1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Company model.CanonicalRecord `json:"company"`
		Profile *enrich.Profile       `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "CIN1", body.Company.CIN)
	require.NotNil(t, body.Profile)
	assert.Equal(t, "MANUFACTURING", body.Profile.Sector)

	// CIN2 exists but has no profile
	rec = doGET(t, h, "/companies/CIN2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "profile")

	rec = doGET(t, h, "/companies/NOPE")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangesFilters(t *testing.T) {
	fs, h := apiFixture()
	rec := doGET(t, h, "/changes?kind=deregistration&since=2024-03-01&until=2024-03-31")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, model.ChangeDeregistration, fs.changeFilter.Kind)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), fs.changeFilter.Since)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), fs.changeFilter.Until)
}

func TestChangesBadDate(t *testing.T) {
	_, h := apiFixture()
	rec := doGET(t, h, "/changes?since=01-03-2024")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummary(t *testing.T) {
	_, h := apiFixture()
	rec := doGET(t, h, "/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Snapshot struct {
			TotalRecords int `json:"total_records"`
		} `json:"snapshot"`
		Changes struct {
			Total          int `json:"total"`
			Deregistration int `json:"deregistrations"`
		} `json:"changes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Snapshot.TotalRecords)
	assert.Equal(t, 1, body.Changes.Total)
	assert.Equal(t, 1, body.Changes.Deregistration)
}

func TestSummaryNoSnapshots(t *testing.T) {
	fs, h := apiFixture()
	fs.snap = nil
	rec := doGET(t, h, "/summary")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueryInt(t *testing.T) {
	assert.Equal(t, 100, queryInt("", 100))
	assert.Equal(t, 7, queryInt("7", 100))
	assert.Equal(t, 100, queryInt("x", 100))
	assert.Equal(t, 100, queryInt("-1", 100))
}

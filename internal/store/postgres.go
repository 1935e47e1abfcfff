package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/corpwatch/mca-insights/internal/db"
	"github.com/corpwatch/mca-insights/internal/enrich"
	"github.com/corpwatch/mca-insights/internal/model"
	"github.com/corpwatch/mca-insights/internal/reconcile"
)

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id           UUID PRIMARY KEY,
	taken_at     DATE NOT NULL UNIQUE,
	record_count INTEGER NOT NULL,
	summary      JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS snapshot_records (
	snapshot_id UUID NOT NULL REFERENCES snapshots(id),
	cin         TEXT NOT NULL,
	source_tag  TEXT NOT NULL,
	attributes  JSONB NOT NULL,
	PRIMARY KEY (snapshot_id, cin)
);

CREATE TABLE IF NOT EXISTS company_changes (
	id            UUID PRIMARY KEY,
	cin           TEXT NOT NULL,
	change_type   TEXT NOT NULL,
	field_changed TEXT,
	old_value     TEXT,
	new_value     TEXT,
	changed_on    DATE NOT NULL,
	company_name  TEXT,
	state         TEXT,
	status        TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS company_profiles (
	cin        TEXT PRIMARY KEY,
	directors  JSONB,
	sector     TEXT,
	website    TEXT,
	email      TEXT,
	source     TEXT,
	fetched_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshot_records_cin ON snapshot_records(cin);
CREATE INDEX IF NOT EXISTS idx_changes_cin ON company_changes(cin);
CREATE INDEX IF NOT EXISTS idx_changes_type ON company_changes(change_type);
CREATE INDEX IF NOT EXISTS idx_changes_date ON company_changes(changed_on);
CREATE INDEX IF NOT EXISTS idx_changes_state ON company_changes(state);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.closeFn()
	return nil
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap model.Snapshot, summary reconcile.BuildSummary) (string, error) {
	id := uuid.New().String()

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal summary")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO snapshots (id, taken_at, record_count, summary) VALUES ($1, $2, $3, $4)`,
		id, dateKey(snap.Timestamp), snap.Len(), summaryJSON,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert snapshot")
	}

	cins := snap.CINs()
	rows := make([][]any, 0, len(cins))
	for _, cin := range cins {
		rec := snap.Records[cin]
		attrsJSON, err := json.Marshal(rec.Attributes)
		if err != nil {
			return "", eris.Wrapf(err, "postgres: marshal attributes %s", cin)
		}
		rows = append(rows, []any{id, cin, rec.SourceTag, string(attrsJSON)})
	}

	if _, err := db.CopyFrom(ctx, s.pool, "snapshot_records",
		[]string{"snapshot_id", "cin", "source_tag", "attributes"}, rows); err != nil {
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) SnapshotAt(ctx context.Context, takenAt time.Time) (*model.Snapshot, error) {
	return s.loadSnapshot(ctx,
		`SELECT id, taken_at FROM snapshots WHERE taken_at = $1`, dateKey(takenAt))
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context) (*model.Snapshot, error) {
	return s.loadSnapshot(ctx,
		`SELECT id, taken_at FROM snapshots ORDER BY taken_at DESC LIMIT 1`)
}

func (s *PostgresStore) loadSnapshot(ctx context.Context, query string, args ...any) (*model.Snapshot, error) {
	var id string
	var takenAt time.Time
	err := s.pool.QueryRow(ctx, query, args...).Scan(&id, &takenAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load snapshot header")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT cin, source_tag, attributes FROM snapshot_records WHERE snapshot_id = $1`, id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load snapshot records")
	}
	defer rows.Close()

	records := make(map[string]model.CanonicalRecord)
	for rows.Next() {
		var cin, tag string
		var attrsJSON []byte
		if err := rows.Scan(&cin, &tag, &attrsJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		var attrs model.Attributes
		if err := json.Unmarshal(attrsJSON, &attrs); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal attributes %s", cin)
		}
		records[cin] = model.CanonicalRecord{CIN: cin, Attributes: attrs, SourceTag: tag}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate records")
	}

	return &model.Snapshot{Timestamp: takenAt.UTC(), Records: records}, nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context) ([]SnapshotMeta, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, taken_at, record_count, created_at FROM snapshots ORDER BY taken_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var metas []SnapshotMeta
	for rows.Next() {
		var m SnapshotMeta
		if err := rows.Scan(&m.ID, &m.TakenAt, &m.Records, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot meta")
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

func (s *PostgresStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.CanonicalRecord, error) {
	query := `SELECT r.cin, r.source_tag, r.attributes
		FROM snapshot_records r
		WHERE r.snapshot_id = (SELECT id FROM snapshots ORDER BY taken_at DESC LIMIT 1)`
	var args []any

	addArg := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(clause, len(args))
	}

	if filter.CIN != "" {
		addArg(` AND r.cin = $%d`, filter.CIN)
	}
	if filter.State != "" {
		addArg(` AND r.attributes->>'state' = $%d`, filter.State)
	}
	if filter.Status != "" {
		addArg(` AND r.attributes->>'status' = $%d`, filter.Status)
	}
	query += ` ORDER BY r.cin`
	if filter.Limit > 0 {
		addArg(` LIMIT $%d`, filter.Limit)
		if filter.Offset > 0 {
			addArg(` OFFSET $%d`, filter.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var records []model.CanonicalRecord
	for rows.Next() {
		var cin, tag string
		var attrsJSON []byte
		if err := rows.Scan(&cin, &tag, &attrsJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		var attrs model.Attributes
		if err := json.Unmarshal(attrsJSON, &attrs); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal attributes %s", cin)
		}
		records = append(records, model.CanonicalRecord{CIN: cin, Attributes: attrs, SourceTag: tag})
	}
	return records, rows.Err()
}

func (s *PostgresStore) AppendChanges(ctx context.Context, events []model.ChangeEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []any{
			uuid.New().String(), ev.CIN, string(ev.Kind), nullableField(ev.Field),
			encodeValue(ev.OldValue), encodeValue(ev.NewValue),
			dateKey(ev.Date), ev.CompanyName, ev.State, ev.Status,
		})
	}

	n, err := db.CopyFrom(ctx, s.pool, "company_changes",
		[]string{"id", "cin", "change_type", "field_changed", "old_value", "new_value",
			"changed_on", "company_name", "state", "status"}, rows)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *PostgresStore) SaveProfiles(ctx context.Context, profiles []enrich.Profile) (int, error) {
	if len(profiles) == 0 {
		return 0, nil
	}

	for _, p := range profiles {
		directors, err := encodeDirectors(p.Directors)
		if err != nil {
			return 0, err
		}
		_, err = s.pool.Exec(ctx, `INSERT INTO company_profiles
			(cin, directors, sector, website, email, source, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (cin) DO UPDATE SET
				directors = EXCLUDED.directors,
				sector = EXCLUDED.sector,
				website = EXCLUDED.website,
				email = EXCLUDED.email,
				source = EXCLUDED.source,
				fetched_at = EXCLUDED.fetched_at`,
			p.CIN, directors, p.Sector, p.Website, p.Email, p.Source, p.FetchedAt.UTC())
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert profile %s", p.CIN)
		}
	}
	return len(profiles), nil
}

func (s *PostgresStore) ProfileFor(ctx context.Context, cin string) (*enrich.Profile, error) {
	var p enrich.Profile
	var directors *string
	err := s.pool.QueryRow(ctx,
		`SELECT cin, directors, sector, website, email, source, fetched_at
		FROM company_profiles WHERE cin = $1`, cin).
		Scan(&p.CIN, &directors, &p.Sector, &p.Website, &p.Email, &p.Source, &p.FetchedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load profile %s", cin)
	}
	if p.Directors, err = decodeDirectors(directors); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) ListChanges(ctx context.Context, filter ChangeFilter) ([]model.ChangeEvent, error) {
	query := `SELECT cin, change_type, field_changed, old_value, new_value, changed_on, company_name, state, status
		FROM company_changes WHERE true`
	var args []any

	addArg := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(clause, len(args))
	}

	if filter.CIN != "" {
		addArg(` AND cin = $%d`, filter.CIN)
	}
	if filter.Kind != "" {
		addArg(` AND change_type = $%d`, string(filter.Kind))
	}
	if filter.State != "" {
		addArg(` AND state = $%d`, filter.State)
	}
	if !filter.Since.IsZero() {
		addArg(` AND changed_on >= $%d`, dateKey(filter.Since))
	}
	if !filter.Until.IsZero() {
		addArg(` AND changed_on <= $%d`, dateKey(filter.Until))
	}
	query += ` ORDER BY changed_on, change_type, cin, field_changed`
	if filter.Limit > 0 {
		addArg(` LIMIT $%d`, filter.Limit)
		if filter.Offset > 0 {
			addArg(` OFFSET $%d`, filter.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list changes")
	}
	defer rows.Close()

	var events []model.ChangeEvent
	for rows.Next() {
		var ev model.ChangeEvent
		var kind string
		var changedOn time.Time
		var field, oldVal, newVal *string
		if err := rows.Scan(&ev.CIN, &kind, &field, &oldVal, &newVal, &changedOn,
			&ev.CompanyName, &ev.State, &ev.Status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan change")
		}
		ev.Kind = model.ChangeKind(kind)
		ev.Date = changedOn.UTC()
		if field != nil {
			ev.Field = model.Field(*field)
			if ev.OldValue, err = decodeValue(ev.Field, oldVal); err != nil {
				return nil, err
			}
			if ev.NewValue, err = decodeValue(ev.Field, newVal); err != nil {
				return nil, err
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

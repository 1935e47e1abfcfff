package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/corpwatch/mca-insights/internal/enrich"
	"github.com/corpwatch/mca-insights/internal/model"
	"github.com/corpwatch/mca-insights/internal/reconcile"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id           TEXT PRIMARY KEY,
	taken_at     TEXT NOT NULL UNIQUE,
	record_count INTEGER NOT NULL,
	summary      TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS snapshot_records (
	snapshot_id TEXT NOT NULL REFERENCES snapshots(id),
	cin         TEXT NOT NULL,
	source_tag  TEXT NOT NULL,
	attributes  TEXT NOT NULL,
	PRIMARY KEY (snapshot_id, cin)
);

CREATE TABLE IF NOT EXISTS company_changes (
	id            TEXT PRIMARY KEY,
	cin           TEXT NOT NULL,
	change_type   TEXT NOT NULL,
	field_changed TEXT,
	old_value     TEXT,
	new_value     TEXT,
	changed_on    TEXT NOT NULL,
	company_name  TEXT,
	state         TEXT,
	status        TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS company_profiles (
	cin        TEXT PRIMARY KEY,
	directors  TEXT,
	sector     TEXT,
	website    TEXT,
	email      TEXT,
	source     TEXT,
	fetched_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshot_records_cin ON snapshot_records(cin);
CREATE INDEX IF NOT EXISTS idx_changes_cin ON company_changes(cin);
CREATE INDEX IF NOT EXISTS idx_changes_type ON company_changes(change_type);
CREATE INDEX IF NOT EXISTS idx_changes_date ON company_changes(changed_on);
CREATE INDEX IF NOT EXISTS idx_changes_state ON company_changes(state);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap model.Snapshot, summary reconcile.BuildSummary) (string, error) {
	id := uuid.New().String()

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal summary")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, taken_at, record_count, summary) VALUES (?, ?, ?, ?)`,
		id, dateKey(snap.Timestamp), snap.Len(), string(summaryJSON),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert snapshot")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_records (snapshot_id, cin, source_tag, attributes) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: prepare record insert")
	}
	defer stmt.Close()

	for _, cin := range snap.CINs() {
		rec := snap.Records[cin]
		attrsJSON, err := json.Marshal(rec.Attributes)
		if err != nil {
			return "", eris.Wrapf(err, "sqlite: marshal attributes %s", cin)
		}
		if _, err := stmt.ExecContext(ctx, id, cin, rec.SourceTag, string(attrsJSON)); err != nil {
			return "", eris.Wrapf(err, "sqlite: insert record %s", cin)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "sqlite: commit snapshot")
	}
	return id, nil
}

func (s *SQLiteStore) SnapshotAt(ctx context.Context, takenAt time.Time) (*model.Snapshot, error) {
	return s.loadSnapshot(ctx,
		`SELECT id, taken_at FROM snapshots WHERE taken_at = ?`, dateKey(takenAt))
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*model.Snapshot, error) {
	return s.loadSnapshot(ctx,
		`SELECT id, taken_at FROM snapshots ORDER BY taken_at DESC LIMIT 1`)
}

func (s *SQLiteStore) loadSnapshot(ctx context.Context, query string, args ...any) (*model.Snapshot, error) {
	var id, takenAt string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id, &takenAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load snapshot header")
	}

	ts, err := time.Parse("2006-01-02", takenAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse taken_at %q", takenAt)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT cin, source_tag, attributes FROM snapshot_records WHERE snapshot_id = ?`, id)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load snapshot records")
	}
	defer rows.Close()

	records := make(map[string]model.CanonicalRecord)
	for rows.Next() {
		var cin, tag, attrsJSON string
		if err := rows.Scan(&cin, &tag, &attrsJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		var attrs model.Attributes
		if err := json.Unmarshal([]byte(attrsJSON), &attrs); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal attributes %s", cin)
		}
		records[cin] = model.CanonicalRecord{CIN: cin, Attributes: attrs, SourceTag: tag}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate records")
	}

	return &model.Snapshot{Timestamp: ts, Records: records}, nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context) ([]SnapshotMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, taken_at, record_count, created_at FROM snapshots ORDER BY taken_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close()

	var metas []SnapshotMeta
	for rows.Next() {
		var m SnapshotMeta
		var takenAt string
		if err := rows.Scan(&m.ID, &takenAt, &m.Records, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot meta")
		}
		if m.TakenAt, err = time.Parse("2006-01-02", takenAt); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse taken_at %q", takenAt)
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.CanonicalRecord, error) {
	query := `SELECT r.cin, r.source_tag, r.attributes
		FROM snapshot_records r
		WHERE r.snapshot_id = (SELECT id FROM snapshots ORDER BY taken_at DESC LIMIT 1)`
	var args []any

	if filter.CIN != "" {
		query += ` AND r.cin = ?`
		args = append(args, filter.CIN)
	}
	if filter.State != "" {
		query += ` AND json_extract(r.attributes, '$.state') = ?`
		args = append(args, filter.State)
	}
	if filter.Status != "" {
		query += ` AND json_extract(r.attributes, '$.status') = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY r.cin`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close()

	var records []model.CanonicalRecord
	for rows.Next() {
		var cin, tag, attrsJSON string
		if err := rows.Scan(&cin, &tag, &attrsJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		var attrs model.Attributes
		if err := json.Unmarshal([]byte(attrsJSON), &attrs); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal attributes %s", cin)
		}
		records = append(records, model.CanonicalRecord{CIN: cin, Attributes: attrs, SourceTag: tag})
	}
	return records, rows.Err()
}

func (s *SQLiteStore) AppendChanges(ctx context.Context, events []model.ChangeEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO company_changes
		(id, cin, change_type, field_changed, old_value, new_value, changed_on, company_name, state, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare change insert")
	}
	defer stmt.Close()

	for _, ev := range events {
		_, err := stmt.ExecContext(ctx,
			uuid.New().String(), ev.CIN, string(ev.Kind), nullableField(ev.Field),
			encodeValue(ev.OldValue), encodeValue(ev.NewValue),
			dateKey(ev.Date), ev.CompanyName, ev.State, ev.Status,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert change %s", ev.CIN)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit changes")
	}
	return len(events), nil
}

func (s *SQLiteStore) SaveProfiles(ctx context.Context, profiles []enrich.Profile) (int, error) {
	if len(profiles) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO company_profiles
		(cin, directors, sector, website, email, source, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cin) DO UPDATE SET
			directors = excluded.directors,
			sector = excluded.sector,
			website = excluded.website,
			email = excluded.email,
			source = excluded.source,
			fetched_at = excluded.fetched_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare profile upsert")
	}
	defer stmt.Close()

	for _, p := range profiles {
		directors, err := encodeDirectors(p.Directors)
		if err != nil {
			return 0, err
		}
		_, err = stmt.ExecContext(ctx, p.CIN, directors, p.Sector, p.Website,
			p.Email, p.Source, p.FetchedAt.UTC())
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert profile %s", p.CIN)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit profiles")
	}
	return len(profiles), nil
}

func (s *SQLiteStore) ProfileFor(ctx context.Context, cin string) (*enrich.Profile, error) {
	var p enrich.Profile
	var directors *string
	err := s.db.QueryRowContext(ctx,
		`SELECT cin, directors, sector, website, email, source, fetched_at
		FROM company_profiles WHERE cin = ?`, cin).
		Scan(&p.CIN, &directors, &p.Sector, &p.Website, &p.Email, &p.Source, &p.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load profile %s", cin)
	}
	if p.Directors, err = decodeDirectors(directors); err != nil {
		return nil, err
	}
	return &p, nil
}

func nullableField(f model.Field) any {
	if f == "" {
		return nil
	}
	return string(f)
}

func (s *SQLiteStore) ListChanges(ctx context.Context, filter ChangeFilter) ([]model.ChangeEvent, error) {
	query := `SELECT cin, change_type, field_changed, old_value, new_value, changed_on, company_name, state, status
		FROM company_changes WHERE 1=1`
	var args []any

	if filter.CIN != "" {
		query += ` AND cin = ?`
		args = append(args, filter.CIN)
	}
	if filter.Kind != "" {
		query += ` AND change_type = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, filter.State)
	}
	if !filter.Since.IsZero() {
		query += ` AND changed_on >= ?`
		args = append(args, dateKey(filter.Since))
	}
	if !filter.Until.IsZero() {
		query += ` AND changed_on <= ?`
		args = append(args, dateKey(filter.Until))
	}
	query += ` ORDER BY changed_on, change_type, cin, field_changed`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list changes")
	}
	defer rows.Close()

	var events []model.ChangeEvent
	for rows.Next() {
		var ev model.ChangeEvent
		var kind, changedOn string
		var field, oldVal, newVal *string
		if err := rows.Scan(&ev.CIN, &kind, &field, &oldVal, &newVal, &changedOn,
			&ev.CompanyName, &ev.State, &ev.Status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan change")
		}
		ev.Kind = model.ChangeKind(kind)
		if ev.Date, err = time.Parse("2006-01-02", changedOn); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse changed_on %q", changedOn)
		}
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

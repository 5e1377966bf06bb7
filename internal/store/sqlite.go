package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/metalsense/internal/classify"
	"github.com/sells-group/metalsense/internal/model"
	"github.com/sells-group/metalsense/internal/standards"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
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
CREATE TABLE IF NOT EXISTS samples (
	id                  TEXT PRIMARY KEY,
	latitude            REAL NOT NULL,
	longitude           REAL NOT NULL,
	location_name       TEXT NOT NULL DEFAULT '',
	sampled_at          DATETIME NOT NULL,
	source_type         TEXT NOT NULL,
	standard_preference TEXT NOT NULL DEFAULT 'BIS',
	status              TEXT NOT NULL DEFAULT 'pending',
	error               TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS measurements (
	sample_id      TEXT NOT NULL REFERENCES samples(id) ON DELETE CASCADE,
	metal          TEXT NOT NULL,
	symbol         TEXT NOT NULL,
	concentration  REAL NOT NULL,
	original_value REAL NOT NULL,
	original_unit  TEXT NOT NULL,
	PRIMARY KEY (sample_id, metal)
);

CREATE TABLE IF NOT EXISTS assessments (
	sample_id          TEXT PRIMARY KEY REFERENCES samples(id) ON DELETE CASCADE,
	hpi                REAL NOT NULL,
	hei                REAL NOT NULL,
	mi                 REAL NOT NULL,
	i_geo_max          REAL NOT NULL,
	hazard_index_adult REAL NOT NULL,
	hazard_index_child REAL NOT NULL,
	cancer_risk_adult  REAL NOT NULL,
	cancer_risk_child  REAL NOT NULL,
	category           TEXT NOT NULL,
	is_safe            INTEGER NOT NULL,
	registry_version   TEXT NOT NULL,
	result             TEXT NOT NULL,
	assessed_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_status ON samples(status);
CREATE INDEX IF NOT EXISTS idx_samples_lat_lon ON samples(latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_assessments_is_safe ON assessments(is_safe);
CREATE INDEX IF NOT EXISTS idx_assessments_assessed_at ON assessments(assessed_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSample(ctx context.Context, smp *model.Sample) error {
	if smp.ID == "" {
		smp.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if smp.CreatedAt.IsZero() {
		smp.CreatedAt = now
	}
	smp.UpdatedAt = now
	if smp.Status == "" {
		smp.Status = model.SampleStatusPending
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin create sample")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO samples (id, latitude, longitude, location_name, sampled_at, source_type, standard_preference, status, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		smp.ID, smp.Location.Latitude, smp.Location.Longitude, smp.LocationName, smp.SampledAt.UTC(),
		string(smp.SourceType), string(smp.StandardPreference), string(smp.Status), smp.Error,
		smp.CreatedAt, smp.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert sample")
	}

	for _, m := range smp.Measurements {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO measurements (sample_id, metal, symbol, concentration, original_value, original_unit) VALUES (?, ?, ?, ?, ?, ?)`,
			smp.ID, string(m.Metal), m.Symbol, m.Concentration, m.OriginalValue, m.OriginalUnit,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert measurement %s", m.Metal)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit create sample")
}

const sqliteSampleColumns = `id, latitude, longitude, location_name, sampled_at, source_type, standard_preference, status, error, created_at, updated_at`

func (s *SQLiteStore) GetSample(ctx context.Context, id string) (*model.Sample, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteSampleColumns+` FROM samples WHERE id = ?`, id)
	smp, err := scanSample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: sample %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get sample %s", id)
	}

	if err := s.loadMeasurements(ctx, smp); err != nil {
		return nil, err
	}
	return smp, nil
}

func (s *SQLiteStore) ListSamples(ctx context.Context, filter SampleFilter) ([]model.Sample, error) {
	var where []string
	var args []any

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.SourceType != "" {
		where = append(where, "source_type = ?")
		args = append(args, string(filter.SourceType))
	}
	if b := filter.BBox; b != nil {
		where = append(where, "latitude BETWEEN ? AND ?", "longitude BETWEEN ? AND ?")
		args = append(args, b.MinLat, b.MaxLat, b.MinLon, b.MaxLon)
	}

	query := `SELECT ` + sqliteSampleColumns + ` FROM samples`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, limitOf(filter.Limit), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list samples")
	}

	var out []model.Sample
	for rows.Next() {
		smp, err := scanSample(rows)
		if err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan sample")
		}
		out = append(out, *smp)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, eris.Wrap(err, "sqlite: iterate samples")
	}
	rows.Close()

	for i := range out {
		if err := s.loadMeasurements(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) UpdateSampleStatus(ctx context.Context, id string, status model.SampleStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE samples SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update sample status %s", id)
	}
	return checkRowsAffected(res, "sample", id)
}

func (s *SQLiteStore) SaveAssessment(ctx context.Context, a *model.Assessment) error {
	_, err := s.SaveAssessments(ctx, []*model.Assessment{a})
	return err
}

const sqliteUpsertAssessment = `
INSERT INTO assessments (sample_id, hpi, hei, mi, i_geo_max, hazard_index_adult, hazard_index_child,
	cancer_risk_adult, cancer_risk_child, category, is_safe, registry_version, result, assessed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (sample_id) DO UPDATE SET
	hpi = excluded.hpi, hei = excluded.hei, mi = excluded.mi, i_geo_max = excluded.i_geo_max,
	hazard_index_adult = excluded.hazard_index_adult, hazard_index_child = excluded.hazard_index_child,
	cancer_risk_adult = excluded.cancer_risk_adult, cancer_risk_child = excluded.cancer_risk_child,
	category = excluded.category, is_safe = excluded.is_safe, registry_version = excluded.registry_version,
	result = excluded.result, assessed_at = excluded.assessed_at`

// SaveAssessments upserts every assessment and marks its sample complete in
// one transaction.
func (s *SQLiteStore) SaveAssessments(ctx context.Context, as []*model.Assessment) (int64, error) {
	if len(as) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save assessments")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, a := range as {
		resultJSON, err := json.Marshal(a.Result)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal result")
		}
		_, err = tx.ExecContext(ctx, sqliteUpsertAssessment,
			a.SampleID, a.HPI, a.HEI, a.MI, a.IGeoMax, a.HazardIndexAdult, a.HazardIndexChild,
			a.CancerRiskAdult, a.CancerRiskChild, string(a.Category), a.IsSafe, a.RegistryVersion,
			string(resultJSON), a.AssessedAt.UTC(),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert assessment %s", a.SampleID)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE samples SET status = ?, error = '', updated_at = ? WHERE id = ?`,
			string(model.SampleStatusComplete), now, a.SampleID,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: complete sample %s", a.SampleID)
		}
		if err := checkRowsAffected(res, "sample", a.SampleID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save assessments")
	}
	return int64(len(as)), nil
}

const sqliteAssessmentColumns = `sample_id, hpi, hei, mi, i_geo_max, hazard_index_adult, hazard_index_child,
	cancer_risk_adult, cancer_risk_child, category, is_safe, registry_version, result, assessed_at`

func (s *SQLiteStore) GetAssessment(ctx context.Context, sampleID string) (*model.Assessment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteAssessmentColumns+` FROM assessments WHERE sample_id = ?`, sampleID)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: assessment %s", sampleID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get assessment %s", sampleID)
	}
	return a, nil
}

func (s *SQLiteStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]model.Assessment, error) {
	var where []string
	var args []any

	if filter.UnsafeOnly {
		where = append(where, "is_safe = 0")
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(filter.Category))
	}
	if !filter.Since.IsZero() {
		where = append(where, "assessed_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := `SELECT ` + sqliteAssessmentColumns + ` FROM assessments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY assessed_at DESC, sample_id LIMIT ? OFFSET ?"
	args = append(args, limitOf(filter.Limit), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assessments")
	}
	defer rows.Close()

	var out []model.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan assessment")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate assessments")
}

func (s *SQLiteStore) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	st := newStats(since)
	since = since.UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM samples WHERE updated_at >= ? GROUP BY status`, since)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by status")
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		st.SamplesByStatus[model.SampleStatus(status)] = n
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM assessments WHERE assessed_at >= ? GROUP BY category`, since)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by category")
	}
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan category count")
		}
		st.AssessmentsByCategory[classify.Category(cat)] = n
	}
	rows.Close()

	var meanHPI, maxHPI sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_safe = 0 THEN 1 ELSE 0 END), 0), AVG(hpi), MAX(hpi)
		 FROM assessments WHERE assessed_at >= ?`, since,
	).Scan(&st.Assessed, &st.Unsafe, &meanHPI, &maxHPI)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats summary")
	}
	st.MeanHPI = meanHPI.Float64
	st.MaxHPI = maxHPI.Float64
	return st, nil
}

func (s *SQLiteStore) loadMeasurements(ctx context.Context, smp *model.Sample) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT metal, symbol, concentration, original_value, original_unit FROM measurements WHERE sample_id = ? ORDER BY metal`,
		smp.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: load measurements %s", smp.ID)
	}
	defer rows.Close()

	smp.Measurements = nil
	for rows.Next() {
		var m model.Measurement
		var metal string
		if err := rows.Scan(&metal, &m.Symbol, &m.Concentration, &m.OriginalValue, &m.OriginalUnit); err != nil {
			return eris.Wrap(err, "sqlite: scan measurement")
		}
		m.Metal = standards.Metal(metal)
		smp.Measurements = append(smp.Measurements, m)
	}
	return eris.Wrap(rows.Err(), "sqlite: iterate measurements")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSample(row scannable) (*model.Sample, error) {
	var smp model.Sample
	var sourceType, pref, status string
	err := row.Scan(
		&smp.ID, &smp.Location.Latitude, &smp.Location.Longitude, &smp.LocationName, &smp.SampledAt,
		&sourceType, &pref, &status, &smp.Error, &smp.CreatedAt, &smp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	smp.SourceType = model.SourceType(sourceType)
	smp.StandardPreference = model.StandardPreference(pref)
	smp.Status = model.SampleStatus(status)
	return &smp, nil
}

func scanAssessment(row scannable) (*model.Assessment, error) {
	var a model.Assessment
	var category, resultJSON string
	err := row.Scan(
		&a.SampleID, &a.HPI, &a.HEI, &a.MI, &a.IGeoMax, &a.HazardIndexAdult, &a.HazardIndexChild,
		&a.CancerRiskAdult, &a.CancerRiskChild, &category, &a.IsSafe, &a.RegistryVersion,
		&resultJSON, &a.AssessedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Category = classify.Category(category)
	if err := json.Unmarshal([]byte(resultJSON), &a.Result); err != nil {
		return nil, eris.Wrap(err, "unmarshal result")
	}
	return &a, nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/metalsense/internal/classify"
	"github.com/sells-group/metalsense/internal/db"
	"github.com/sells-group/metalsense/internal/geo"
	"github.com/sells-group/metalsense/internal/model"
	"github.com/sells-group/metalsense/internal/standards"
)

// PostgresStore implements Store on PostgreSQL with PostGIS point geometry.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	cfg := &db.PoolConfig{MaxConns: 10, MinConns: 2}
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			cfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			cfg.MinConns = poolCfg.MinConns
		}
	}

	pool, err := db.NewPool(ctx, connString, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS samples (
	id                  TEXT PRIMARY KEY,
	location            geometry(Point, 4326) NOT NULL,
	location_name       TEXT NOT NULL DEFAULT '',
	sampled_at          TIMESTAMPTZ NOT NULL,
	source_type         TEXT NOT NULL,
	standard_preference TEXT NOT NULL DEFAULT 'BIS',
	status              TEXT NOT NULL DEFAULT 'pending',
	error               TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS measurements (
	sample_id      TEXT NOT NULL REFERENCES samples(id) ON DELETE CASCADE,
	metal          TEXT NOT NULL,
	symbol         TEXT NOT NULL,
	concentration  DOUBLE PRECISION NOT NULL,
	original_value DOUBLE PRECISION NOT NULL,
	original_unit  TEXT NOT NULL,
	PRIMARY KEY (sample_id, metal)
);

CREATE TABLE IF NOT EXISTS assessments (
	sample_id          TEXT PRIMARY KEY REFERENCES samples(id) ON DELETE CASCADE,
	hpi                DOUBLE PRECISION NOT NULL,
	hei                DOUBLE PRECISION NOT NULL,
	mi                 DOUBLE PRECISION NOT NULL,
	i_geo_max          DOUBLE PRECISION NOT NULL,
	hazard_index_adult DOUBLE PRECISION NOT NULL,
	hazard_index_child DOUBLE PRECISION NOT NULL,
	cancer_risk_adult  DOUBLE PRECISION NOT NULL,
	cancer_risk_child  DOUBLE PRECISION NOT NULL,
	category           TEXT NOT NULL,
	is_safe            BOOLEAN NOT NULL,
	registry_version   TEXT NOT NULL,
	result             JSONB NOT NULL,
	assessed_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_status ON samples(status);
CREATE INDEX IF NOT EXISTS idx_samples_location ON samples USING GIST (location);
CREATE INDEX IF NOT EXISTS idx_assessments_unsafe ON assessments(assessed_at DESC) WHERE NOT is_safe;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var measurementColumns = []string{"sample_id", "metal", "symbol", "concentration", "original_value", "original_unit"}

// CreateSample inserts the sample row and copies its measurements in one
// transaction.
func (s *PostgresStore) CreateSample(ctx context.Context, smp *model.Sample) error {
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

	loc, err := geo.EncodePoint(smp.Location)
	if err != nil {
		return eris.Wrap(err, "postgres: encode location")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin create sample")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO samples (id, location, location_name, sampled_at, source_type, standard_preference, status, error, created_at, updated_at)
		 VALUES ($1, ST_GeomFromEWKB($2), $3, $4, $5, $6, $7, $8, $9, $10)`,
		smp.ID, loc, smp.LocationName, smp.SampledAt.UTC(), string(smp.SourceType),
		string(smp.StandardPreference), string(smp.Status), smp.Error, smp.CreatedAt, smp.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert sample")
	}

	rows := make([][]any, len(smp.Measurements))
	for i, m := range smp.Measurements {
		rows[i] = []any{smp.ID, string(m.Metal), m.Symbol, m.Concentration, m.OriginalValue, m.OriginalUnit}
	}
	if _, err := db.CopyFrom(ctx, tx, "measurements", measurementColumns, rows); err != nil {
		return eris.Wrap(err, "postgres: copy measurements")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit create sample")
}

const postgresSampleColumns = `id, ST_AsEWKB(location), location_name, sampled_at, source_type, standard_preference, status, error, created_at, updated_at`

func (s *PostgresStore) GetSample(ctx context.Context, id string) (*model.Sample, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresSampleColumns+` FROM samples WHERE id = $1`, id)
	smp, err := scanPostgresSample(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: sample %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get sample %s", id)
	}

	byID, err := s.loadMeasurements(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	smp.Measurements = byID[id]
	return smp, nil
}

func (s *PostgresStore) ListSamples(ctx context.Context, filter SampleFilter) ([]model.Sample, error) {
	query := `SELECT ` + postgresSampleColumns + ` FROM samples WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.SourceType != "" {
		query += fmt.Sprintf(` AND source_type = $%d`, argIdx)
		args = append(args, string(filter.SourceType))
		argIdx++
	}
	if b := filter.BBox; b != nil {
		query += fmt.Sprintf(` AND location && ST_MakeEnvelope($%d, $%d, $%d, $%d, %d)`,
			argIdx, argIdx+1, argIdx+2, argIdx+3, geo.SRID)
		args = append(args, b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
		argIdx += 4
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, limitOf(filter.Limit), filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list samples")
	}

	var out []model.Sample
	var ids []string
	for rows.Next() {
		smp, err := scanPostgresSample(rows)
		if err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan sample")
		}
		out = append(out, *smp)
		ids = append(ids, smp.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate samples")
	}
	if len(ids) == 0 {
		return out, nil
	}

	byID, err := s.loadMeasurements(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Measurements = byID[out[i].ID]
	}
	return out, nil
}

func (s *PostgresStore) UpdateSampleStatus(ctx context.Context, id string, status model.SampleStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE samples SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update sample status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "sample %s", id)
	}
	return nil
}

var assessmentColumns = []string{
	"sample_id", "hpi", "hei", "mi", "i_geo_max", "hazard_index_adult", "hazard_index_child",
	"cancer_risk_adult", "cancer_risk_child", "category", "is_safe", "registry_version", "result", "assessed_at",
}

func assessmentRow(a *model.Assessment) ([]any, error) {
	resultJSON, err := json.Marshal(a.Result)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal result")
	}
	return []any{
		a.SampleID, a.HPI, a.HEI, a.MI, a.IGeoMax, a.HazardIndexAdult, a.HazardIndexChild,
		a.CancerRiskAdult, a.CancerRiskChild, string(a.Category), a.IsSafe, a.RegistryVersion,
		string(resultJSON), a.AssessedAt.UTC(),
	}, nil
}

// SaveAssessment upserts one assessment and marks its sample complete.
func (s *PostgresStore) SaveAssessment(ctx context.Context, a *model.Assessment) error {
	row, err := assessmentRow(a)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save assessment")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO assessments (`+strings.Join(assessmentColumns, ", ")+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (sample_id) DO UPDATE SET
			hpi = EXCLUDED.hpi, hei = EXCLUDED.hei, mi = EXCLUDED.mi, i_geo_max = EXCLUDED.i_geo_max,
			hazard_index_adult = EXCLUDED.hazard_index_adult, hazard_index_child = EXCLUDED.hazard_index_child,
			cancer_risk_adult = EXCLUDED.cancer_risk_adult, cancer_risk_child = EXCLUDED.cancer_risk_child,
			category = EXCLUDED.category, is_safe = EXCLUDED.is_safe, registry_version = EXCLUDED.registry_version,
			result = EXCLUDED.result, assessed_at = EXCLUDED.assessed_at`,
		row...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert assessment %s", a.SampleID)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE samples SET status = $1, error = '', updated_at = $2 WHERE id = $3`,
		string(model.SampleStatusComplete), time.Now().UTC(), a.SampleID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete sample %s", a.SampleID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "sample %s", a.SampleID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit save assessment")
}

// SaveAssessments bulk-upserts assessments through a COPY staging table and
// marks their samples complete.
func (s *PostgresStore) SaveAssessments(ctx context.Context, as []*model.Assessment) (int64, error) {
	if len(as) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(as))
	ids := make([]string, 0, len(as))
	for _, a := range as {
		row, err := assessmentRow(a)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
		ids = append(ids, a.SampleID)
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "assessments",
		Columns:      assessmentColumns,
		ConflictKeys: []string{"sample_id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: save assessments")
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE samples SET status = $1, error = '', updated_at = $2 WHERE id = ANY($3)`,
		string(model.SampleStatusComplete), time.Now().UTC(), ids,
	)
	if err != nil {
		return n, eris.Wrap(err, "postgres: complete samples")
	}
	return n, nil
}

const postgresAssessmentSelect = `SELECT sample_id, hpi, hei, mi, i_geo_max, hazard_index_adult, hazard_index_child,
	cancer_risk_adult, cancer_risk_child, category, is_safe, registry_version, result, assessed_at FROM assessments`

func (s *PostgresStore) GetAssessment(ctx context.Context, sampleID string) (*model.Assessment, error) {
	row := s.pool.QueryRow(ctx, postgresAssessmentSelect+` WHERE sample_id = $1`, sampleID)
	a, err := scanPostgresAssessment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: assessment %s", sampleID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get assessment %s", sampleID)
	}
	return a, nil
}

func (s *PostgresStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]model.Assessment, error) {
	query := postgresAssessmentSelect + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.UnsafeOnly {
		query += ` AND NOT is_safe`
	}
	if filter.Category != "" {
		query += fmt.Sprintf(` AND category = $%d`, argIdx)
		args = append(args, string(filter.Category))
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND assessed_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY assessed_at DESC, sample_id LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, limitOf(filter.Limit), filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assessments")
	}
	defer rows.Close()

	var out []model.Assessment
	for rows.Next() {
		a, err := scanPostgresAssessment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan assessment")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate assessments")
}

func (s *PostgresStore) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	st := newStats(since)
	since = since.UTC()

	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM samples WHERE updated_at >= $1 GROUP BY status`, since)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats by status")
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		st.SamplesByStatus[model.SampleStatus(status)] = n
	}
	rows.Close()

	rows, err = s.pool.Query(ctx,
		`SELECT category, COUNT(*) FROM assessments WHERE assessed_at >= $1 GROUP BY category`, since)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats by category")
	}
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan category count")
		}
		st.AssessmentsByCategory[classify.Category(cat)] = n
	}
	rows.Close()

	var meanHPI, maxHPI *float64
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT is_safe), AVG(hpi), MAX(hpi)
		 FROM assessments WHERE assessed_at >= $1`, since,
	).Scan(&st.Assessed, &st.Unsafe, &meanHPI, &maxHPI)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats summary")
	}
	if meanHPI != nil {
		st.MeanHPI = *meanHPI
	}
	if maxHPI != nil {
		st.MaxHPI = *maxHPI
	}
	return st, nil
}

func (s *PostgresStore) loadMeasurements(ctx context.Context, ids []string) (map[string][]model.Measurement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sample_id, metal, symbol, concentration, original_value, original_unit
		 FROM measurements WHERE sample_id = ANY($1) ORDER BY sample_id, metal`,
		ids,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load measurements")
	}
	defer rows.Close()

	out := make(map[string][]model.Measurement, len(ids))
	for rows.Next() {
		var id, metal string
		var m model.Measurement
		if err := rows.Scan(&id, &metal, &m.Symbol, &m.Concentration, &m.OriginalValue, &m.OriginalUnit); err != nil {
			return nil, eris.Wrap(err, "postgres: scan measurement")
		}
		m.Metal = standards.Metal(metal)
		out[id] = append(out[id], m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate measurements")
}

func scanPostgresSample(row scannable) (*model.Sample, error) {
	var smp model.Sample
	var loc []byte
	var sourceType, pref, status string
	err := row.Scan(
		&smp.ID, &loc, &smp.LocationName, &smp.SampledAt, &sourceType, &pref, &status,
		&smp.Error, &smp.CreatedAt, &smp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	pt, err := geo.DecodePoint(loc)
	if err != nil {
		return nil, err
	}
	smp.Location = pt
	smp.SourceType = model.SourceType(sourceType)
	smp.StandardPreference = model.StandardPreference(pref)
	smp.Status = model.SampleStatus(status)
	return &smp, nil
}

func scanPostgresAssessment(row scannable) (*model.Assessment, error) {
	var a model.Assessment
	var category string
	var resultJSON []byte
	err := row.Scan(
		&a.SampleID, &a.HPI, &a.HEI, &a.MI, &a.IGeoMax, &a.HazardIndexAdult, &a.HazardIndexChild,
		&a.CancerRiskAdult, &a.CancerRiskChild, &category, &a.IsSafe, &a.RegistryVersion,
		&resultJSON, &a.AssessedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Category = classify.Category(category)
	if err := json.Unmarshal(resultJSON, &a.Result); err != nil {
		return nil, eris.Wrap(err, "unmarshal result")
	}
	return &a, nil
}

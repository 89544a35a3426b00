package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/factflow/internal/convert"
	"github.com/JonMunkholm/factflow/internal/model"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Postgres is the pgx-backed Store. Dictionary get-or-create relies on the
// UNIQUE constraints in schema.sql: an insert that loses a race does nothing
// and the follow-up select returns the winner's row.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres wraps an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close closes the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// wrap converts pgx errors to the domain taxonomy: no rows becomes
// ErrNotFound, everything else an infrastructure error.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrNotFound
	}
	return model.Infra(op, err)
}

/* ----------------------------------------
	UPLOADS & ANALYSES
---------------------------------------- */

func (p *Postgres) CreateUpload(ctx context.Context, u *model.UploadJob) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO upload_jobs (id, file_name, path, size, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		convert.ToPgUUID(&u.ID), u.FileName, u.Path, u.Size, u.CreatedAt)
	return wrap("create upload", err)
}

func (p *Postgres) GetUpload(ctx context.Context, id uuid.UUID) (*model.UploadJob, error) {
	var (
		u   model.UploadJob
		pid pgtype.UUID
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id, file_name, path, size, created_at
		FROM upload_jobs WHERE id = $1`, convert.ToPgUUID(&id)).
		Scan(&pid, &u.FileName, &u.Path, &u.Size, &u.CreatedAt)
	if err != nil {
		return nil, wrap("get upload", err)
	}
	u.ID = *convert.FromPgUUID(pid)
	return &u, nil
}

const analysisColumns = `id, upload_job_id, fingerprint, row_count, column_count, headers, columns,
	delimiter, encoding, has_header, created_at`

func (p *Postgres) CreateAnalysis(ctx context.Context, a *model.Analysis) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	headers, err := json.Marshal(a.Headers)
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}
	columns, err := json.Marshal(a.Columns)
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO analyses (`+analysisColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (upload_job_id, fingerprint) DO NOTHING`,
		convert.ToPgUUID(&a.ID), convert.ToPgUUID(&a.UploadJobID), a.Fingerprint,
		a.RowCount, a.ColumnCount, headers, columns,
		a.Delimiter, a.Encoding, a.HasHeader, a.CreatedAt)
	return wrap("create analysis", err)
}

func (p *Postgres) GetAnalysis(ctx context.Context, id uuid.UUID) (*model.Analysis, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE id = $1`, convert.ToPgUUID(&id))
	return scanAnalysis(row)
}

func (p *Postgres) FindAnalysis(ctx context.Context, uploadID uuid.UUID, fingerprint string) (*model.Analysis, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+analysisColumns+` FROM analyses
		WHERE upload_job_id = $1 AND fingerprint = $2`,
		convert.ToPgUUID(&uploadID), fingerprint)
	return scanAnalysis(row)
}

func (p *Postgres) LatestAnalysis(ctx context.Context, uploadID uuid.UUID) (*model.Analysis, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+analysisColumns+` FROM analyses
		WHERE upload_job_id = $1
		ORDER BY created_at DESC LIMIT 1`, convert.ToPgUUID(&uploadID))
	return scanAnalysis(row)
}

func scanAnalysis(row pgx.Row) (*model.Analysis, error) {
	var (
		a               model.Analysis
		id, uploadID    pgtype.UUID
		headers, colRaw []byte
	)
	err := row.Scan(&id, &uploadID, &a.Fingerprint, &a.RowCount, &a.ColumnCount,
		&headers, &colRaw, &a.Delimiter, &a.Encoding, &a.HasHeader, &a.CreatedAt)
	if err != nil {
		return nil, wrap("get analysis", err)
	}
	if err := json.Unmarshal(headers, &a.Headers); err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	if err := json.Unmarshal(colRaw, &a.Columns); err != nil {
		return nil, fmt.Errorf("decode columns: %w", err)
	}
	a.ID = *convert.FromPgUUID(id)
	a.UploadJobID = *convert.FromPgUUID(uploadID)
	return &a, nil
}

/* ----------------------------------------
	MAPPINGS
---------------------------------------- */

func (p *Postgres) UpsertMapping(ctx context.Context, m model.DimensionMapping) (model.DimensionMapping, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	rules, err := json.Marshal(m.MappingRules)
	if err != nil {
		return m, fmt.Errorf("encode mapping rules: %w", err)
	}

	row := p.pool.QueryRow(ctx, `
		INSERT INTO dimension_mappings
			(id, analysis_id, column_index, dimension_type, confidence_score, is_auto_detected, mapping_rules, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (analysis_id, column_index) DO UPDATE SET
			dimension_type   = EXCLUDED.dimension_type,
			confidence_score = EXCLUDED.confidence_score,
			is_auto_detected = EXCLUDED.is_auto_detected,
			mapping_rules    = EXCLUDED.mapping_rules,
			updated_at       = now()
		RETURNING id, updated_at`,
		convert.ToPgUUID(&m.ID), convert.ToPgUUID(&m.AnalysisID), m.ColumnIndex,
		string(m.DimensionType), m.ConfidenceScore, m.IsAutoDetected, rules)

	var id pgtype.UUID
	if err := row.Scan(&id, &m.UpdatedAt); err != nil {
		return m, wrap("upsert mapping", err)
	}
	m.ID = *convert.FromPgUUID(id)
	return m, nil
}

func (p *Postgres) ListMappings(ctx context.Context, analysisID uuid.UUID) ([]model.DimensionMapping, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, analysis_id, column_index, dimension_type, confidence_score,
			is_auto_detected, mapping_rules, updated_at
		FROM dimension_mappings
		WHERE analysis_id = $1
		ORDER BY column_index`, convert.ToPgUUID(&analysisID))
	if err != nil {
		return nil, wrap("list mappings", err)
	}
	defer rows.Close()

	out := make([]model.DimensionMapping, 0)
	for rows.Next() {
		var (
			m             model.DimensionMapping
			id, aid       pgtype.UUID
			dimensionType string
			rules         []byte
		)
		if err := rows.Scan(&id, &aid, &m.ColumnIndex, &dimensionType, &m.ConfidenceScore,
			&m.IsAutoDetected, &rules, &m.UpdatedAt); err != nil {
			return nil, wrap("scan mapping", err)
		}
		if len(rules) > 0 {
			if err := json.Unmarshal(rules, &m.MappingRules); err != nil {
				return nil, fmt.Errorf("decode mapping rules: %w", err)
			}
		}
		m.ID = *convert.FromPgUUID(id)
		m.AnalysisID = *convert.FromPgUUID(aid)
		m.DimensionType = model.DimensionType(dimensionType)
		out = append(out, m)
	}
	return out, wrap("list mappings", rows.Err())
}

func (p *Postgres) DeleteMapping(ctx context.Context, analysisID uuid.UUID, columnIndex int) error {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM dimension_mappings WHERE analysis_id = $1 AND column_index = $2`,
		convert.ToPgUUID(&analysisID), columnIndex)
	if err != nil {
		return wrap("delete mapping", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

/* ----------------------------------------
	DIMENSIONS
---------------------------------------- */

func (p *Postgres) GetOrCreateIndicator(ctx context.Context, ind model.Indicator) (model.Indicator, error) {
	newID := uuid.New()
	var id pgtype.UUID
	err := p.pool.QueryRow(ctx, `
		INSERT INTO indicators (id, name, unit, source, goal)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			unit   = CASE WHEN indicators.unit   = '' THEN EXCLUDED.unit   ELSE indicators.unit   END,
			source = CASE WHEN indicators.source = '' THEN EXCLUDED.source ELSE indicators.source END,
			goal   = CASE WHEN indicators.goal   = '' THEN EXCLUDED.goal   ELSE indicators.goal   END
		RETURNING id, unit, source, goal`,
		convert.ToPgUUID(&newID), ind.Name, ind.Unit, ind.Source, ind.Goal).
		Scan(&id, &ind.Unit, &ind.Source, &ind.Goal)
	if err != nil {
		return ind, wrap("get or create indicator", err)
	}
	ind.ID = *convert.FromPgUUID(id)
	return ind, nil
}

func (p *Postgres) GetOrCreateTime(ctx context.Context, value string) (model.DimTime, error) {
	id, err := intern(ctx, p.pool, "dim_time", value)
	return model.DimTime{ID: id, Value: value}, err
}

func (p *Postgres) GetOrCreateLocation(ctx context.Context, value string) (model.DimLocation, error) {
	id, err := intern(ctx, p.pool, "dim_location", value)
	return model.DimLocation{ID: id, Value: value}, err
}

// intern inserts value into a single-key dictionary table and returns the
// id of whichever row holds it.
func intern(ctx context.Context, db DBTX, table, value string) (uuid.UUID, error) {
	newID := uuid.New()
	_, err := db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, value) VALUES ($1, $2) ON CONFLICT (value) DO NOTHING`, table),
		convert.ToPgUUID(&newID), value)
	if err != nil {
		return uuid.Nil, wrap("insert "+table, err)
	}

	var id pgtype.UUID
	err = db.QueryRow(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE value = $1`, table), value).Scan(&id)
	if err != nil {
		return uuid.Nil, wrap("select "+table, err)
	}
	return *convert.FromPgUUID(id), nil
}

func (p *Postgres) GetOrCreateGeneric(ctx context.Context, dimensionName, value string) (model.DimGeneric, error) {
	g := model.DimGeneric{DimensionName: dimensionName, Value: value}
	newID := uuid.New()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO dim_generic (id, dimension_name, value) VALUES ($1, $2, $3)
		ON CONFLICT (dimension_name, value) DO NOTHING`,
		convert.ToPgUUID(&newID), dimensionName, value)
	if err != nil {
		return g, wrap("insert dim_generic", err)
	}

	var id pgtype.UUID
	err = p.pool.QueryRow(ctx, `
		SELECT id FROM dim_generic WHERE dimension_name = $1 AND value = $2`,
		dimensionName, value).Scan(&id)
	if err != nil {
		return g, wrap("select dim_generic", err)
	}
	g.ID = *convert.FromPgUUID(id)
	return g, nil
}

/* ----------------------------------------
	FACTS
---------------------------------------- */

var factColumns = []string{
	"id", "job_id", "indicator_id", "value", "time_id", "location_id", "generic_ids",
	"source_file", "source_row_number", "source_row_hash", "confidence_score",
	"is_aggregated", "created_at",
}

// InsertFacts streams a batch with COPY. COPY is all-or-nothing, so a
// rejected batch leaves no partial rows behind.
func (p *Postgres) InsertFacts(ctx context.Context, facts []model.FactRecord) error {
	if len(facts) == 0 {
		return nil
	}
	now := time.Now().UTC()

	_, err := p.pool.CopyFrom(ctx, pgx.Identifier{"fact_records"}, factColumns,
		pgx.CopyFromSlice(len(facts), func(i int) ([]any, error) {
			f := facts[i]
			if f.ID == uuid.Nil {
				f.ID = uuid.New()
			}
			if f.CreatedAt.IsZero() {
				f.CreatedAt = now
			}
			generics := make([]pgtype.UUID, len(f.GenericIDs))
			for j := range f.GenericIDs {
				generics[j] = convert.ToPgUUID(&f.GenericIDs[j])
			}
			return []any{
				convert.ToPgUUID(&f.ID), convert.ToPgUUID(&f.JobID), convert.ToPgUUID(&f.IndicatorID),
				f.Value, convert.ToPgUUID(f.TimeID), convert.ToPgUUID(f.LocationID), generics,
				f.SourceFile, f.SourceRowNumber, f.SourceRowHash, f.ConfidenceScore,
				f.IsAggregated, f.CreatedAt,
			}, nil
		}))
	return wrap("insert facts", err)
}

func (p *Postgres) ListFacts(ctx context.Context, jobID uuid.UUID) ([]model.FactRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, job_id, indicator_id, value, time_id, location_id, generic_ids,
			source_file, source_row_number, source_row_hash, confidence_score,
			is_aggregated, created_at
		FROM fact_records
		WHERE job_id = $1
		ORDER BY is_aggregated, source_row_number`, convert.ToPgUUID(&jobID))
	if err != nil {
		return nil, wrap("list facts", err)
	}
	defer rows.Close()

	out := make([]model.FactRecord, 0)
	for rows.Next() {
		var (
			f                        model.FactRecord
			id, jid, indID, tID, lID pgtype.UUID
			generics                 []pgtype.UUID
		)
		if err := rows.Scan(&id, &jid, &indID, &f.Value, &tID, &lID, &generics,
			&f.SourceFile, &f.SourceRowNumber, &f.SourceRowHash, &f.ConfidenceScore,
			&f.IsAggregated, &f.CreatedAt); err != nil {
			return nil, wrap("scan fact", err)
		}
		f.ID = *convert.FromPgUUID(id)
		f.JobID = *convert.FromPgUUID(jid)
		f.IndicatorID = *convert.FromPgUUID(indID)
		f.TimeID = convert.FromPgUUID(tID)
		f.LocationID = convert.FromPgUUID(lID)
		for _, g := range generics {
			if gid := convert.FromPgUUID(g); gid != nil {
				f.GenericIDs = append(f.GenericIDs, *gid)
			}
		}
		out = append(out, f)
	}
	return out, wrap("list facts", rows.Err())
}

func (p *Postgres) SupersedeFacts(ctx context.Context, uploadID, keepJobID uuid.UUID) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, wrap("begin supersede", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM fact_records
		WHERE job_id IN (
			SELECT id FROM processing_jobs WHERE upload_job_id = $1 AND id <> $2
		)`, convert.ToPgUUID(&uploadID), convert.ToPgUUID(&keepJobID))
	if err != nil {
		return 0, wrap("supersede facts", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, wrap("commit supersede", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) DeleteJobFacts(ctx context.Context, jobID uuid.UUID) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM fact_records WHERE job_id = $1`, convert.ToPgUUID(&jobID))
	if err != nil {
		return 0, wrap("delete job facts", err)
	}
	return tag.RowsAffected(), nil
}

/* ----------------------------------------
	JOBS
---------------------------------------- */

const jobColumns = `id, upload_job_id, analysis_id, status, records_processed, records_total,
	error_count, progress_percentage, batch_size, quality_score, started_at, finished_at,
	error_message, created_at`

func (p *Postgres) CreateJob(ctx context.Context, job *model.ProcessingJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO processing_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		jobArgs(job)...)
	return wrap("create job", err)
}

func jobArgs(job *model.ProcessingJob) []any {
	quality := pgtype.Float8{}
	if job.QualityScore != nil {
		quality = pgtype.Float8{Float64: *job.QualityScore, Valid: true}
	}
	return []any{
		convert.ToPgUUID(&job.ID), convert.ToPgUUID(&job.UploadJobID), convert.ToPgUUID(&job.AnalysisID),
		string(job.Status), job.RecordsProcessed, job.RecordsTotal, job.ErrorCount,
		job.ProgressPercentage, job.BatchSize, quality, toTimestamptz(job.StartedAt),
		toTimestamptz(job.FinishedAt), job.ErrorMessage, job.CreatedAt,
	}
}

func toTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func (p *Postgres) GetJob(ctx context.Context, id uuid.UUID) (*model.ProcessingJob, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM processing_jobs WHERE id = $1`, convert.ToPgUUID(&id))
	return scanJob(row)
}

func (p *Postgres) LatestJob(ctx context.Context, uploadID uuid.UUID) (*model.ProcessingJob, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM processing_jobs
		WHERE upload_job_id = $1
		ORDER BY created_at DESC LIMIT 1`, convert.ToPgUUID(&uploadID))
	return scanJob(row)
}

func (p *Postgres) ListJobs(ctx context.Context, uploadID uuid.UUID) ([]model.ProcessingJob, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM processing_jobs
		WHERE upload_job_id = $1
		ORDER BY created_at DESC`, convert.ToPgUUID(&uploadID))
	if err != nil {
		return nil, wrap("list jobs", err)
	}
	defer rows.Close()

	out := make([]model.ProcessingJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, wrap("list jobs", rows.Err())
}

// ListUnfinishedJobs returns every PENDING or RUNNING job, oldest first.
func (p *Postgres) ListUnfinishedJobs(ctx context.Context) ([]model.ProcessingJob, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM processing_jobs
		WHERE status IN ('PENDING', 'RUNNING')
		ORDER BY created_at`)
	if err != nil {
		return nil, wrap("list unfinished jobs", err)
	}
	defer rows.Close()

	out := make([]model.ProcessingJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, wrap("list unfinished jobs", rows.Err())
}

func scanJob(row pgx.Row) (*model.ProcessingJob, error) {
	var (
		job                    model.ProcessingJob
		id, uploadID, analysis pgtype.UUID
		status                 string
		quality                pgtype.Float8
		started, finished      pgtype.Timestamptz
	)
	err := row.Scan(&id, &uploadID, &analysis, &status, &job.RecordsProcessed, &job.RecordsTotal,
		&job.ErrorCount, &job.ProgressPercentage, &job.BatchSize, &quality, &started, &finished,
		&job.ErrorMessage, &job.CreatedAt)
	if err != nil {
		return nil, wrap("get job", err)
	}
	job.ID = *convert.FromPgUUID(id)
	job.UploadJobID = *convert.FromPgUUID(uploadID)
	job.AnalysisID = *convert.FromPgUUID(analysis)
	job.Status = model.JobStatus(status)
	if quality.Valid {
		job.QualityScore = &quality.Float64
	}
	if started.Valid {
		job.StartedAt = &started.Time
	}
	if finished.Valid {
		job.FinishedAt = &finished.Time
	}
	return &job, nil
}

func (p *Postgres) UpdateJob(ctx context.Context, job *model.ProcessingJob) error {
	quality := pgtype.Float8{}
	if job.QualityScore != nil {
		quality = pgtype.Float8{Float64: *job.QualityScore, Valid: true}
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE processing_jobs SET
			status              = $2,
			records_processed   = GREATEST(records_processed, $3),
			records_total       = $4,
			error_count         = $5,
			progress_percentage = GREATEST(progress_percentage, $6),
			quality_score       = $7,
			started_at          = $8,
			finished_at         = $9,
			error_message       = $10
		WHERE id = $1`,
		convert.ToPgUUID(&job.ID), string(job.Status), job.RecordsProcessed, job.RecordsTotal,
		job.ErrorCount, job.ProgressPercentage, quality, toTimestamptz(job.StartedAt),
		toTimestamptz(job.FinishedAt), job.ErrorMessage)
	if err != nil {
		return wrap("update job", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdateProgress(ctx context.Context, id uuid.UUID, processed int, percent float64) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE processing_jobs SET
			records_processed   = GREATEST(records_processed, $2),
			progress_percentage = GREATEST(progress_percentage, $3)
		WHERE id = $1`, convert.ToPgUUID(&id), processed, percent)
	if err != nil {
		return wrap("update progress", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// AppendErrors queues every insert in one pgx batch.
func (p *Postgres) AppendErrors(ctx context.Context, errs []model.ProcessingError) error {
	if len(errs) == 0 {
		return nil
	}
	now := time.Now().UTC()

	batch := &pgx.Batch{}
	for _, e := range errs {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		batch.Queue(`
			INSERT INTO processing_errors
				(id, job_id, row_number, error_type, error_message, raw_value, severity, is_resolved, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			convert.ToPgUUID(&e.ID), convert.ToPgUUID(&e.JobID), e.RowNumber, e.ErrorType,
			e.ErrorMessage, e.RawValue, string(e.Severity), e.IsResolved, e.CreatedAt)
	}

	return wrap("append errors", p.pool.SendBatch(ctx, batch).Close())
}

func (p *Postgres) ListErrors(ctx context.Context, jobID uuid.UUID) ([]model.ProcessingError, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, job_id, row_number, error_type, error_message, raw_value, severity, is_resolved, created_at
		FROM processing_errors
		WHERE job_id = $1
		ORDER BY row_number, created_at`, convert.ToPgUUID(&jobID))
	if err != nil {
		return nil, wrap("list errors", err)
	}
	defer rows.Close()

	out := make([]model.ProcessingError, 0)
	for rows.Next() {
		var (
			e        model.ProcessingError
			id, jid  pgtype.UUID
			severity string
		)
		if err := rows.Scan(&id, &jid, &e.RowNumber, &e.ErrorType, &e.ErrorMessage,
			&e.RawValue, &severity, &e.IsResolved, &e.CreatedAt); err != nil {
			return nil, wrap("scan error", err)
		}
		e.ID = *convert.FromPgUUID(id)
		e.JobID = *convert.FromPgUUID(jid)
		e.Severity = model.Severity(severity)
		out = append(out, e)
	}
	return out, wrap("list errors", rows.Err())
}

func (p *Postgres) ResolveError(ctx context.Context, jobID, errorID uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE processing_errors SET is_resolved = true
		WHERE id = $1 AND job_id = $2`,
		convert.ToPgUUID(&errorID), convert.ToPgUUID(&jobID))
	if err != nil {
		return wrap("resolve error", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Package store persists uploads, analyses, mappings, dimension dictionaries,
// fact records, processing jobs and their row errors.
//
// Two implementations share the Store interface: Postgres (pgx) for the
// service, and an in-memory store for the CLI and tests. Both guarantee that
// dictionary get-or-create is race-free: concurrent callers asking for the
// same natural key receive the same record.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/JonMunkholm/factflow/internal/model"
)

// Uploads registers files for analysis and processing.
type Uploads interface {
	CreateUpload(ctx context.Context, u *model.UploadJob) error
	GetUpload(ctx context.Context, id uuid.UUID) (*model.UploadJob, error)
}

// Analyses stores structure-analysis results.
type Analyses interface {
	CreateAnalysis(ctx context.Context, a *model.Analysis) error
	GetAnalysis(ctx context.Context, id uuid.UUID) (*model.Analysis, error)
	// FindAnalysis returns the analysis of uploadID with the given content
	// fingerprint, or ErrNotFound.
	FindAnalysis(ctx context.Context, uploadID uuid.UUID, fingerprint string) (*model.Analysis, error)
	// LatestAnalysis returns the most recent analysis of uploadID.
	LatestAnalysis(ctx context.Context, uploadID uuid.UUID) (*model.Analysis, error)
}

// Mappings stores dimension mappings, at most one per (analysis, column).
type Mappings interface {
	// UpsertMapping inserts m or replaces the mapping already stored for
	// its (AnalysisID, ColumnIndex). The stored record is returned; a
	// replaced mapping keeps its ID.
	UpsertMapping(ctx context.Context, m model.DimensionMapping) (model.DimensionMapping, error)
	ListMappings(ctx context.Context, analysisID uuid.UUID) ([]model.DimensionMapping, error)
	DeleteMapping(ctx context.Context, analysisID uuid.UUID, columnIndex int) error
}

// Dimensions are append-only dictionaries keyed by natural value.
type Dimensions interface {
	// GetOrCreateIndicator interns an indicator by name. Unit, Source and
	// Goal fill empty fields of an existing indicator; they never overwrite.
	GetOrCreateIndicator(ctx context.Context, ind model.Indicator) (model.Indicator, error)
	GetOrCreateTime(ctx context.Context, value string) (model.DimTime, error)
	GetOrCreateLocation(ctx context.Context, value string) (model.DimLocation, error)
	GetOrCreateGeneric(ctx context.Context, dimensionName, value string) (model.DimGeneric, error)
}

// Facts stores fact records.
type Facts interface {
	// InsertFacts writes one batch atomically.
	InsertFacts(ctx context.Context, facts []model.FactRecord) error
	ListFacts(ctx context.Context, jobID uuid.UUID) ([]model.FactRecord, error)
	// SupersedeFacts deletes every fact written by a job of uploadID other
	// than keepJobID, returning the number removed.
	SupersedeFacts(ctx context.Context, uploadID, keepJobID uuid.UUID) (int64, error)
	// DeleteJobFacts deletes the facts written by one job.
	DeleteJobFacts(ctx context.Context, jobID uuid.UUID) (int64, error)
}

// Jobs stores processing jobs and their error ledger.
type Jobs interface {
	CreateJob(ctx context.Context, job *model.ProcessingJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*model.ProcessingJob, error)
	// LatestJob returns the most recently created job of uploadID.
	LatestJob(ctx context.Context, uploadID uuid.UUID) (*model.ProcessingJob, error)
	ListJobs(ctx context.Context, uploadID uuid.UUID) ([]model.ProcessingJob, error)
	// ListUnfinishedJobs returns every PENDING or RUNNING job, oldest first.
	ListUnfinishedJobs(ctx context.Context) ([]model.ProcessingJob, error)
	// UpdateJob writes status, counters, quality and timestamps.
	UpdateJob(ctx context.Context, job *model.ProcessingJob) error
	// UpdateProgress raises RecordsProcessed and ProgressPercentage. Values
	// lower than the stored ones are ignored.
	UpdateProgress(ctx context.Context, id uuid.UUID, processed int, percent float64) error
	AppendErrors(ctx context.Context, errs []model.ProcessingError) error
	ListErrors(ctx context.Context, jobID uuid.UUID) ([]model.ProcessingError, error)
	ResolveError(ctx context.Context, jobID, errorID uuid.UUID) error
}

// Store is the full persistence surface.
type Store interface {
	Uploads
	Analyses
	Mappings
	Dimensions
	Facts
	Jobs
	Close()
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/factflow/internal/model"
)

type mappingKey struct {
	analysisID  uuid.UUID
	columnIndex int
}

type genericKey struct {
	name  string
	value string
}

// Memory is an in-process Store guarded by a single RWMutex. Records are
// copied on the way in and out so callers never share state with the store.
type Memory struct {
	mu sync.RWMutex

	uploads    map[uuid.UUID]model.UploadJob
	analyses   map[uuid.UUID]model.Analysis
	mappings   map[mappingKey]model.DimensionMapping
	indicators map[string]model.Indicator
	times      map[string]model.DimTime
	locations  map[string]model.DimLocation
	generics   map[genericKey]model.DimGeneric
	facts      []model.FactRecord
	jobs       map[uuid.UUID]model.ProcessingJob
	jobOrder   []uuid.UUID
	errors     []model.ProcessingError
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		uploads:    make(map[uuid.UUID]model.UploadJob),
		analyses:   make(map[uuid.UUID]model.Analysis),
		mappings:   make(map[mappingKey]model.DimensionMapping),
		indicators: make(map[string]model.Indicator),
		times:      make(map[string]model.DimTime),
		locations:  make(map[string]model.DimLocation),
		generics:   make(map[genericKey]model.DimGeneric),
		jobs:       make(map[uuid.UUID]model.ProcessingJob),
	}
}

// Close is a no-op.
func (m *Memory) Close() {}

/* ----------------------------------------
	UPLOADS & ANALYSES
---------------------------------------- */

func (m *Memory) CreateUpload(ctx context.Context, u *model.UploadJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.uploads[u.ID] = *u
	return nil
}

func (m *Memory) GetUpload(ctx context.Context, id uuid.UUID) (*model.UploadJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.uploads[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &u, nil
}

func (m *Memory) CreateAnalysis(ctx context.Context, a *model.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.analyses[a.ID] = cloneAnalysis(*a)
	return nil
}

func (m *Memory) GetAnalysis(ctx context.Context, id uuid.UUID) (*model.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.analyses[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	a = cloneAnalysis(a)
	return &a, nil
}

func (m *Memory) FindAnalysis(ctx context.Context, uploadID uuid.UUID, fingerprint string) (*model.Analysis, error) {
	return m.latestAnalysis(func(a model.Analysis) bool {
		return a.UploadJobID == uploadID && a.Fingerprint == fingerprint
	})
}

func (m *Memory) LatestAnalysis(ctx context.Context, uploadID uuid.UUID) (*model.Analysis, error) {
	return m.latestAnalysis(func(a model.Analysis) bool { return a.UploadJobID == uploadID })
}

func (m *Memory) latestAnalysis(match func(model.Analysis) bool) (*model.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *model.Analysis
	for _, a := range m.analyses {
		if !match(a) {
			continue
		}
		if found == nil || a.CreatedAt.After(found.CreatedAt) {
			a := cloneAnalysis(a)
			found = &a
		}
	}
	if found == nil {
		return nil, model.ErrNotFound
	}
	return found, nil
}

func cloneAnalysis(a model.Analysis) model.Analysis {
	a.Headers = append([]string(nil), a.Headers...)
	cols := make([]model.ColumnProfile, len(a.Columns))
	for i, c := range a.Columns {
		c.SampleValues = append([]string(nil), c.SampleValues...)
		cols[i] = c
	}
	a.Columns = cols
	return a
}

/* ----------------------------------------
	MAPPINGS
---------------------------------------- */

func (m *Memory) UpsertMapping(ctx context.Context, dm model.DimensionMapping) (model.DimensionMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := mappingKey{dm.AnalysisID, dm.ColumnIndex}
	if prev, ok := m.mappings[key]; ok {
		dm.ID = prev.ID
	} else if dm.ID == uuid.Nil {
		dm.ID = uuid.New()
	}
	dm.UpdatedAt = time.Now().UTC()
	dm.MappingRules = cloneRules(dm.MappingRules)
	m.mappings[key] = dm
	return dm, nil
}

func (m *Memory) ListMappings(ctx context.Context, analysisID uuid.UUID) ([]model.DimensionMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.DimensionMapping, 0)
	for key, dm := range m.mappings {
		if key.analysisID == analysisID {
			dm.MappingRules = cloneRules(dm.MappingRules)
			out = append(out, dm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ColumnIndex < out[j].ColumnIndex })
	return out, nil
}

func (m *Memory) DeleteMapping(ctx context.Context, analysisID uuid.UUID, columnIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := mappingKey{analysisID, columnIndex}
	if _, ok := m.mappings[key]; !ok {
		return model.ErrNotFound
	}
	delete(m.mappings, key)
	return nil
}

func cloneRules(rules map[string]string) map[string]string {
	if rules == nil {
		return nil
	}
	out := make(map[string]string, len(rules))
	for k, v := range rules {
		out[k] = v
	}
	return out
}

/* ----------------------------------------
	DIMENSIONS
---------------------------------------- */

func (m *Memory) GetOrCreateIndicator(ctx context.Context, ind model.Indicator) (model.Indicator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.indicators[ind.Name]
	if !ok {
		ind.ID = uuid.New()
		m.indicators[ind.Name] = ind
		return ind, nil
	}
	existing.Unit = firstNonEmpty(existing.Unit, ind.Unit)
	existing.Source = firstNonEmpty(existing.Source, ind.Source)
	existing.Goal = firstNonEmpty(existing.Goal, ind.Goal)
	m.indicators[ind.Name] = existing
	return existing, nil
}

func (m *Memory) GetOrCreateTime(ctx context.Context, value string) (model.DimTime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.times[value]; ok {
		return t, nil
	}
	t := model.DimTime{ID: uuid.New(), Value: value}
	m.times[value] = t
	return t, nil
}

func (m *Memory) GetOrCreateLocation(ctx context.Context, value string) (model.DimLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locations[value]; ok {
		return l, nil
	}
	l := model.DimLocation{ID: uuid.New(), Value: value}
	m.locations[value] = l
	return l, nil
}

func (m *Memory) GetOrCreateGeneric(ctx context.Context, dimensionName, value string) (model.DimGeneric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := genericKey{dimensionName, value}
	if g, ok := m.generics[key]; ok {
		return g, nil
	}
	g := model.DimGeneric{ID: uuid.New(), DimensionName: dimensionName, Value: value}
	m.generics[key] = g
	return g, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

/* ----------------------------------------
	FACTS
---------------------------------------- */

func (m *Memory) InsertFacts(ctx context.Context, facts []model.FactRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, f := range facts {
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = now
		}
		f.GenericIDs = append([]uuid.UUID(nil), f.GenericIDs...)
		m.facts = append(m.facts, f)
	}
	return nil
}

func (m *Memory) ListFacts(ctx context.Context, jobID uuid.UUID) ([]model.FactRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.FactRecord, 0)
	for _, f := range m.facts {
		if f.JobID == jobID {
			f.GenericIDs = append([]uuid.UUID(nil), f.GenericIDs...)
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *Memory) SupersedeFacts(ctx context.Context, uploadID, keepJobID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.facts[:0]
	var removed int64
	for _, f := range m.facts {
		job, ok := m.jobs[f.JobID]
		if ok && job.UploadJobID == uploadID && f.JobID != keepJobID {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	m.facts = kept
	return removed, nil
}

func (m *Memory) DeleteJobFacts(ctx context.Context, jobID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.facts[:0]
	var removed int64
	for _, f := range m.facts {
		if f.JobID == jobID {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	m.facts = kept
	return removed, nil
}

/* ----------------------------------------
	JOBS
---------------------------------------- */

func (m *Memory) CreateJob(ctx context.Context, job *model.ProcessingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	m.jobs[job.ID] = *job
	m.jobOrder = append(m.jobOrder, job.ID)
	return nil
}

func (m *Memory) GetJob(ctx context.Context, id uuid.UUID) (*model.ProcessingJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &job, nil
}

func (m *Memory) LatestJob(ctx context.Context, uploadID uuid.UUID) (*model.ProcessingJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.jobOrder) - 1; i >= 0; i-- {
		if job := m.jobs[m.jobOrder[i]]; job.UploadJobID == uploadID {
			return &job, nil
		}
	}
	return nil, model.ErrNotFound
}

// ListJobs returns the jobs of uploadID, newest first.
func (m *Memory) ListJobs(ctx context.Context, uploadID uuid.UUID) ([]model.ProcessingJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ProcessingJob, 0)
	for i := len(m.jobOrder) - 1; i >= 0; i-- {
		if job := m.jobs[m.jobOrder[i]]; job.UploadJobID == uploadID {
			out = append(out, job)
		}
	}
	return out, nil
}

func (m *Memory) ListUnfinishedJobs(ctx context.Context) ([]model.ProcessingJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ProcessingJob, 0)
	for _, id := range m.jobOrder {
		if job := m.jobs[id]; !job.Status.Terminal() {
			out = append(out, job)
		}
	}
	return out, nil
}

func (m *Memory) UpdateJob(ctx context.Context, job *model.ProcessingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.jobs[job.ID]
	if !ok {
		return model.ErrNotFound
	}
	next := *job
	if prev.RecordsProcessed > next.RecordsProcessed {
		next.RecordsProcessed = prev.RecordsProcessed
	}
	if prev.ProgressPercentage > next.ProgressPercentage {
		next.ProgressPercentage = prev.ProgressPercentage
	}
	m.jobs[job.ID] = next
	return nil
}

func (m *Memory) UpdateProgress(ctx context.Context, id uuid.UUID, processed int, percent float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return model.ErrNotFound
	}
	job.RecordsProcessed = max(job.RecordsProcessed, processed)
	job.ProgressPercentage = max(job.ProgressPercentage, percent)
	m.jobs[id] = job
	return nil
}

func (m *Memory) AppendErrors(ctx context.Context, errs []model.ProcessingError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, e := range errs {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		m.errors = append(m.errors, e)
	}
	return nil
}

// ListErrors returns the error ledger of a job ordered by row number.
func (m *Memory) ListErrors(ctx context.Context, jobID uuid.UUID) ([]model.ProcessingError, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ProcessingError, 0)
	for _, e := range m.errors {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out, nil
}

func (m *Memory) ResolveError(ctx context.Context, jobID, errorID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.errors {
		if m.errors[i].ID == errorID && m.errors[i].JobID == jobID {
			m.errors[i].IsResolved = true
			return nil
		}
	}
	return model.ErrNotFound
}

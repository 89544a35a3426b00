package core

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/JonMunkholm/factflow/internal/jobs"
	"github.com/JonMunkholm/factflow/internal/mapping"
	"github.com/JonMunkholm/factflow/internal/model"
	"github.com/JonMunkholm/factflow/internal/store"
	"github.com/JonMunkholm/factflow/internal/structure"
)

// ErrInvalidInput marks caller mistakes: bad column indexes, unknown
// dimension types, malformed rules.
var ErrInvalidInput = errors.New("invalid input")

// DefaultMaxFileSize is the upload size limit when Options leave it zero.
const DefaultMaxFileSize int64 = 100 << 20

// DefaultMappingSampleRows is how many data rows feed mapping suggestions.
const DefaultMappingSampleRows = 100

// Options configures a Service.
type Options struct {
	UploadDir         string
	MaxFileSize       int64
	ProfileRows       int // Data rows profiled per column during analysis
	MappingSampleRows int // Data rows scored by the mapping detectors
}

// Service provides the core business logic. It is safe for concurrent use.
type Service struct {
	store    store.Store
	analyzer *structure.Analyzer
	engine   *mapping.Engine
	jobs     *jobs.Controller
	opts     Options

	// analyses collapses concurrent analysis of the same upload.
	analyses singleflight.Group
}

// NewService wires the service. The controller must have been built on the
// same store.
func NewService(st store.Store, engine *mapping.Engine, controller *jobs.Controller, opts Options) *Service {
	if opts.UploadDir == "" {
		opts.UploadDir = "uploads"
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.MappingSampleRows <= 0 {
		opts.MappingSampleRows = DefaultMappingSampleRows
	}
	if engine == nil {
		engine = mapping.NewEngine(nil, mapping.DefaultThreshold)
	}
	return &Service{
		store:    st,
		analyzer: structure.NewAnalyzer(opts.ProfileRows),
		engine:   engine,
		jobs:     controller,
		opts:     opts,
	}
}

// Engine returns the mapping engine.
func (s *Service) Engine() *mapping.Engine {
	return s.engine
}

// Jobs returns the job controller.
func (s *Service) Jobs() *jobs.Controller {
	return s.jobs
}

// WaitForJobs blocks until every running job has finished. Used for
// graceful shutdown.
func (s *Service) WaitForJobs(ctx context.Context) error {
	if err := s.jobs.Wait(ctx); err != nil {
		return err
	}
	return s.jobs.Limiter().WaitForDrain(ctx)
}

// LimiterStatus reports processing slot usage.
func (s *Service) LimiterStatus() jobs.LimiterStatus {
	return s.jobs.Limiter().Status()
}

func (s *Service) upload(ctx context.Context, id uuid.UUID) (*model.UploadJob, error) {
	u, err := s.store.GetUpload(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", id, err)
	}
	return u, nil
}

func (s *Service) analysis(ctx context.Context, id uuid.UUID) (*model.Analysis, error) {
	a, err := s.store.GetAnalysis(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("analysis not found: %s: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("analysis %s: %w", id, err)
	}
	return a, nil
}

// loadTable re-parses an analyzed upload with the analysis's settings.
func (s *Service) loadTable(u *model.UploadJob, a *model.Analysis) (*model.RawTable, error) {
	delimiter, _ := utf8.DecodeRuneInString(a.Delimiter)
	if delimiter == utf8.RuneError {
		delimiter = ','
	}
	return structure.LoadTable(u.Path, a.Encoding, delimiter, a.HasHeader)
}

// sampleRows returns the leading data rows used for mapping suggestions.
func (s *Service) sampleRows(table *model.RawTable) [][]string {
	rows := table.DataRows()
	return rows[:min(len(rows), s.opts.MappingSampleRows)]
}

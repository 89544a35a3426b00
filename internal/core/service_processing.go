package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/JonMunkholm/factflow/internal/jobs"
	"github.com/JonMunkholm/factflow/internal/logging"
	"github.com/JonMunkholm/factflow/internal/mapping"
	"github.com/JonMunkholm/factflow/internal/model"
	"github.com/JonMunkholm/factflow/internal/transform"
)

// StartProcessing submits a background job transforming the upload's latest
// analysis with its mapping set and returns the PENDING job immediately.
//
// It fails with model.ErrJobInProgress while an earlier job of the upload is
// unfinished, and with a *model.MappingError when the mapping set lacks a
// required role.
func (s *Service) StartProcessing(ctx context.Context, uploadID uuid.UUID) (*model.ProcessingJob, error) {
	u, err := s.upload(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	a, err := s.store.LatestAnalysis(ctx, uploadID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("analysis not found for upload %s: %w", uploadID, err)
	}
	if err != nil {
		return nil, model.Infra("load analysis", err)
	}

	mappings, table, err := s.effectiveMappings(ctx, a)
	if err != nil {
		return nil, err
	}
	if result := s.engine.Validate(mappings); !result.IsValid {
		return nil, &model.MappingError{Problems: result.Errors}
	}

	prepare := func(ctx context.Context) (transform.Input, error) {
		return transform.Input{
			SourceFile:  u.FileName,
			Table:       table,
			Mappings:    mappings,
			Orientation: mapping.DetectOrientation(mappings, table),
		}, nil
	}

	job, err := s.jobs.Submit(ctx, jobs.Request{
		UploadJobID: uploadID,
		AnalysisID:  a.ID,
		Prepare:     prepare,
	})
	if err != nil {
		return nil, err
	}

	logging.WithJob(ctx, job.ID, uploadID).Info("processing submitted",
		"analysis_id", a.ID,
		"mappings", len(mappings),
	)
	return job, nil
}

// JobStatus returns the state and progress of a job.
func (s *Service) JobStatus(ctx context.Context, jobID uuid.UUID) (*model.ProcessingJob, error) {
	job, err := s.jobs.Status(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", jobID, err)
	}
	return job, nil
}

// JobErrors returns the error ledger of a job ordered by row number.
func (s *Service) JobErrors(ctx context.Context, jobID uuid.UUID) ([]model.ProcessingError, error) {
	errs, err := s.jobs.Errors(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", jobID, err)
	}
	return errs, nil
}

// ResolveError flags one entry of a job's error ledger as resolved.
func (s *Service) ResolveError(ctx context.Context, jobID, errorID uuid.UUID) error {
	if err := s.store.ResolveError(ctx, jobID, errorID); err != nil {
		return fmt.Errorf("error %s of job %s: %w", errorID, jobID, err)
	}
	return nil
}

// ListJobs returns the jobs of an upload, newest first.
func (s *Service) ListJobs(ctx context.Context, uploadID uuid.UUID) ([]model.ProcessingJob, error) {
	if _, err := s.upload(ctx, uploadID); err != nil {
		return nil, err
	}
	return s.store.ListJobs(ctx, uploadID)
}

// ListFacts returns the fact records a job wrote.
func (s *Service) ListFacts(ctx context.Context, jobID uuid.UUID) ([]model.FactRecord, error) {
	if _, err := s.JobStatus(ctx, jobID); err != nil {
		return nil, err
	}
	return s.store.ListFacts(ctx, jobID)
}

// SubscribeProgress streams a job's progress events until it finishes.
// The returned cancel func must be called when the caller stops reading.
func (s *Service) SubscribeProgress(ctx context.Context, jobID uuid.UUID) (<-chan jobs.Event, func(), error) {
	job, err := s.JobStatus(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	events, cancel := s.jobs.Broker().Subscribe(jobID)

	// A job that finished before the subscription gets its final state
	// replayed instead of an empty stream.
	if job.Status.Terminal() || !s.jobs.Running(jobID) {
		cancel()
		current, err := s.JobStatus(ctx, jobID)
		if err != nil {
			return nil, nil, err
		}
		replay := make(chan jobs.Event, 1)
		replay <- jobs.EventFrom(current)
		close(replay)
		return replay, func() {}, nil
	}
	return events, cancel, nil
}

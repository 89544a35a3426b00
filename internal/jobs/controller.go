// Package jobs runs transformations in the background and owns the job
// lifecycle: creation, the PENDING → RUNNING → COMPLETED/FAILED state
// machine, concurrency limits and progress reporting.
//
// Each job is driven by exactly one goroutine. That goroutine is the only
// writer of the job's counters, so progress never moves backwards; the store
// guards against stale writes as well.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/factflow/internal/logging"
	"github.com/JonMunkholm/factflow/internal/model"
	"github.com/JonMunkholm/factflow/internal/store"
	"github.com/JonMunkholm/factflow/internal/transform"
)

// Store is the persistence a controller needs.
type Store interface {
	store.Jobs
	SupersedeFacts(ctx context.Context, uploadID, keepJobID uuid.UUID) (int64, error)
	DeleteJobFacts(ctx context.Context, jobID uuid.UUID) (int64, error)
}

// Runner executes one transformation.
type Runner interface {
	Run(ctx context.Context, in transform.Input) (*transform.Result, error)
	BatchSize() int
}

// PrepareFunc loads a job's input (the parsed table and its mappings). It
// runs on the job's goroutine after a processing slot is acquired; JobID and
// Progress are filled in by the controller.
type PrepareFunc func(ctx context.Context) (transform.Input, error)

// Request describes a job to submit.
type Request struct {
	UploadJobID uuid.UUID
	AnalysisID  uuid.UUID
	Prepare     PrepareFunc
}

// Controller submits and tracks processing jobs.
type Controller struct {
	store      Store
	runner     Runner
	limiter    *Limiter
	broker     *Broker
	publishers []Publisher

	submitMu sync.Mutex
	mu       sync.Mutex
	running  map[uuid.UUID]struct{}
	wg       sync.WaitGroup
}

// NewController returns a controller. Events always reach the in-process
// broker; extra publishers (a Redis mirror) receive them as well.
func NewController(s Store, runner Runner, limiter *Limiter, publishers ...Publisher) *Controller {
	if limiter == nil {
		limiter = NewLimiter(0, 0)
	}
	return &Controller{
		store:      s,
		runner:     runner,
		limiter:    limiter,
		broker:     NewBroker(),
		publishers: publishers,
		running:    make(map[uuid.UUID]struct{}),
	}
}

// Broker returns the in-process event broker.
func (c *Controller) Broker() *Broker {
	return c.broker
}

// Limiter returns the controller's concurrency limiter.
func (c *Controller) Limiter() *Limiter {
	return c.limiter
}

// Submit creates a PENDING job and starts it in the background. It fails
// with model.ErrJobInProgress when the upload's latest job has not finished.
func (c *Controller) Submit(ctx context.Context, req Request) (*model.ProcessingJob, error) {
	if req.Prepare == nil {
		return nil, errors.New("submit job: nil prepare func")
	}

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	latest, err := c.store.LatestJob(ctx, req.UploadJobID)
	switch {
	case err == nil && !latest.Status.Terminal():
		return nil, fmt.Errorf("%w: job %s is %s", model.ErrJobInProgress, latest.ID, latest.Status)
	case err != nil && !errors.Is(err, model.ErrNotFound):
		return nil, model.Infra("load latest job", err)
	}

	job := &model.ProcessingJob{
		ID:          uuid.New(),
		UploadJobID: req.UploadJobID,
		AnalysisID:  req.AnalysisID,
		Status:      model.JobPending,
		BatchSize:   c.runner.BatchSize(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := c.store.CreateJob(ctx, job); err != nil {
		return nil, model.Infra("create job", err)
	}

	c.mu.Lock()
	c.running[job.ID] = struct{}{}
	c.mu.Unlock()

	snapshot := *job
	c.wg.Add(1)
	// The job outlives the request that submitted it.
	go c.run(context.WithoutCancel(ctx), &snapshot, req.Prepare)

	return job, nil
}

// Status returns the stored state of a job.
func (c *Controller) Status(ctx context.Context, jobID uuid.UUID) (*model.ProcessingJob, error) {
	return c.store.GetJob(ctx, jobID)
}

// Errors returns a job's error ledger ordered by row.
func (c *Controller) Errors(ctx context.Context, jobID uuid.UUID) ([]model.ProcessingError, error) {
	if _, err := c.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return c.store.ListErrors(ctx, jobID)
}

// Running reports whether jobID is being driven by this controller.
func (c *Controller) Running(jobID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.running[jobID]
	return ok
}

// Wait blocks until every submitted job has finished or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) run(ctx context.Context, job *model.ProcessingJob, prepare PrepareFunc) {
	logger := logging.WithJob(ctx, job.ID, job.UploadJobID)
	start := time.Now()

	defer func() {
		c.mu.Lock()
		delete(c.running, job.ID)
		c.mu.Unlock()
		c.wg.Done()
	}()
	defer func() {
		if r := recover(); r != nil {
			c.fail(ctx, logger, job, fmt.Errorf("panic: %v", r))
		}
	}()

	c.emit(ctx, logger, job)

	if err := c.limiter.Acquire(ctx); err != nil {
		c.fail(ctx, logger, job, fmt.Errorf("waiting for processing slot: %w", err))
		return
	}
	defer c.limiter.Release()

	if err := c.transition(ctx, logger, job, model.JobRunning); err != nil {
		c.fail(ctx, logger, job, err)
		return
	}
	logger.Info("job started", "analysis_id", job.AnalysisID)

	in, err := prepare(ctx)
	if err != nil {
		c.fail(ctx, logger, job, err)
		return
	}
	in.JobID = job.ID
	in.Progress = func(processed, total int) {
		c.progress(ctx, logger, job, processed, total)
	}

	result, err := c.runner.Run(ctx, in)
	if result != nil {
		job.ErrorCount = result.ErrorCount
		score := result.Quality.QualityScore
		job.QualityScore = &score
	}
	if err != nil {
		c.discard(ctx, logger, job)
		c.fail(ctx, logger, job, err)
		return
	}

	// Earlier runs of the upload keep their facts until this one succeeds.
	removed, err := c.store.SupersedeFacts(ctx, job.UploadJobID, job.ID)
	if err != nil {
		c.discard(ctx, logger, job)
		c.fail(ctx, logger, job, model.Infra("supersede earlier facts", err))
		return
	}
	if removed > 0 {
		logger.Info("superseded facts of earlier jobs", "removed", removed)
	}

	job.ProgressPercentage = 100
	if err := c.transition(ctx, logger, job, model.JobCompleted); err != nil {
		logger.Error("complete job", "error", err)
		return
	}
	logger.Info("job completed",
		"records", job.RecordsProcessed,
		"errors", job.ErrorCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// progress records a batch. Failures to persist progress are logged; they
// do not fail the job.
func (c *Controller) progress(ctx context.Context, logger *slog.Logger, job *model.ProcessingJob, processed, total int) {
	job.RecordsTotal = total
	job.RecordsProcessed = processed
	job.ProgressPercentage = percent(processed, total)

	var err error
	if processed == 0 {
		err = c.store.UpdateJob(ctx, job)
	} else {
		err = c.store.UpdateProgress(ctx, job.ID, processed, job.ProgressPercentage)
	}
	if err != nil {
		logger.Warn("persist job progress", "error", err)
	}
	c.emit(ctx, logger, job)
}

func percent(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(processed)/float64(total)*10000) / 100
}

func (c *Controller) transition(ctx context.Context, logger *slog.Logger, job *model.ProcessingJob, to model.JobStatus) error {
	if err := Transition(job, to, time.Now().UTC()); err != nil {
		return err
	}
	if err := c.store.UpdateJob(ctx, job); err != nil {
		return model.Infra("update job", err)
	}
	c.emit(ctx, logger, job)
	return nil
}

// fail marks job FAILED with err as its message. Errors already recorded
// against the job are kept.
func (c *Controller) fail(ctx context.Context, logger *slog.Logger, job *model.ProcessingJob, err error) {
	logger.Error("job failed", "error", err, "status", job.Status)
	job.ErrorMessage = err.Error()
	if terr := c.transition(ctx, logger, job, model.JobFailed); terr != nil {
		logger.Error("mark job failed", "error", terr)
	}
}

// discard removes the facts a failed job managed to write. It runs even
// when ctx is cancelled.
func (c *Controller) discard(ctx context.Context, logger *slog.Logger, job *model.ProcessingJob) {
	removed, err := c.store.DeleteJobFacts(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		logger.Error("discard partial facts", "error", err)
		return
	}
	if removed > 0 {
		logger.Info("discarded partial facts", "removed", removed)
	}
}

func (c *Controller) emit(ctx context.Context, logger *slog.Logger, job *model.ProcessingJob) {
	e := EventFrom(job)
	_ = c.broker.Publish(ctx, e)
	for _, p := range c.publishers {
		if err := p.Publish(ctx, e); err != nil {
			logger.Warn("publish job progress", "error", err)
		}
	}
}

// Package transform is the ETL core: it turns an analyzed table and its
// dimension mappings into deduplicated, quality-scored fact records and
// writes them in batches.
//
// Row-level problems (unparseable numbers, empty indicator names, implausible
// values) are collected as ProcessingErrors and never stop a run. Only
// infrastructure failures, a store rejecting a write, abort it.
package transform

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/factflow/internal/logging"
	"github.com/JonMunkholm/factflow/internal/model"
	"github.com/JonMunkholm/factflow/internal/store"
)

var tracer = otel.Tracer("github.com/JonMunkholm/factflow/internal/transform")

// Defaults applied by NewPipeline when Options leave a field zero.
const (
	DefaultBatchSize            = 1000
	DefaultWorkers              = 4
	DefaultAggregationThreshold = 0.8
)

// ProgressFunc observes persistence progress. It is called from a single
// goroutine after every batch, so processed never decreases.
type ProgressFunc func(processed, total int)

// Options tunes a Pipeline.
type Options struct {
	BatchSize            int
	Workers              int
	AggregationThreshold float64
}

// Sink is the slice of the store a pipeline run writes to.
type Sink interface {
	store.Dimensions
	InsertFacts(ctx context.Context, facts []model.FactRecord) error
	AppendErrors(ctx context.Context, errs []model.ProcessingError) error
}

// Pipeline runs transformations against a store. Each Run interns its
// dimension values through its own Resolver.
type Pipeline struct {
	sink Sink
	opts Options
}

// NewPipeline returns a pipeline writing to sink.
func NewPipeline(sink Sink, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.AggregationThreshold <= 0 {
		opts.AggregationThreshold = DefaultAggregationThreshold
	}
	return &Pipeline{sink: sink, opts: opts}
}

// BatchSize returns the effective batch size.
func (p *Pipeline) BatchSize() int {
	return p.opts.BatchSize
}

// Input is one run's worth of work.
type Input struct {
	JobID       uuid.UUID
	SourceFile  string
	Table       *model.RawTable
	Mappings    []model.DimensionMapping
	Orientation model.Orientation
	Progress    ProgressFunc
}

// Result summarizes a completed run.
type Result struct {
	Persisted  int
	Aggregated int
	Quality    QualityReport
	ErrorCount int
}

// Run extracts, resolves, deduplicates, scores, aggregates and persists.
// Row errors are written to the job's ledger before any fact so that a run
// failing mid-way keeps them. The returned error is always an
// InfrastructureError or a context error.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	ctx, span := tracer.Start(ctx, "transform.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", in.JobID.String()),
		attribute.String("orientation", string(in.Orientation)),
	)

	logger := logging.WithFields(ctx, "job_id", in.JobID)
	result := &Result{}

	observations, rowErrs := Extract(in.Table, in.Mappings, in.Orientation)
	span.AddEvent("extracted", trace.WithAttributes(
		attribute.Int("observations", len(observations)),
		attribute.Int("row_errors", len(rowErrs)),
	))

	records, err := p.resolveAll(ctx, NewResolver(p.sink), observations, in)
	if err != nil {
		return p.fail(span, result, err)
	}

	valid := make([]model.FactRecord, 0, len(records))
	var invalid []model.FactRecord
	for _, r := range records {
		if Valid(&r) {
			valid = append(valid, r)
		} else {
			invalid = append(invalid, r)
		}
	}
	valid = Dedupe(valid)

	result.Quality = ValidateDataQuality(append(append([]model.FactRecord(nil), valid...), invalid...))
	rowErrs = append(rowErrs, result.Quality.Warnings...)
	result.ErrorCount = len(rowErrs)

	if err := p.appendErrors(ctx, in.JobID, rowErrs); err != nil {
		return p.fail(span, result, err)
	}

	toWrite := valid
	if result.Quality.QualityScore > p.opts.AggregationThreshold {
		aggregates := Aggregate(valid, in.JobID, in.SourceFile)
		result.Aggregated = len(aggregates)
		toWrite = append(toWrite, aggregates...)
	}

	if err := p.persist(ctx, toWrite, in.Progress, result); err != nil {
		return p.fail(span, result, err)
	}

	span.SetAttributes(
		attribute.Int("records.persisted", result.Persisted),
		attribute.Float64("quality.score", result.Quality.QualityScore),
	)
	logger.Info("transformation complete",
		"persisted", result.Persisted,
		"aggregated", result.Aggregated,
		"row_errors", result.ErrorCount,
		"quality", result.Quality.QualityScore,
	)
	return result, nil
}

func (p *Pipeline) fail(span trace.Span, result *Result, err error) (*Result, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return result, err
}

// resolveAll interns every observation on a bounded worker pool. Output
// order matches input order.
func (p *Pipeline) resolveAll(ctx context.Context, resolver *Resolver, observations []Observation, in Input) ([]model.FactRecord, error) {
	ctx, span := tracer.Start(ctx, "transform.resolve")
	defer span.End()

	records := make([]model.FactRecord, len(observations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for i := range observations {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := resolver.Record(gctx, observations[i], in.JobID, in.SourceFile)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (p *Pipeline) appendErrors(ctx context.Context, jobID uuid.UUID, errs []model.ProcessingError) error {
	if len(errs) == 0 {
		return nil
	}
	for i := range errs {
		errs[i].JobID = jobID
	}
	if err := p.sink.AppendErrors(ctx, errs); err != nil {
		return model.Infra("record row errors", err)
	}
	return nil
}

// persist writes records in fixed-size batches and reports progress after
// each one.
func (p *Pipeline) persist(ctx context.Context, records []model.FactRecord, progress ProgressFunc, result *Result) error {
	ctx, span := tracer.Start(ctx, "transform.persist")
	defer span.End()

	total := len(records)
	if progress != nil {
		progress(0, total)
	}

	for start := 0; start < total; start += p.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+p.opts.BatchSize, total)

		if err := p.sink.InsertFacts(ctx, records[start:end]); err != nil {
			return model.Infra(fmt.Sprintf("insert batch %d-%d", start, end), err)
		}
		result.Persisted = end
		if progress != nil {
			progress(end, total)
		}
	}
	return nil
}

// Package ingest runs purchase-order CSV imports: normalization, batched
// commits to a record store, job tracking and publication of the tenant's
// columnar dataset.
package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/logflow/poflow/internal/model"
	pferrors "github.com/logflow/poflow/pkg/errors"
	"github.com/logflow/poflow/pkg/jobs"
	"github.com/logflow/poflow/pkg/logger"
	"github.com/logflow/poflow/pkg/normalize"
	"github.com/logflow/poflow/pkg/store"
	"github.com/logflow/poflow/pkg/writer"
)

// Config holds pipeline configuration.
type Config struct {
	// BatchSize is the number of valid records committed at once.
	BatchSize int

	// MaxErrorSamples is the number of rejection messages kept per job.
	MaxErrorSamples int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:       1000,
		MaxErrorSamples: model.MaxErrorSamples,
	}
}

// RunOptions are the per-import knobs.
type RunOptions struct {
	// SkipRows is the number of physical lines dropped before the header.
	SkipRows int

	// Progress, if set, is called after every committed batch.
	Progress func(Progress)
}

// Progress is a snapshot of a running import.
type Progress struct {
	BatchID      string `json:"batch_id"`
	TotalRows    int64  `json:"total_rows"`
	ImportedRows int64  `json:"imported_rows"`
	SkippedRows  int64  `json:"skipped_rows"`
	ErrorRows    int64  `json:"error_rows"`
	Batches      int    `json:"batches"`
}

// Result contains the outcome of an import.
type Result struct {
	BatchID      string
	Status       model.JobStatus
	TotalRows    int64
	ImportedRows int64
	SkippedRows  int64
	ErrorRows    int64
	ErrorSamples []string
	Published    *writer.WriteResult
	Duration     time.Duration
}

// Pipeline orchestrates the Reader -> Normalizer -> Store flow of one import.
// It holds no per-job state and can run many jobs concurrently.
type Pipeline struct {
	cfg        Config
	store      store.RecordStore
	tracker    jobs.Tracker
	dataset    *writer.Dataset
	onChange   func(companyCode string)
	onProgress func(Progress)
	log        *zap.Logger
	now        func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDataset publishes the tenant snapshot to ds after each job when the
// record store does not write the columnar artifact itself.
func WithDataset(ds *writer.Dataset) Option {
	return func(p *Pipeline) { p.dataset = ds }
}

// WithChangeHook registers a callback run after a tenant's data changed.
func WithChangeHook(fn func(companyCode string)) Option {
	return func(p *Pipeline) { p.onChange = fn }
}

// WithProgressHook registers a callback run after every committed batch of
// every job, in addition to RunOptions.Progress.
func WithProgressHook(fn func(Progress)) Option {
	return func(p *Pipeline) { p.onProgress = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// NewPipeline creates a new pipeline.
func NewPipeline(cfg Config, records store.RecordStore, tracker jobs.Tracker, opts ...Option) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MaxErrorSamples <= 0 {
		cfg.MaxErrorSamples = model.MaxErrorSamples
	}
	p := &Pipeline{
		cfg:     cfg,
		store:   records,
		tracker: tracker,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = logger.OrNop(p.log).Named("ingest")
	return p
}

// item is either a parsed row or a row that could not be read.
type item struct {
	row normalize.Row
	err *normalize.RowError
}

// Run imports input for an already created job and drives it to a terminal
// status. The returned error is non-nil only when the job failed.
func (p *Pipeline) Run(ctx context.Context, job *model.ImportJob, input io.Reader, opts RunOptions) (*Result, error) {
	start := time.Now()
	ctx, span := otel.Tracer("poflow/ingest").Start(ctx, "ingest.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch_id", job.BatchID),
		attribute.String("company_code", job.CompanyCode),
		attribute.String("mode", job.Mode.String()),
	)

	log := p.log.With(
		zap.String("batch_id", job.BatchID),
		zap.String("company_code", job.CompanyCode),
		zap.Stringer("mode", job.Mode),
	)
	res := &Result{BatchID: job.BatchID}

	fail := func(err error) (*Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "import failed")
		log.Error("import failed", zap.Error(err),
			zap.Int64("imported_rows", res.ImportedRows),
			zap.Int64("error_rows", res.ErrorRows))

		res.Status = model.StatusFailed
		res.Duration = time.Since(start)
		// The job record must reach a terminal state even if ctx is done.
		uctx := context.WithoutCancel(ctx)
		if uerr := p.tracker.Update(uctx, job.BatchID, model.JobUpdate{
			Status:       model.Ptr(model.StatusFailed),
			ImportedRows: model.Ptr(res.ImportedRows),
			SkippedRows:  model.Ptr(res.SkippedRows),
			ErrorRows:    model.Ptr(res.ErrorRows),
			ErrorMessage: model.Ptr(err.Error()),
			CompletedAt:  model.Ptr(p.now()),
		}); uerr != nil {
			log.Error("failed to mark job failed", zap.Error(uerr))
		}
		return res, err
	}

	reader, err := normalize.NewReader(input, opts.SkipRows)
	if err != nil {
		return fail(err)
	}
	if missing := reader.Columns().Missing(); len(missing) > 0 {
		return fail(pferrors.Newf(pferrors.CodeMissingHeader,
			"required columns not found: %s", strings.Join(missing, ", ")).
			WithContext("headers", strings.Join(reader.Headers(), ",")))
	}

	items, err := readItems(reader)
	if err != nil {
		return fail(err)
	}
	res.TotalRows = int64(len(items))

	if err := p.tracker.Update(ctx, job.BatchID, model.JobUpdate{
		Status:    model.Ptr(model.StatusProcessing),
		TotalRows: model.Ptr(res.TotalRows),
	}); err != nil {
		return fail(pferrors.Wrap(err, pferrors.CodeStorageUnavailable, "failed to update job"))
	}

	normalizer := normalize.New(normalize.Meta{
		CompanyCode: job.CompanyCode,
		BatchID:     job.BatchID,
		ImportedBy:  job.ImportedBy,
		ImportedAt:  p.now(),
		SourceFile:  job.Filename,
	})
	rejections := normalize.NewRejections(p.cfg.MaxErrorSamples)
	batch := newBatch(job.Mode, p.cfg.BatchSize)
	batches := 0

	commit := func() error {
		if batch.len() == 0 {
			res.SkippedRows += batch.duplicates
			batch.reset()
			return nil
		}
		imported, skipped, err := p.commit(ctx, job, batch.records())
		if err != nil {
			return err
		}
		batches++
		res.ImportedRows += imported - batch.superseded
		res.SkippedRows += skipped + batch.duplicates + batch.superseded
		res.ErrorRows = rejections.Count
		batch.reset()

		if err := p.tracker.Update(ctx, job.BatchID, model.JobUpdate{
			ImportedRows: model.Ptr(res.ImportedRows),
			SkippedRows:  model.Ptr(res.SkippedRows),
			ErrorRows:    model.Ptr(res.ErrorRows),
		}); err != nil {
			return pferrors.Wrap(err, pferrors.CodeStorageUnavailable, "failed to update job")
		}
		log.Debug("batch committed", zap.Int("batch", batches),
			zap.Int64("imported_rows", res.ImportedRows),
			zap.Int64("skipped_rows", res.SkippedRows))
		pr := Progress{
			BatchID:      job.BatchID,
			TotalRows:    res.TotalRows,
			ImportedRows: res.ImportedRows,
			SkippedRows:  res.SkippedRows,
			ErrorRows:    res.ErrorRows,
			Batches:      batches,
		}
		if opts.Progress != nil {
			opts.Progress(pr)
		}
		if p.onProgress != nil {
			p.onProgress(pr)
		}
		return nil
	}

	for _, it := range items {
		if it.err != nil {
			rejections.Add(it.err)
			continue
		}
		po, rowErr := normalizer.Normalize(it.row)
		if rowErr != nil {
			rejections.Add(rowErr)
			continue
		}
		if batch.add(po) {
			if err := commit(); err != nil {
				return fail(err)
			}
		}
	}
	if err := commit(); err != nil {
		return fail(err)
	}
	res.ErrorRows = rejections.Count
	res.ErrorSamples = rejections.Samples

	if p.dataset != nil && !store.Publishes(p.store) {
		published, err := p.publish(ctx, job.CompanyCode)
		if err != nil {
			return fail(err)
		}
		res.Published = published
	}
	if p.onChange != nil {
		p.onChange(job.CompanyCode)
	}

	res.Status = model.StatusCompleted
	if res.ErrorRows > 0 {
		res.Status = model.StatusCompletedWithErrors
	}
	final := model.JobUpdate{
		Status:       model.Ptr(res.Status),
		ImportedRows: model.Ptr(res.ImportedRows),
		SkippedRows:  model.Ptr(res.SkippedRows),
		ErrorRows:    model.Ptr(res.ErrorRows),
		CompletedAt:  model.Ptr(p.now()),
	}
	if rejections.Count > 0 {
		final.ErrorSamples = rejections.Samples
		final.ErrorMessage = model.Ptr(rejections.Message())
	}
	if err := p.tracker.Update(context.WithoutCancel(ctx), job.BatchID, final); err != nil {
		return fail(pferrors.Wrap(err, pferrors.CodeStorageUnavailable, "failed to finalize job"))
	}

	res.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int64("imported_rows", res.ImportedRows),
		attribute.Int64("skipped_rows", res.SkippedRows),
		attribute.Int64("error_rows", res.ErrorRows),
	)
	log.Info("import finished",
		zap.String("status", string(res.Status)),
		zap.Int64("total_rows", res.TotalRows),
		zap.Int64("imported_rows", res.ImportedRows),
		zap.Int64("skipped_rows", res.SkippedRows),
		zap.Int64("error_rows", res.ErrorRows),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// commit writes one batch under the job's duplicate policy.
func (p *Pipeline) commit(ctx context.Context, job *model.ImportJob, records []model.PurchaseOrder) (imported, skipped int64, err error) {
	if job.Mode == model.ModeOverwrite {
		n, err := p.store.ReplaceBatch(ctx, job.CompanyCode, records)
		if err != nil {
			return 0, 0, storeError(err, "failed to replace batch")
		}
		return n, 0, nil
	}

	n, err := p.store.InsertNew(ctx, job.CompanyCode, records)
	if err != nil {
		return 0, 0, storeError(err, "failed to insert batch")
	}
	return n, int64(len(records)) - n, nil
}

// publish rewrites the tenant dataset from the record store.
func (p *Pipeline) publish(ctx context.Context, companyCode string) (*writer.WriteResult, error) {
	snapshot, err := p.store.Snapshot(ctx, companyCode)
	if err != nil {
		return nil, storeError(err, "failed to snapshot records")
	}
	return p.dataset.Write(ctx, companyCode, snapshot, writer.ModeReplace)
}

// storeError keeps coded errors and marks everything else as storage failure.
func storeError(err error, msg string) error {
	var pe *pferrors.PoflowError
	if errors.As(err, &pe) {
		return err
	}
	return pferrors.Wrap(err, pferrors.CodeStorageUnavailable, msg)
}

// readItems drains the reader. Malformed lines become row errors.
func readItems(r *normalize.Reader) ([]item, error) {
	var items []item
	for {
		row, err := r.Next()
		if err == io.EOF {
			return items, nil
		}
		if err != nil {
			var pe *pferrors.PoflowError
			if !errors.As(err, &pe) || pe.Code != pferrors.CodeInvalidFormat {
				return nil, err
			}
			items = append(items, item{err: &normalize.RowError{
				Row:     row.Number,
				Code:    pferrors.CodeInvalidFormat,
				Message: "Malformed row: " + pe.Cause.Error(),
			}})
			continue
		}
		items = append(items, item{row: row})
	}
}

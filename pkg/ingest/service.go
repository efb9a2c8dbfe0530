package ingest

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/logflow/poflow/internal/model"
	pferrors "github.com/logflow/poflow/pkg/errors"
	"github.com/logflow/poflow/pkg/jobs"
	"github.com/logflow/poflow/pkg/normalize"
	"github.com/logflow/poflow/pkg/store"
	"github.com/logflow/poflow/pkg/writer"
)

// ImportRequest is one uploaded file and its import settings.
type ImportRequest struct {
	Data      []byte
	SkipRows  int
	Mode      model.ImportMode
	UserEmail string
	Filename  string
}

// Service is the tenant-facing entry point for imports and job management.
type Service struct {
	pipeline *Pipeline
	runner   *Runner
	poll     time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	running map[string]chan struct{}
}

// NewService wraps a pipeline and the runner its background jobs execute on.
func NewService(p *Pipeline, r *Runner) *Service {
	return &Service{
		pipeline: p,
		runner:   r,
		poll:     100 * time.Millisecond,
		log:      p.log.Named("service"),
		running:  make(map[string]chan struct{}),
	}
}

// track registers a job run by this service. The returned func must be
// called once the pipeline has returned.
func (s *Service) track(batchID string) func() {
	done := make(chan struct{})
	s.mu.Lock()
	s.running[batchID] = done
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.running, batchID)
		s.mu.Unlock()
		close(done)
	}
}

func (s *Service) done(batchID string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[batchID]
}

// Tracker returns the job tracker.
func (s *Service) Tracker() jobs.Tracker {
	return s.pipeline.tracker
}

// Records returns the record store.
func (s *Service) Records() store.RecordStore {
	return s.pipeline.store
}

// newJob validates the request and creates its job in processing state.
func (s *Service) newJob(ctx context.Context, tenant model.TenantContext, req ImportRequest) (*model.ImportJob, error) {
	if err := tenant.Validate(); err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeInvalidArgument, "invalid tenant")
	}
	if req.SkipRows < 0 {
		return nil, pferrors.InvalidArgument("skip_rows", req.SkipRows, "must not be negative")
	}
	mode, err := model.ParseImportMode(string(req.Mode))
	if err != nil {
		return nil, pferrors.InvalidArgument("mode", req.Mode, err.Error())
	}

	job := &model.ImportJob{
		BatchID:     uuid.NewString(),
		CompanyCode: tenant.CompanyCode,
		Filename:    req.Filename,
		ImportedBy:  req.UserEmail,
		Mode:        mode,
		Status:      model.StatusProcessing,
	}
	if err := s.pipeline.tracker.Create(ctx, job); err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeStorageUnavailable, "failed to create import job")
	}
	return job, nil
}

// StartImport creates the job and hands the file to a background worker.
// It returns as soon as the job is queued.
func (s *Service) StartImport(ctx context.Context, tenant model.TenantContext, req ImportRequest) (string, error) {
	data, err := payload(req)
	if err != nil {
		return "", err
	}
	job, err := s.newJob(ctx, tenant, req)
	if err != nil {
		return "", err
	}

	opts := RunOptions{SkipRows: req.SkipRows}
	finish := s.track(job.BatchID)
	err = s.runner.Submit(func(ctx context.Context) {
		defer finish()
		// Failures are recorded on the job by the pipeline.
		_, _ = s.pipeline.Run(ctx, job, bytes.NewReader(data), opts)
	})
	if err != nil {
		finish()
		s.log.Warn("import rejected", zap.String("batch_id", job.BatchID), zap.Error(err))
		_ = s.pipeline.tracker.Update(context.WithoutCancel(ctx), job.BatchID, model.JobUpdate{
			Status:       model.Ptr(model.StatusFailed),
			ErrorMessage: model.Ptr(err.Error()),
			CompletedAt:  model.Ptr(time.Now().UTC()),
		})
		return "", err
	}

	s.log.Info("import queued",
		zap.String("batch_id", job.BatchID),
		zap.String("company_code", job.CompanyCode),
		zap.String("filename", job.Filename),
		zap.Int("bytes", len(data)))
	return job.BatchID, nil
}

// Import runs an import in the caller's goroutine.
func (s *Service) Import(ctx context.Context, tenant model.TenantContext, req ImportRequest, opts RunOptions) (*Result, error) {
	data, err := payload(req)
	if err != nil {
		return nil, err
	}
	job, err := s.newJob(ctx, tenant, req)
	if err != nil {
		return nil, err
	}
	opts.SkipRows = req.SkipRows
	defer s.track(job.BatchID)()
	return s.pipeline.Run(ctx, job, bytes.NewReader(data), opts)
}

// payload returns the upload as CSV, converting Excel workbooks.
func payload(req ImportRequest) ([]byte, error) {
	if normalize.IsXLSX(req.Filename, req.Data) {
		return normalize.XLSXToCSV(req.Data)
	}
	return req.Data, nil
}

// ImportStatus returns the tenant's job for batchID.
func (s *Service) ImportStatus(ctx context.Context, tenant model.TenantContext, batchID string) (*model.ImportJob, error) {
	return jobs.Lookup(ctx, s.pipeline.tracker, tenant, batchID)
}

// ImportHistory lists the tenant's jobs, newest first.
func (s *Service) ImportHistory(ctx context.Context, tenant model.TenantContext, limit int) ([]*model.ImportJob, error) {
	if err := tenant.Validate(); err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeInvalidArgument, "invalid tenant")
	}
	list, err := s.pipeline.tracker.List(ctx, tenant.CompanyCode, limit)
	if err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeStorageUnavailable, "failed to list import jobs")
	}
	return list, nil
}

// DeleteBatch removes the records of one import and republishes the tenant.
func (s *Service) DeleteBatch(ctx context.Context, tenant model.TenantContext, batchID, actor string) (int64, error) {
	n, err := jobs.DeleteByBatch(ctx, s.pipeline.tracker, s.pipeline.store, tenant, batchID, actor)
	if err != nil {
		return n, err
	}
	s.log.Info("batch deleted",
		zap.String("batch_id", batchID),
		zap.String("company_code", tenant.CompanyCode),
		zap.Int64("records", n))
	return n, s.refresh(ctx, tenant.CompanyCode)
}

// ClearAll removes every record of the tenant. confirm must equal
// jobs.ConfirmDeleteAll.
func (s *Service) ClearAll(ctx context.Context, tenant model.TenantContext, actor, confirm string) (int64, error) {
	n, err := jobs.ClearAll(ctx, s.pipeline.tracker, s.pipeline.store, tenant, actor, confirm)
	if err != nil {
		return n, err
	}
	s.log.Warn("tenant data cleared",
		zap.String("company_code", tenant.CompanyCode),
		zap.String("actor", actor),
		zap.Int64("records", n))
	return n, s.refresh(ctx, tenant.CompanyCode)
}

// refresh brings the published dataset in line with the record store after
// a deletion.
func (s *Service) refresh(ctx context.Context, companyCode string) error {
	p := s.pipeline
	if p.dataset != nil && !store.Publishes(p.store) {
		snapshot, err := p.store.Snapshot(ctx, companyCode)
		if err != nil {
			return storeError(err, "failed to snapshot records")
		}
		if len(snapshot) == 0 {
			err = p.dataset.Delete(ctx, companyCode)
		} else {
			_, err = p.dataset.Write(ctx, companyCode, snapshot, writer.ModeReplace)
		}
		if err != nil {
			return err
		}
	}
	if p.onChange != nil {
		p.onChange(companyCode)
	}
	return nil
}

// Wait blocks until the job is finished or ctx is done. For a job running
// in this service it returns only after the pipeline has returned, even if
// the job was marked terminal earlier. Jobs run elsewhere are polled until
// their status is terminal.
func (s *Service) Wait(ctx context.Context, batchID string) (*model.ImportJob, error) {
	if done := s.done(batchID); done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			job, err := s.pipeline.tracker.Get(context.WithoutCancel(ctx), batchID)
			if err != nil {
				return nil, err
			}
			return job, ctx.Err()
		}
		return s.pipeline.tracker.Get(ctx, batchID)
	}

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		job, err := s.pipeline.tracker.Get(ctx, batchID)
		if err != nil {
			return nil, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		// The job may have been started here after the first lookup.
		if done := s.done(batchID); done != nil {
			return s.Wait(ctx, batchID)
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown stops accepting imports and waits for running ones.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.runner.Shutdown(ctx)
}

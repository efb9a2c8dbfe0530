package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/logflow/poflow/internal/model"
	pferrors "github.com/logflow/poflow/pkg/errors"
	"github.com/logflow/poflow/pkg/store"
)

// ConfirmDeleteAll must be passed to ClearAll.
const ConfirmDeleteAll = "DELETE_ALL_DATA"

// clearAllJobLimit bounds how many jobs ClearAll marks deleted.
const clearAllJobLimit = 1000

// Lookup returns the job for batchID if it belongs to tenant.
func Lookup(ctx context.Context, tracker Tracker, tenant model.TenantContext, batchID string) (*model.ImportJob, error) {
	job, err := tracker.Get(ctx, batchID)
	if errors.Is(err, ErrJobNotFound) {
		return nil, pferrors.NotFound("import job", batchID)
	}
	if err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeStorageUnavailable, "failed to load import job")
	}
	if !tenant.Owns(job.CompanyCode) {
		return nil, pferrors.CrossTenant("import job", batchID)
	}
	return job, nil
}

// DeleteByBatch removes the records of one import batch and marks its job
// deleted. Nothing is deleted when the batch belongs to another tenant or is
// still being imported.
func DeleteByBatch(ctx context.Context, tracker Tracker, records store.RecordStore, tenant model.TenantContext, batchID, actor string) (int64, error) {
	job, err := Lookup(ctx, tracker, tenant, batchID)
	if err != nil {
		return 0, err
	}
	if !job.Status.IsTerminal() {
		return 0, inProgress(job.BatchID)
	}

	n, err := records.DeleteByBatch(ctx, tenant.CompanyCode, batchID)
	if err != nil {
		return 0, pferrors.Wrap(err, pferrors.CodeWriteFailed, "failed to delete batch records").
			WithContext("batch_id", batchID)
	}

	if err := tracker.Update(ctx, batchID, deletedUpdate(actor)); err != nil {
		return n, pferrors.Wrap(err, pferrors.CodeStorageUnavailable, "failed to mark job deleted").
			WithContext("batch_id", batchID)
	}
	return n, nil
}

// ClearAll removes every record of the tenant and marks its jobs deleted. It
// refuses while any of the tenant's imports is still processing.
func ClearAll(ctx context.Context, tracker Tracker, records store.RecordStore, tenant model.TenantContext, actor, confirm string) (int64, error) {
	if confirm != ConfirmDeleteAll {
		return 0, pferrors.Newf(pferrors.CodeConfirmationRequired,
			"confirmation required: pass %s to delete all data", ConfirmDeleteAll)
	}
	if err := tenant.Validate(); err != nil {
		return 0, pferrors.Wrap(err, pferrors.CodeInvalidArgument, "invalid tenant")
	}

	jobs, err := tracker.List(ctx, tenant.CompanyCode, clearAllJobLimit)
	if err != nil {
		return 0, pferrors.Wrap(err, pferrors.CodeStorageUnavailable, "failed to list jobs")
	}
	for _, job := range jobs {
		if !job.Status.IsTerminal() {
			return 0, inProgress(job.BatchID)
		}
	}

	n, err := records.DeleteAll(ctx, tenant.CompanyCode)
	if err != nil {
		return 0, pferrors.Wrap(err, pferrors.CodeWriteFailed, "failed to delete tenant records")
	}
	u := deletedUpdate(actor)
	for _, job := range jobs {
		if job.Status == model.StatusDeleted {
			continue
		}
		if err := tracker.Update(ctx, job.BatchID, u); err != nil {
			return n, pferrors.Wrap(err, pferrors.CodeStorageUnavailable, "failed to mark job deleted").
				WithContext("batch_id", job.BatchID)
		}
	}
	return n, nil
}

func inProgress(batchID string) error {
	return pferrors.New(pferrors.CodeJobInProgress, "import is still processing; retry once it finishes").
		WithContext("batch_id", batchID)
}

func deletedUpdate(actor string) model.JobUpdate {
	now := time.Now().UTC()
	return model.JobUpdate{
		Status:       model.Ptr(model.StatusDeleted),
		ErrorMessage: model.Ptr(fmt.Sprintf("Deleted by %s on %s", actor, now.Format(time.RFC3339))),
	}
}

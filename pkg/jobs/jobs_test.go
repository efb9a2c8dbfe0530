package jobs

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/poflow/internal/model"
	pferrors "github.com/logflow/poflow/pkg/errors"
	"github.com/logflow/poflow/pkg/store"
)

func trackers(t *testing.T) map[string]Tracker {
	t.Helper()

	mr := miniredis.RunT(t)
	rt, err := NewRedis(DefaultRedisConfig(mr.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })

	dt, err := NewDuckDB("")
	require.NoError(t, err)
	t.Cleanup(func() { dt.Close() })

	return map[string]Tracker{
		"memory": NewMemory(),
		"redis":  rt,
		"duckdb": dt,
	}
}

func newJob(batchID, company string, created time.Time) *model.ImportJob {
	return &model.ImportJob{
		BatchID:     batchID,
		CompanyCode: company,
		Filename:    "pos.csv",
		ImportedBy:  "ops@example.com",
		Mode:        model.ModeSkipExisting,
		Status:      model.StatusProcessing,
		CreatedAt:   created,
	}
}

func TestTrackers(t *testing.T) {
	base := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

	for name, tr := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := tr.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrJobNotFound)
			assert.ErrorIs(t, tr.Update(ctx, "missing", model.JobUpdate{Status: model.Ptr(model.StatusFailed)}), ErrJobNotFound)

			for i := 0; i < 3; i++ {
				require.NoError(t, tr.Create(ctx, newJob(fmt.Sprintf("b%d", i), "heritage", base.Add(time.Duration(i)*time.Minute))))
			}
			require.NoError(t, tr.Create(ctx, newJob("x1", "other", base)))

			require.NoError(t, tr.Update(ctx, "b1", model.JobUpdate{TotalRows: model.Ptr(int64(10))}))
			completed := base.Add(time.Hour)
			require.NoError(t, tr.Update(ctx, "b1", model.JobUpdate{
				Status:       model.Ptr(model.StatusCompletedWithErrors),
				ImportedRows: model.Ptr(int64(7)),
				SkippedRows:  model.Ptr(int64(1)),
				ErrorRows:    model.Ptr(int64(2)),
				ErrorSamples: []string{"Row 3: Missing required fields", "Row 9: Invalid order total: x"},
				ErrorMessage: model.Ptr("Row 3: Missing required fields\nRow 9: Invalid order total: x"),
				CompletedAt:  &completed,
			}))

			job, err := tr.Get(ctx, "b1")
			require.NoError(t, err)
			assert.Equal(t, model.StatusCompletedWithErrors, job.Status)
			assert.Equal(t, int64(10), job.TotalRows, "earlier partial update is kept")
			assert.Equal(t, int64(7), job.ImportedRows)
			assert.Equal(t, int64(1), job.SkippedRows)
			assert.Equal(t, int64(2), job.ErrorRows)
			assert.Len(t, job.ErrorSamples, 2)
			assert.Equal(t, "pos.csv", job.Filename)
			assert.Equal(t, model.ModeSkipExisting, job.Mode)
			require.NotNil(t, job.CompletedAt)
			assert.True(t, job.CompletedAt.Equal(completed))
			assert.True(t, job.CreatedAt.Equal(base.Add(time.Minute)))
			assert.False(t, job.UpdatedAt.Before(job.CreatedAt))

			list, err := tr.List(ctx, "heritage", 0)
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, []string{"b2", "b1", "b0"}, []string{list[0].BatchID, list[1].BatchID, list[2].BatchID})

			list, err = tr.List(ctx, "heritage", 2)
			require.NoError(t, err)
			assert.Len(t, list, 2)

			list, err = tr.List(ctx, "nobody", 10)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func seed(t *testing.T, tr Tracker, records store.RecordStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	mk := func(company, po, batch string) model.PurchaseOrder {
		return model.PurchaseOrder{
			PaytoName: "ACME", PONumber: po, OrderTotal: decimal.NewFromInt(100),
			OrderDate: base, CompanyCode: company, ImportBatchID: batch, ImportedAt: base,
		}
	}
	_, err := records.Insert(ctx, []model.PurchaseOrder{
		mk("heritage", "PO-1", "b1"),
		mk("heritage", "PO-2", "b1"),
		mk("heritage", "PO-3", "b2"),
		mk("other", "PO-9", "x1"),
	})
	require.NoError(t, err)

	require.NoError(t, tr.Create(ctx, finished(newJob("b1", "heritage", base))))
	require.NoError(t, tr.Create(ctx, finished(newJob("b2", "heritage", base.Add(time.Minute)))))
	require.NoError(t, tr.Create(ctx, finished(newJob("x1", "other", base))))
}

func finished(job *model.ImportJob) *model.ImportJob {
	job.Status = model.StatusCompleted
	return job
}

func TestDeleteByBatch(t *testing.T) {
	ctx := context.Background()
	tr := NewMemory()
	records := store.NewMemory()
	seed(t, tr, records)
	heritage := model.NewTenant("heritage", "customer")

	_, err := DeleteByBatch(ctx, tr, records, heritage, "x1", "ops@example.com")
	assert.True(t, pferrors.IsCode(err, pferrors.CodeCrossTenant))
	n, _ := records.Count(ctx, "other")
	assert.Equal(t, int64(1), n, "another tenant's batch is untouched")

	_, err = DeleteByBatch(ctx, tr, records, heritage, "nope", "ops@example.com")
	assert.True(t, pferrors.IsCode(err, pferrors.CodeNotFound))

	n, err = DeleteByBatch(ctx, tr, records, heritage, "b1", "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	snap, _ := records.Snapshot(ctx, "heritage")
	require.Len(t, snap, 1)
	assert.Equal(t, "PO-3", snap[0].PONumber)

	job, err := tr.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDeleted, job.Status)
	assert.True(t, strings.HasPrefix(job.ErrorMessage, "Deleted by ops@example.com on "), job.ErrorMessage)
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	tr := NewMemory()
	records := store.NewMemory()
	seed(t, tr, records)
	heritage := model.NewTenant("heritage", "admin")

	_, err := ClearAll(ctx, tr, records, heritage, "admin@example.com", "yes")
	assert.True(t, pferrors.IsCode(err, pferrors.CodeConfirmationRequired))
	n, _ := records.Count(ctx, "heritage")
	assert.Equal(t, int64(3), n)

	n, err = ClearAll(ctx, tr, records, heritage, "admin@example.com", ConfirmDeleteAll)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	jobs, err := tr.List(ctx, "heritage", 0)
	require.NoError(t, err)
	for _, j := range jobs {
		assert.Equal(t, model.StatusDeleted, j.Status)
	}

	other, err := tr.Get(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, other.Status)
	n, _ = records.Count(ctx, "other")
	assert.Equal(t, int64(1), n)
}

func TestDeleteRefusesRunningImport(t *testing.T) {
	ctx := context.Background()
	tr := NewMemory()
	records := store.NewMemory()
	seed(t, tr, records)
	require.NoError(t, tr.Create(ctx, newJob("b3", "heritage", time.Date(2024, 2, 1, 13, 0, 0, 0, time.UTC))))
	heritage := model.NewTenant("heritage", "admin")

	_, err := DeleteByBatch(ctx, tr, records, heritage, "b3", "ops@example.com")
	assert.True(t, pferrors.IsCode(err, pferrors.CodeJobInProgress), "got %v", err)

	_, err = ClearAll(ctx, tr, records, heritage, "admin@example.com", ConfirmDeleteAll)
	assert.True(t, pferrors.IsCode(err, pferrors.CodeJobInProgress), "got %v", err)

	n, _ := records.Count(ctx, "heritage")
	assert.Equal(t, int64(3), n, "nothing is deleted while an import runs")
	for _, id := range []string{"b1", "b2", "b3"} {
		job, err := tr.Get(ctx, id)
		require.NoError(t, err)
		assert.NotEqual(t, model.StatusDeleted, job.Status, id)
	}

	require.NoError(t, tr.Update(ctx, "b3", model.JobUpdate{Status: model.Ptr(model.StatusCompleted)}))
	_, err = DeleteByBatch(ctx, tr, records, heritage, "b3", "ops@example.com")
	assert.NoError(t, err)
}

func TestDeletedJobIsFinal(t *testing.T) {
	base := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

	for name, tr := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, tr.Create(ctx, newJob("b1", "heritage", base)))
			require.NoError(t, tr.Update(ctx, "b1", deletedUpdate("ops@example.com")))

			done := base.Add(time.Hour)
			require.NoError(t, tr.Update(ctx, "b1", model.JobUpdate{
				Status:       model.Ptr(model.StatusCompleted),
				ImportedRows: model.Ptr(int64(5)),
				CompletedAt:  &done,
			}))

			job, err := tr.Get(ctx, "b1")
			require.NoError(t, err)
			assert.Equal(t, model.StatusDeleted, job.Status)
			assert.Zero(t, job.ImportedRows)
			assert.Nil(t, job.CompletedAt)
			assert.True(t, strings.HasPrefix(job.ErrorMessage, "Deleted by ops@example.com"), job.ErrorMessage)
		})
	}
}

func TestRedisUpdateOfExpiredJob(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := DefaultRedisConfig(mr.Addr())
	cfg.TTL = time.Minute
	rt, err := NewRedis(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })

	require.NoError(t, rt.Create(ctx, newJob("b1", "heritage", time.Now().UTC())))
	mr.FastForward(2 * time.Minute)

	err = rt.Update(ctx, "b1", model.JobUpdate{Status: model.Ptr(model.StatusCompleted)})
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.False(t, mr.Exists(cfg.Prefix+"b1"), "no partial hash is written for an expired job")
}

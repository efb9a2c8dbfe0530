package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/logflow/poflow/internal/model"
	pferrors "github.com/logflow/poflow/pkg/errors"
	"github.com/logflow/poflow/pkg/storage/object"
	"github.com/logflow/poflow/pkg/writer"
)

func order(company, po, batch, total string) model.PurchaseOrder {
	return model.PurchaseOrder{
		PaytoID:       "V1",
		PaytoName:     "ACME",
		Branch:        "North",
		PONumber:      po,
		OrderTotal:    decimal.RequireFromString(total),
		OrderDate:     time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		CompanyCode:   company,
		ImportBatchID: batch,
		ImportedBy:    "ops@example.com",
		ImportedAt:    time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC),
		SourceFile:    "pos.csv",
	}
}

func backends(t *testing.T) map[string]RecordStore {
	t.Helper()

	table, err := NewTable(filepath.Join(t.TempDir(), "records.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { table.Close() })

	storage, err := object.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ds, err := writer.NewDataset(storage, "", writer.DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	return map[string]RecordStore{
		"memory":   NewMemory(),
		"table":    table,
		"columnar": NewColumnar(ds),
	}
}

func pos(records []model.PurchaseOrder) []string {
	return poNumbersOf(records)
}

func TestRecordStores(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			n, err := s.Insert(ctx, []model.PurchaseOrder{
				order("heritage", "PO-1", "b1", "100.00"),
				order("heritage", "PO-2", "b1", "200.50"),
				order("other", "PO-1", "b9", "999.99"),
			})
			require.NoError(t, err)
			assert.Equal(t, int64(3), n)

			existing, err := s.Existing(ctx, "heritage", []string{"PO-1", "PO-3"})
			require.NoError(t, err)
			assert.Equal(t, map[string]struct{}{"PO-1": {}}, existing)

			// Overwrite replaces PO-2 and adds PO-3 without touching other tenants.
			n, err = s.ReplaceBatch(ctx, "heritage", []model.PurchaseOrder{
				order("heritage", "PO-2", "b2", "250.00"),
				order("heritage", "PO-3", "b2", "300.00"),
			})
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			snap, err := s.Snapshot(ctx, "heritage")
			require.NoError(t, err)
			assert.Equal(t, []string{"PO-1", "PO-2", "PO-3"}, pos(snap))
			assert.Equal(t, "250.00", snap[1].OrderTotal.StringFixed(2))
			assert.Equal(t, "b2", snap[1].ImportBatchID)
			assert.True(t, snap[0].OrderDate.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
			assert.Equal(t, "", snap[0].Company, "empty optional fields survive")

			count, err := s.Count(ctx, "other")
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			removed, err := s.DeleteByBatch(ctx, "heritage", "b9")
			require.NoError(t, err)
			assert.Zero(t, removed, "batch ids are scoped to the tenant")

			removed, err = s.DeleteByBatch(ctx, "heritage", "b2")
			require.NoError(t, err)
			assert.Equal(t, int64(2), removed)

			removed, err = s.DeleteByPONumbers(ctx, "heritage", []string{"PO-1"})
			require.NoError(t, err)
			assert.Equal(t, int64(1), removed)

			count, err = s.Count(ctx, "heritage")
			require.NoError(t, err)
			assert.Zero(t, count)

			removed, err = s.DeleteAll(ctx, "other")
			require.NoError(t, err)
			assert.Equal(t, int64(1), removed)
			snap, err = s.Snapshot(ctx, "other")
			require.NoError(t, err)
			assert.Empty(t, snap)
		})
	}
}

func TestTableLargeInList(t *testing.T) {
	table, err := NewTable("")
	require.NoError(t, err)
	defer table.Close()

	ctx := context.Background()
	var records []model.PurchaseOrder
	for i := 0; i < chunk+20; i++ {
		records = append(records, order("heritage", fmt.Sprintf("PO-%04d", i), "b1", "1.00"))
	}
	_, err = table.Insert(ctx, records)
	require.NoError(t, err)

	existing, err := table.Existing(ctx, "heritage", pos(records))
	require.NoError(t, err)
	assert.Len(t, existing, chunk+20)

	n, err := table.ReplaceBatch(ctx, "heritage", records)
	require.NoError(t, err)
	assert.Equal(t, int64(chunk+20), n)
	count, err := table.Count(ctx, "heritage")
	require.NoError(t, err)
	assert.Equal(t, int64(chunk+20), count)
}

func TestInsertNew(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Insert(ctx, []model.PurchaseOrder{order("heritage", "PO-1", "b1", "100.00")})
			require.NoError(t, err)

			n, err := s.InsertNew(ctx, "heritage", []model.PurchaseOrder{
				order("heritage", "PO-1", "b2", "111.00"),
				order("heritage", "PO-2", "b2", "200.00"),
				order("heritage", "PO-2", "b2", "222.00"),
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			snap, err := s.Snapshot(ctx, "heritage")
			require.NoError(t, err)
			assert.Equal(t, []string{"PO-1", "PO-2"}, pos(snap))
			assert.Equal(t, "100.00", snap[0].OrderTotal.StringFixed(2), "stored record is kept")
			assert.Equal(t, "200.00", snap[1].OrderTotal.StringFixed(2), "first repeat wins")

			n, err = s.InsertNew(ctx, "other", []model.PurchaseOrder{order("other", "PO-1", "b3", "1.00")})
			require.NoError(t, err)
			assert.Equal(t, int64(1), n, "po_numbers are scoped to the tenant")
		})
	}
}

func TestConcurrentInsertNewStoresOnce(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			batch := []model.PurchaseOrder{
				order("heritage", "PO-1", "b1", "10.00"),
				order("heritage", "PO-2", "b1", "20.00"),
			}

			const writers = 8
			var (
				wg    sync.WaitGroup
				mu    sync.Mutex
				total int64
			)
			start := make(chan struct{})
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					n, err := s.InsertNew(ctx, "heritage", batch)
					assert.NoError(t, err)
					mu.Lock()
					total += n
					mu.Unlock()
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int64(len(batch)), total)
			count, err := s.Count(ctx, "heritage")
			require.NoError(t, err)
			assert.Equal(t, int64(len(batch)), count)
		})
	}
}

func TestTableRejectsDuplicateKey(t *testing.T) {
	table, err := NewTable("")
	require.NoError(t, err)
	defer table.Close()

	ctx := context.Background()
	_, err = table.Insert(ctx, []model.PurchaseOrder{order("heritage", "PO-1", "b1", "1.00")})
	require.NoError(t, err)

	_, err = table.Insert(ctx, []model.PurchaseOrder{order("heritage", "PO-1", "b2", "2.00")})
	assert.Error(t, err)
	count, err := table.Count(ctx, "heritage")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

type brokenStorage struct {
	*object.MemoryStorage
}

func (b brokenStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, errors.New("503 slow down")
}

func TestColumnarAbortsOnTransientRead(t *testing.T) {
	ds, err := writer.NewDataset(brokenStorage{object.NewMemoryStorage()}, "", writer.DefaultConfig(), nil)
	require.NoError(t, err)
	s := NewColumnar(ds)
	assert.True(t, Publishes(s))

	_, err = s.ReplaceBatch(context.Background(), "heritage", []model.PurchaseOrder{order("heritage", "PO-1", "b1", "1")})
	assert.True(t, pferrors.IsCode(err, pferrors.CodeTransientRead))

	_, err = s.Insert(context.Background(), []model.PurchaseOrder{order("heritage", "PO-1", "b1", "1")})
	assert.True(t, pferrors.IsCode(err, pferrors.CodeTransientRead))

	_, err = s.InsertNew(context.Background(), "heritage", []model.PurchaseOrder{order("heritage", "PO-1", "b1", "1")})
	assert.True(t, pferrors.IsCode(err, pferrors.CodeTransientRead))
}

func TestPublishes(t *testing.T) {
	assert.False(t, Publishes(NewMemory()))
}

package store

import (
	"context"
	"errors"
	"sync"

	"github.com/logflow/poflow/internal/model"
	pferrors "github.com/logflow/poflow/pkg/errors"
	"github.com/logflow/poflow/pkg/interfaces"
	"github.com/logflow/poflow/pkg/writer"
)

// Columnar uses the per-tenant Parquet dataset as the store. Every mutation
// reads the tenant object, applies the change and rewrites it, so the
// persisted state is always the artifact the analytics layer queries.
type Columnar struct {
	ds *writer.Dataset
	mu sync.Mutex
}

// NewColumnar creates a store over ds.
func NewColumnar(ds *writer.Dataset) *Columnar {
	return &Columnar{ds: ds}
}

func (c *Columnar) Name() string    { return "columnar" }
func (c *Columnar) Close() error    { return nil }
func (c *Columnar) Publishes() bool { return true }

// load reads the tenant dataset. A missing dataset is empty; any other
// failure aborts the mutation before anything is written.
func (c *Columnar) load(ctx context.Context, companyCode string) ([]model.PurchaseOrder, error) {
	records, err := c.ds.Read(ctx, companyCode)
	if errors.Is(err, interfaces.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeTransientRead, "failed to read dataset").
			WithContext("company_code", companyCode)
	}
	return records, nil
}

func (c *Columnar) Existing(ctx context.Context, companyCode string, poNumbers []string) (map[string]struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load(ctx, companyCode)
	if err != nil {
		return nil, err
	}
	want := poSet(poNumbers)
	found := make(map[string]struct{})
	for _, r := range records {
		if _, ok := want[r.PONumber]; ok {
			found[r.PONumber] = struct{}{}
		}
	}
	return found, nil
}

func (c *Columnar) DeleteByPONumbers(ctx context.Context, companyCode string, poNumbers []string) (int64, error) {
	drop := poSet(poNumbers)
	return c.rewrite(ctx, companyCode, func(r *model.PurchaseOrder) bool {
		_, ok := drop[r.PONumber]
		return ok
	})
}

// Insert appends records to each tenant's dataset.
func (c *Columnar) Insert(ctx context.Context, records []model.PurchaseOrder) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	order, groups := byCompany(records)
	var n int64
	for _, company := range order {
		if _, err := c.ds.Write(ctx, company, groups[company], writer.ModeAppend); err != nil {
			return n, err
		}
		n += int64(len(groups[company]))
	}
	return n, nil
}

// InsertNew reads the tenant dataset and rewrites it with the fresh records
// appended, holding the lock across both steps.
func (c *Columnar) InsertNew(ctx context.Context, companyCode string, records []model.PurchaseOrder) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.load(ctx, companyCode)
	if err != nil {
		return 0, err
	}
	add := fresh(records, poSet(poNumbersOf(existing)))
	if len(add) == 0 {
		return 0, nil
	}
	if _, err := c.ds.Write(ctx, companyCode, append(existing, add...), writer.ModeReplace); err != nil {
		return 0, err
	}
	return int64(len(add)), nil
}

func (c *Columnar) ReplaceBatch(ctx context.Context, companyCode string, records []model.PurchaseOrder) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.load(ctx, companyCode)
	if err != nil {
		return 0, err
	}
	drop := poSet(poNumbersOf(records))
	kept := make([]model.PurchaseOrder, 0, len(existing)+len(records))
	for _, r := range existing {
		if _, ok := drop[r.PONumber]; !ok {
			kept = append(kept, r)
		}
	}
	kept = append(kept, records...)

	if _, err := c.ds.Write(ctx, companyCode, kept, writer.ModeReplace); err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

func (c *Columnar) DeleteByBatch(ctx context.Context, companyCode, batchID string) (int64, error) {
	return c.rewrite(ctx, companyCode, func(r *model.PurchaseOrder) bool {
		return r.ImportBatchID == batchID
	})
}

// DeleteAll removes the tenant dataset.
func (c *Columnar) DeleteAll(ctx context.Context, companyCode string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load(ctx, companyCode)
	if err != nil {
		return 0, err
	}
	if err := c.ds.Delete(ctx, companyCode); err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

func (c *Columnar) Count(ctx context.Context, companyCode string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load(ctx, companyCode)
	return int64(len(records)), err
}

func (c *Columnar) Snapshot(ctx context.Context, companyCode string) ([]model.PurchaseOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx, companyCode)
}

// rewrite drops matching records and rewrites the dataset if anything changed.
func (c *Columnar) rewrite(ctx context.Context, companyCode string, match func(*model.PurchaseOrder) bool) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load(ctx, companyCode)
	if err != nil {
		return 0, err
	}
	kept := records[:0:0]
	for i := range records {
		if !match(&records[i]) {
			kept = append(kept, records[i])
		}
	}
	removed := int64(len(records) - len(kept))
	if removed == 0 {
		return 0, nil
	}
	if _, err := c.ds.Write(ctx, companyCode, kept, writer.ModeReplace); err != nil {
		return 0, err
	}
	return removed, nil
}

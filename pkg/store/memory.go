package store

import (
	"context"
	"sync"

	"github.com/logflow/poflow/internal/model"
)

// Memory keeps records in process memory.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]model.PurchaseOrder
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string][]model.PurchaseOrder)}
}

func (m *Memory) Name() string { return "memory" }
func (m *Memory) Close() error { return nil }

func (m *Memory) Existing(ctx context.Context, companyCode string, poNumbers []string) (map[string]struct{}, error) {
	want := poSet(poNumbers)
	found := make(map[string]struct{})

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records[companyCode] {
		if _, ok := want[r.PONumber]; ok {
			found[r.PONumber] = struct{}{}
		}
	}
	return found, nil
}

func (m *Memory) DeleteByPONumbers(ctx context.Context, companyCode string, poNumbers []string) (int64, error) {
	drop := poSet(poNumbers)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(companyCode, func(r *model.PurchaseOrder) bool {
		_, ok := drop[r.PONumber]
		return ok
	}), nil
}

func (m *Memory) Insert(ctx context.Context, records []model.PurchaseOrder) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.CompanyCode] = append(m.records[r.CompanyCode], r)
	}
	return int64(len(records)), nil
}

func (m *Memory) InsertNew(ctx context.Context, companyCode string, records []model.PurchaseOrder) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make(map[string]struct{}, len(m.records[companyCode]))
	for _, r := range m.records[companyCode] {
		stored[r.PONumber] = struct{}{}
	}
	add := fresh(records, stored)
	m.records[companyCode] = append(m.records[companyCode], add...)
	return int64(len(add)), nil
}

func (m *Memory) ReplaceBatch(ctx context.Context, companyCode string, records []model.PurchaseOrder) (int64, error) {
	drop := poSet(poNumbersOf(records))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(companyCode, func(r *model.PurchaseOrder) bool {
		_, ok := drop[r.PONumber]
		return ok
	})
	m.records[companyCode] = append(m.records[companyCode], records...)
	return int64(len(records)), nil
}

func (m *Memory) DeleteByBatch(ctx context.Context, companyCode, batchID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(companyCode, func(r *model.PurchaseOrder) bool {
		return r.ImportBatchID == batchID
	}), nil
}

func (m *Memory) DeleteAll(ctx context.Context, companyCode string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.records[companyCode]))
	delete(m.records, companyCode)
	return n, nil
}

func (m *Memory) Count(ctx context.Context, companyCode string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records[companyCode])), nil
}

func (m *Memory) Snapshot(ctx context.Context, companyCode string) ([]model.PurchaseOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.PurchaseOrder(nil), m.records[companyCode]...), nil
}

func (m *Memory) removeLocked(companyCode string, match func(*model.PurchaseOrder) bool) int64 {
	kept := m.records[companyCode][:0:0]
	var removed int64
	for i := range m.records[companyCode] {
		if match(&m.records[companyCode][i]) {
			removed++
			continue
		}
		kept = append(kept, m.records[companyCode][i])
	}
	m.records[companyCode] = kept
	return removed
}

// Package store holds the record backends the ingestion pipeline commits
// purchase orders to.
package store

import (
	"context"

	"github.com/logflow/poflow/internal/model"
)

// RecordStore persists purchase orders keyed by (company_code, po_number).
// Every method is scoped to one tenant except Insert, whose records carry
// their own company code.
type RecordStore interface {
	// Existing returns the subset of poNumbers already stored for the tenant.
	Existing(ctx context.Context, companyCode string, poNumbers []string) (map[string]struct{}, error)

	DeleteByPONumbers(ctx context.Context, companyCode string, poNumbers []string) (int64, error)

	Insert(ctx context.Context, records []model.PurchaseOrder) (int64, error)

	// InsertNew inserts the records whose po_number is not yet stored for
	// the tenant and returns how many were written. The lookup and the write
	// are one atomic step, so concurrent imports of the same file store each
	// po_number once.
	InsertNew(ctx context.Context, companyCode string, records []model.PurchaseOrder) (int64, error)

	// ReplaceBatch removes every stored record whose po_number appears in
	// records and then inserts records.
	ReplaceBatch(ctx context.Context, companyCode string, records []model.PurchaseOrder) (int64, error)

	DeleteByBatch(ctx context.Context, companyCode, batchID string) (int64, error)
	DeleteAll(ctx context.Context, companyCode string) (int64, error)
	Count(ctx context.Context, companyCode string) (int64, error)

	// Snapshot returns every record of the tenant in insertion order.
	Snapshot(ctx context.Context, companyCode string) ([]model.PurchaseOrder, error)

	Name() string
	Close() error
}

// Publisher is implemented by stores whose writes already produce the
// columnar artifact the analytics layer reads.
type Publisher interface {
	Publishes() bool
}

// Publishes reports whether s writes the columnar artifact itself.
func Publishes(s RecordStore) bool {
	p, ok := s.(Publisher)
	return ok && p.Publishes()
}

func poSet(poNumbers []string) map[string]struct{} {
	set := make(map[string]struct{}, len(poNumbers))
	for _, po := range poNumbers {
		set[po] = struct{}{}
	}
	return set
}

func poNumbersOf(records []model.PurchaseOrder) []string {
	out := make([]string, len(records))
	for i := range records {
		out[i] = records[i].PONumber
	}
	return out
}

// fresh returns the records whose po_number is not in stored, keeping the
// first of any repeats. stored is extended with the returned po_numbers.
func fresh(records []model.PurchaseOrder, stored map[string]struct{}) []model.PurchaseOrder {
	out := records[:0:0]
	for _, r := range records {
		if _, ok := stored[r.PONumber]; ok {
			continue
		}
		stored[r.PONumber] = struct{}{}
		out = append(out, r)
	}
	return out
}

// byCompany groups records by company code, preserving order within a group.
func byCompany(records []model.PurchaseOrder) (order []string, groups map[string][]model.PurchaseOrder) {
	groups = make(map[string][]model.PurchaseOrder)
	for _, r := range records {
		if _, ok := groups[r.CompanyCode]; !ok {
			order = append(order, r.CompanyCode)
		}
		groups[r.CompanyCode] = append(groups[r.CompanyCode], r)
	}
	return order, groups
}

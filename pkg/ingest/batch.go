package ingest

import "github.com/logflow/poflow/internal/model"

// batch accumulates valid records and resolves duplicate po_numbers inside
// one file: skip mode keeps the first occurrence, overwrite keeps the last.
type batch struct {
	mode model.ImportMode
	size int
	recs []model.PurchaseOrder

	// index maps po_number to its position in recs.
	index map[string]int
	// committed holds po_numbers this job already wrote in earlier batches.
	committed map[string]struct{}

	// duplicates are rows dropped in favour of another row of the file.
	duplicates int64
	// superseded are rows of earlier batches replaced by a row of this one.
	superseded int64
}

func newBatch(mode model.ImportMode, size int) *batch {
	return &batch{
		mode:      mode,
		size:      size,
		recs:      make([]model.PurchaseOrder, 0, size),
		index:     make(map[string]int, size),
		committed: make(map[string]struct{}),
	}
}

// add appends po and reports whether the batch is full.
func (b *batch) add(po model.PurchaseOrder) bool {
	overwrite := b.mode == model.ModeOverwrite

	if i, ok := b.index[po.PONumber]; ok {
		if overwrite {
			b.recs[i] = po
		}
		b.duplicates++
		return false
	}
	if _, ok := b.committed[po.PONumber]; ok {
		if !overwrite {
			b.duplicates++
			return false
		}
		b.superseded++
	}

	b.index[po.PONumber] = len(b.recs)
	b.recs = append(b.recs, po)
	return len(b.recs) >= b.size
}

func (b *batch) len() int {
	return len(b.recs)
}

func (b *batch) records() []model.PurchaseOrder {
	return b.recs
}

func (b *batch) reset() {
	for po := range b.index {
		b.committed[po] = struct{}{}
	}
	clear(b.index)
	b.recs = b.recs[:0]
	b.duplicates = 0
	b.superseded = 0
}

// Package normalize maps heterogeneous purchase-order CSV exports onto the
// canonical record schema and rejects rows that cannot be trusted.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/logflow/poflow/internal/model"
	pferrors "github.com/logflow/poflow/pkg/errors"
)

// DateLayout is the accepted order_date format (MM/DD/YYYY, leading zeros optional).
const DateLayout = "1/2/2006"

// aliases maps each canonical column to the normalized header spellings
// seen in customer exports. Earlier entries win when a file has several.
var aliases = map[string][]string{
	model.ColPaytoID:    {"po_payto_id", "payto_id", "vendor_id"},
	model.ColPaytoName:  {"po_payto_name", "payto_name", "vendor_name", "vendor"},
	model.ColCompany:    {"po_company", "company"},
	model.ColBranch:     {"po_branch", "branch"},
	model.ColPONumber:   {"po_number", "po#", "po_no", "purchase_order"},
	model.ColOrderTotal: {"order_total", "total", "amount"},
	model.ColOrderDate:  {"order_date", "date", "po_date"},
}

// Required lists the canonical columns a row must carry.
var Required = []string{
	model.ColPaytoName,
	model.ColPONumber,
	model.ColOrderTotal,
	model.ColOrderDate,
}

var lookup = func() map[string]string {
	m := make(map[string]string)
	for canonical, names := range aliases {
		for _, n := range names {
			m[n] = canonical
		}
	}
	return m
}()

// NormalizeHeader lower-cases a header and folds whitespace and hyphens to
// underscores, so "PO Number", "po-number" and "PO_NUMBER" compare equal.
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.ReplaceAll(h, "-", " ")
	return strings.Join(strings.Fields(h), "_")
}

// Canonical returns the canonical column for a raw header.
func Canonical(header string) (string, bool) {
	c, ok := lookup[NormalizeHeader(header)]
	return c, ok
}

// HeaderMap maps column index to canonical column name.
type HeaderMap map[int]string

// ResolveHeaders maps a raw header row. Unknown headers are ignored and when
// two headers resolve to the same column the one with the preferred alias wins.
func ResolveHeaders(headers []string) HeaderMap {
	best := make(map[string]int)  // canonical -> index
	score := make(map[string]int) // canonical -> alias rank
	for i, h := range headers {
		canonical, ok := Canonical(h)
		if !ok {
			continue
		}
		rank := aliasRank(canonical, NormalizeHeader(h))
		if prev, seen := score[canonical]; seen && prev <= rank {
			continue
		}
		best[canonical] = i
		score[canonical] = rank
	}

	hm := make(HeaderMap, len(best))
	for canonical, idx := range best {
		hm[idx] = canonical
	}
	return hm
}

func aliasRank(canonical, normalized string) int {
	for i, n := range aliases[canonical] {
		if n == normalized {
			return i
		}
	}
	return len(aliases[canonical])
}

// Has reports whether the mapping contains a canonical column.
func (h HeaderMap) Has(column string) bool {
	for _, c := range h {
		if c == column {
			return true
		}
	}
	return false
}

// Missing returns the required columns absent from the mapping.
func (h HeaderMap) Missing() []string {
	var missing []string
	for _, c := range Required {
		if !h.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// RowError is a recoverable per-row rejection.
type RowError struct {
	Row     int
	Code    pferrors.Code
	Message string
	Value   string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("Row %d: %s", e.Row, e.Message)
}

// Meta is the provenance stamped on every record of one import.
type Meta struct {
	CompanyCode string
	BatchID     string
	ImportedBy  string
	ImportedAt  time.Time
	SourceFile  string
}

// Normalizer turns raw rows into purchase orders.
type Normalizer struct {
	meta Meta
}

// New creates a Normalizer stamping meta onto every record.
func New(meta Meta) *Normalizer {
	meta.ImportedAt = meta.ImportedAt.UTC()
	return &Normalizer{meta: meta}
}

// Normalize validates a row and converts it to a record.
func (n *Normalizer) Normalize(row Row) (model.PurchaseOrder, *RowError) {
	get := func(c string) string { return strings.TrimSpace(row.Get(c)) }

	for _, c := range Required {
		if get(c) == "" {
			return model.PurchaseOrder{}, &RowError{
				Row:     row.Number,
				Code:    pferrors.CodeMissingField,
				Message: "Missing required fields",
			}
		}
	}

	rawTotal := get(model.ColOrderTotal)
	total, err := ParseAmount(rawTotal)
	if err != nil {
		return model.PurchaseOrder{}, &RowError{
			Row:     row.Number,
			Code:    pferrors.CodeInvalidAmount,
			Message: "Invalid order total: " + rawTotal,
			Value:   rawTotal,
		}
	}

	rawDate := get(model.ColOrderDate)
	date, err := ParseDate(rawDate)
	if err != nil {
		return model.PurchaseOrder{}, &RowError{
			Row:     row.Number,
			Code:    pferrors.CodeInvalidDate,
			Message: fmt.Sprintf("Invalid date format: %s (expected MM/DD/YYYY)", rawDate),
			Value:   rawDate,
		}
	}

	return model.PurchaseOrder{
		PaytoID:       get(model.ColPaytoID),
		PaytoName:     get(model.ColPaytoName),
		Company:       get(model.ColCompany),
		Branch:        get(model.ColBranch),
		PONumber:      get(model.ColPONumber),
		OrderTotal:    total,
		OrderDate:     date,
		CompanyCode:   n.meta.CompanyCode,
		ImportBatchID: n.meta.BatchID,
		ImportedBy:    n.meta.ImportedBy,
		ImportedAt:    n.meta.ImportedAt,
		SourceFile:    n.meta.SourceFile,
	}, nil
}

// ParseAmount parses a monetary value after stripping currency symbols,
// thousands separators and whitespace.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ', '\t', '\u00a0':
			return -1
		}
		return r
	}, s)
	if cleaned == "" {
		return decimal.Decimal{}, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d.Round(2).Abs().GreaterThanOrEqual(maxAmount) {
		return decimal.Decimal{}, fmt.Errorf("amount %s out of range", cleaned)
	}
	return d, nil
}

// maxAmount is the exclusive bound of a DECIMAL(18,2) value.
var maxAmount = decimal.New(1, 16)

// ParseDate parses an MM/DD/YYYY date into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}

// Rejections counts rejected rows and keeps the first samples verbatim.
type Rejections struct {
	Count   int64
	Samples []string
	max     int
}

// NewRejections creates a collector keeping at most max samples.
func NewRejections(max int) *Rejections {
	return &Rejections{max: max}
}

// Add records one rejection.
func (r *Rejections) Add(err error) {
	r.Count++
	if len(r.Samples) < r.max {
		r.Samples = append(r.Samples, err.Error())
	}
}

// Message joins the samples the way operators read them.
func (r *Rejections) Message() string {
	return strings.Join(r.Samples, "\n")
}

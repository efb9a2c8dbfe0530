// Package analytics answers the dashboard queries over a tenant's Parquet
// dataset. Every query is bound to one company_code and reads only that
// tenant's object.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/logflow/poflow/internal/model"
	pferrors "github.com/logflow/poflow/pkg/errors"
	"github.com/logflow/poflow/pkg/logger"
	"github.com/logflow/poflow/pkg/query/cache"
	"github.com/logflow/poflow/pkg/query/engine"
)

// Default limits.
const (
	DefaultVendorLimit  = 20
	DefaultBranchLimit  = 20
	DefaultCompanyLimit = 20
	DefaultMonths       = 12
	DefaultSearchLimit  = 100
	DefaultTopPerBranch = 5
	DefaultMinOrders    = 1
	SortByTotalSpent    = "total_spent"
	SortByOrderCount    = "order_count"
)

// Querier runs SQL and materializes the rows.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*engine.Result, error)
}

// Locator resolves where a tenant dataset lives.
type Locator interface {
	Exists(ctx context.Context, companyCode string) (bool, error)
	Location(companyCode string) string
}

// Service runs the analytics queries.
type Service struct {
	engine   Querier
	datasets Locator
	cache    *cache.Cache
	log      *zap.Logger
}

// New creates an analytics service. c may be nil.
func New(q Querier, datasets Locator, c *cache.Cache, log *zap.Logger) *Service {
	return &Service{
		engine:   q,
		datasets: datasets,
		cache:    c,
		log:      logger.OrNop(log).Named("analytics"),
	}
}

// Invalidate drops cached results of one tenant.
func (s *Service) Invalidate(companyCode string) {
	s.cache.Invalidate(companyCode)
}

// CacheStats reports result cache effectiveness.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// source is the FROM expression of a tenant query.
type source string

// run resolves the tenant dataset, consults the cache and calls fetch.
// A tenant without a dataset gets the zero T.
func run[T any](ctx context.Context, s *Service, tenant model.TenantContext, shape string, params []any,
	fetch func(ctx context.Context, src source) (T, error)) (T, error) {
	var zero T
	if err := tenant.Validate(); err != nil {
		return zero, pferrors.Wrap(err, pferrors.CodeInvalidArgument, "invalid tenant")
	}

	key := cache.Key(tenant.CompanyCode, shape, params...)
	if v, ok := s.cache.Get(key); ok {
		return v.(T), nil
	}

	ctx, span := otel.Tracer("poflow/analytics").Start(ctx, "query."+shape)
	defer span.End()
	span.SetAttributes(attribute.String("company_code", tenant.CompanyCode))

	exists, err := s.datasets.Exists(ctx, tenant.CompanyCode)
	if err != nil {
		span.SetStatus(codes.Error, "locate dataset")
		return zero, pferrors.Wrap(err, pferrors.CodeStorageUnavailable, "failed to locate dataset").
			WithContext("company_code", tenant.CompanyCode)
	}
	if !exists {
		return zero, nil
	}

	start := time.Now()
	src := source(engine.ReadParquet(s.datasets.Location(tenant.CompanyCode)))
	out, err := fetch(ctx, src)
	if err != nil {
		s.log.Error("analytics query failed",
			zap.String("shape", shape),
			zap.String("company_code", tenant.CompanyCode),
			zap.Any("params", params),
			zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		if pferrors.IsCode(err, pferrors.CodeInvalidArgument) {
			return zero, err
		}
		return zero, pferrors.Wrapf(err, pferrors.CodeQueryFailed, "%s query failed", shape).
			WithContext("query", shape).
			WithContext("params", params)
	}
	s.log.Debug("analytics query",
		zap.String("shape", shape),
		zap.String("company_code", tenant.CompanyCode),
		zap.Duration("duration", time.Since(start)))

	s.cache.Put(key, out)
	return out, nil
}

// VendorStats is one row of TopVendors.
type VendorStats struct {
	Vendor         string          `json:"vendor"`
	VendorID       string          `json:"vendor_id"`
	OrderCount     int64           `json:"order_count"`
	TotalSpent     decimal.Decimal `json:"total_spent"`
	AvgOrderValue  decimal.Decimal `json:"avg_order_value"`
	MinOrder       decimal.Decimal `json:"min_order"`
	MaxOrder       decimal.Decimal `json:"max_order"`
	FirstOrderDate time.Time       `json:"first_order_date"`
	LastOrderDate  time.Time       `json:"last_order_date"`
}

// TopVendors groups orders by vendor name. sortBy is SortByTotalSpent or
// SortByOrderCount.
func (s *Service) TopVendors(ctx context.Context, tenant model.TenantContext, limit, minOrders int, sortBy string) ([]VendorStats, error) {
	limit = orDefault(limit, DefaultVendorLimit)
	minOrders = orDefault(minOrders, DefaultMinOrders)
	if sortBy == "" {
		sortBy = SortByTotalSpent
	}
	var order string
	switch sortBy {
	case SortByTotalSpent:
		order = "SUM(order_total) DESC, COUNT(*) DESC"
	case SortByOrderCount:
		order = "COUNT(*) DESC, SUM(order_total) DESC"
	default:
		return nil, pferrors.InvalidArgument("sort_by", sortBy, "must be total_spent or order_count")
	}

	return run(ctx, s, tenant, "top_vendors", []any{limit, minOrders, sortBy},
		func(ctx context.Context, src source) ([]VendorStats, error) {
			res, err := s.engine.Query(ctx, fmt.Sprintf(`
				SELECT
					po_payto_name AS vendor,
					MIN(po_payto_id) AS vendor_id,
					COUNT(*) AS order_count,
					CAST(SUM(order_total) AS VARCHAR) AS total_spent,
					CAST(MIN(order_total) AS VARCHAR) AS min_order,
					CAST(MAX(order_total) AS VARCHAR) AS max_order,
					MIN(order_date) AS first_order_date,
					MAX(order_date) AS last_order_date
				FROM %s
				WHERE company_code = ? AND po_payto_name IS NOT NULL
				GROUP BY po_payto_name
				HAVING COUNT(*) >= ?
				ORDER BY %s, po_payto_name
				LIMIT %d`, src, order, limit),
				tenant.CompanyCode, minOrders)
			if err != nil {
				return nil, err
			}

			out := make([]VendorStats, 0, len(res.Rows))
			for _, r := range res.Rows {
				v := VendorStats{
					Vendor:         str(r["vendor"]),
					VendorID:       str(r["vendor_id"]),
					OrderCount:     i64(r["order_count"]),
					TotalSpent:     dec(r["total_spent"]),
					MinOrder:       dec(r["min_order"]),
					MaxOrder:       dec(r["max_order"]),
					FirstOrderDate: date(r["first_order_date"]),
					LastOrderDate:  date(r["last_order_date"]),
				}
				v.AvgOrderValue = average(v.TotalSpent, v.OrderCount)
				out = append(out, v)
			}
			return out, nil
		})
}

// BranchStats is one row of BranchAnalysis.
type BranchStats struct {
	Branch        string          `json:"branch"`
	OrderCount    int64           `json:"order_count"`
	TotalValue    decimal.Decimal `json:"total_value"`
	AvgOrderValue decimal.Decimal `json:"avg_order_value"`
	UniqueVendors int64           `json:"unique_vendors"`
	EarliestOrder time.Time       `json:"earliest_order"`
	LatestOrder   time.Time       `json:"latest_order"`
}

// BranchAnalysis groups orders by branch, busiest first.
func (s *Service) BranchAnalysis(ctx context.Context, tenant model.TenantContext, limit int) ([]BranchStats, error) {
	limit = orDefault(limit, DefaultBranchLimit)

	return run(ctx, s, tenant, "branches", []any{limit},
		func(ctx context.Context, src source) ([]BranchStats, error) {
			res, err := s.engine.Query(ctx, fmt.Sprintf(`
				SELECT
					po_branch AS branch,
					COUNT(*) AS order_count,
					CAST(SUM(order_total) AS VARCHAR) AS total_value,
					COUNT(DISTINCT po_payto_name) AS unique_vendors,
					MIN(order_date) AS earliest_order,
					MAX(order_date) AS latest_order
				FROM %s
				WHERE company_code = ? AND po_branch IS NOT NULL
				GROUP BY po_branch
				ORDER BY order_count DESC, po_branch
				LIMIT %d`, src, limit),
				tenant.CompanyCode)
			if err != nil {
				return nil, err
			}

			out := make([]BranchStats, 0, len(res.Rows))
			for _, r := range res.Rows {
				b := BranchStats{
					Branch:        str(r["branch"]),
					OrderCount:    i64(r["order_count"]),
					TotalValue:    dec(r["total_value"]),
					UniqueVendors: i64(r["unique_vendors"]),
					EarliestOrder: date(r["earliest_order"]),
					LatestOrder:   date(r["latest_order"]),
				}
				b.AvgOrderValue = average(b.TotalValue, b.OrderCount)
				out = append(out, b)
			}
			return out, nil
		})
}

// MonthlyTrend is one month of MonthlyTrends.
type MonthlyTrend struct {
	Month         time.Time       `json:"month"`
	OrderCount    int64           `json:"order_count"`
	MonthlyTotal  decimal.Decimal `json:"monthly_total"`
	AvgOrderValue decimal.Decimal `json:"avg_order_value"`
	UniqueVendors int64           `json:"unique_vendors"`
}

// MonthlyTrends aggregates the last months calendar months, the current one
// included, newest first. branch matches as a case-insensitive prefix and
// vendor as a case-insensitive substring.
func (s *Service) MonthlyTrends(ctx context.Context, tenant model.TenantContext, months int, branch, vendor string) ([]MonthlyTrend, error) {
	months = orDefault(months, DefaultMonths)

	return run(ctx, s, tenant, "monthly_trends", []any{months, branch, vendor},
		func(ctx context.Context, src source) ([]MonthlyTrend, error) {
			w := where{"company_code = ?", "order_date IS NOT NULL"}
			args := []any{tenant.CompanyCode}
			if branch != "" {
				w = append(w, "po_branch ILIKE ? || '%'"+likeEscape)
				args = append(args, escapeLike(branch))
			}
			if vendor != "" {
				w = append(w, "po_payto_name ILIKE '%' || ? || '%'"+likeEscape)
				args = append(args, escapeLike(vendor))
			}
			w = append(w, fmt.Sprintf(
				"order_date >= CAST(DATE_TRUNC('month', CURRENT_DATE) - INTERVAL '%d months' AS DATE)", months-1))

			res, err := s.engine.Query(ctx, fmt.Sprintf(`
				SELECT
					CAST(DATE_TRUNC('month', order_date) AS DATE) AS month,
					COUNT(*) AS order_count,
					CAST(SUM(order_total) AS VARCHAR) AS monthly_total,
					COUNT(DISTINCT po_payto_name) AS unique_vendors
				FROM %s
				WHERE %s
				GROUP BY 1
				ORDER BY month DESC
				LIMIT %d`, src, w, months), args...)
			if err != nil {
				return nil, err
			}

			out := make([]MonthlyTrend, 0, len(res.Rows))
			for _, r := range res.Rows {
				m := MonthlyTrend{
					Month:         date(r["month"]),
					OrderCount:    i64(r["order_count"]),
					MonthlyTotal:  dec(r["monthly_total"]),
					UniqueVendors: i64(r["unique_vendors"]),
				}
				m.AvgOrderValue = average(m.MonthlyTotal, m.OrderCount)
				out = append(out, m)
			}
			return out, nil
		})
}

// Filter narrows Search and Records. String fields match as case-insensitive
// substrings; ranges are inclusive.
type Filter struct {
	PONumber  string
	Vendor    string
	Branch    string
	Company   string
	BatchID   string
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
}

func (f Filter) key() []any {
	return []any{f.PONumber, f.Vendor, f.Branch, f.Company, f.BatchID,
		optDecimal(f.MinAmount), optDecimal(f.MaxAmount), optDate(f.StartDate), optDate(f.EndDate), f.Limit}
}

// likeEscape makes a backslash escape the next pattern character.
const likeEscape = ` ESCAPE '\'`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike quotes the LIKE wildcards in v so it matches literally.
func escapeLike(v string) string {
	return likeEscaper.Replace(v)
}

func (f Filter) clause(companyCode string) (where, []any) {
	w := where{"company_code = ?"}
	args := []any{companyCode}
	like := func(col, v string) {
		if v != "" {
			w = append(w, col+" ILIKE '%' || ? || '%'"+likeEscape)
			args = append(args, escapeLike(v))
		}
	}
	like("po_number", f.PONumber)
	like("po_payto_name", f.Vendor)
	like("po_branch", f.Branch)
	like("po_company", f.Company)
	if f.BatchID != "" {
		w = append(w, "import_batch_id = ?")
		args = append(args, f.BatchID)
	}
	if f.MinAmount != nil {
		w = append(w, "order_total >= CAST(? AS DECIMAL(18,2))")
		args = append(args, f.MinAmount.String())
	}
	if f.MaxAmount != nil {
		w = append(w, "order_total <= CAST(? AS DECIMAL(18,2))")
		args = append(args, f.MaxAmount.String())
	}
	if f.StartDate != nil {
		w = append(w, "order_date >= CAST(? AS DATE)")
		args = append(args, f.StartDate.Format(time.DateOnly))
	}
	if f.EndDate != nil {
		w = append(w, "order_date <= CAST(? AS DATE)")
		args = append(args, f.EndDate.Format(time.DateOnly))
	}
	return w, args
}

// Search returns matching records, newest order first, capped at
// f.Limit (default 100).
func (s *Service) Search(ctx context.Context, tenant model.TenantContext, f Filter) ([]model.PurchaseOrder, error) {
	f.Limit = orDefault(f.Limit, DefaultSearchLimit)
	return run(ctx, s, tenant, "search", f.key(), func(ctx context.Context, src source) ([]model.PurchaseOrder, error) {
		return s.records(ctx, src, tenant.CompanyCode, f)
	})
}

// Records returns every matching record, newest order first. It bypasses
// the cache and applies a limit only when f.Limit > 0.
func (s *Service) Records(ctx context.Context, tenant model.TenantContext, f Filter) ([]model.PurchaseOrder, error) {
	if err := tenant.Validate(); err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeInvalidArgument, "invalid tenant")
	}
	exists, err := s.datasets.Exists(ctx, tenant.CompanyCode)
	if err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeStorageUnavailable, "failed to locate dataset")
	}
	if !exists {
		return nil, nil
	}
	out, err := s.records(ctx, source(engine.ReadParquet(s.datasets.Location(tenant.CompanyCode))), tenant.CompanyCode, f)
	if err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeQueryFailed, "records query failed").
			WithContext("params", f.key())
	}
	return out, nil
}

func (s *Service) records(ctx context.Context, src source, companyCode string, f Filter) ([]model.PurchaseOrder, error) {
	w, args := f.clause(companyCode)
	limit := ""
	if f.Limit > 0 {
		limit = fmt.Sprintf("LIMIT %d", f.Limit)
	}

	res, err := s.engine.Query(ctx, fmt.Sprintf(`
		SELECT
			po_payto_id, po_payto_name, po_company, po_branch, po_number,
			CAST(order_total AS VARCHAR) AS order_total,
			order_date, company_code, import_batch_id, imported_by, imported_at, source_file
		FROM %s
		WHERE %s
		ORDER BY order_date DESC, po_number
		%s`, src, w, limit), args...)
	if err != nil {
		return nil, err
	}

	out := make([]model.PurchaseOrder, 0, len(res.Rows))
	for _, r := range res.Rows {
		out = append(out, model.PurchaseOrder{
			PaytoID:       str(r[model.ColPaytoID]),
			PaytoName:     str(r[model.ColPaytoName]),
			Company:       str(r[model.ColCompany]),
			Branch:        str(r[model.ColBranch]),
			PONumber:      str(r[model.ColPONumber]),
			OrderTotal:    dec(r[model.ColOrderTotal]),
			OrderDate:     date(r[model.ColOrderDate]),
			CompanyCode:   str(r[model.ColCompanyCode]),
			ImportBatchID: str(r[model.ColImportBatchID]),
			ImportedBy:    str(r[model.ColImportedBy]),
			ImportedAt:    timestamp(r[model.ColImportedAt]),
			SourceFile:    str(r[model.ColSourceFile]),
		})
	}
	return out, nil
}

// RankedVendor is one entry of TopVendorsByBranch.
type RankedVendor struct {
	Vendor        string          `json:"vendor"`
	OrderCount    int64           `json:"order_count"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	AvgOrderValue decimal.Decimal `json:"avg_order_value"`
	Rank          int64           `json:"rank"`
}

// TopVendorsByBranch ranks vendors by spend within each branch and keeps
// those ranked topN or better whose spend is at least minTotal.
func (s *Service) TopVendorsByBranch(ctx context.Context, tenant model.TenantContext, topN int, minTotal decimal.Decimal) (map[string][]RankedVendor, error) {
	topN = orDefault(topN, DefaultTopPerBranch)

	return run(ctx, s, tenant, "top_vendors_by_branch", []any{topN, minTotal.String()},
		func(ctx context.Context, src source) (map[string][]RankedVendor, error) {
			res, err := s.engine.Query(ctx, fmt.Sprintf(`
				WITH vendor_stats AS (
					SELECT
						po_branch AS branch,
						po_payto_name AS vendor,
						COUNT(*) AS order_count,
						SUM(order_total) AS total,
						RANK() OVER (PARTITION BY po_branch ORDER BY SUM(order_total) DESC) AS vendor_rank
					FROM %s
					WHERE company_code = ? AND po_branch IS NOT NULL AND po_payto_name IS NOT NULL
					GROUP BY po_branch, po_payto_name
					HAVING SUM(order_total) >= CAST(? AS DECIMAL(18,2))
				)
				SELECT branch, vendor, order_count, CAST(total AS VARCHAR) AS total_spent, vendor_rank
				FROM vendor_stats
				WHERE vendor_rank <= ?
				ORDER BY branch, vendor_rank, vendor`, src),
				tenant.CompanyCode, minTotal.String(), topN)
			if err != nil {
				return nil, err
			}

			out := make(map[string][]RankedVendor)
			for _, r := range res.Rows {
				v := RankedVendor{
					Vendor:     str(r["vendor"]),
					OrderCount: i64(r["order_count"]),
					TotalSpent: dec(r["total_spent"]),
					Rank:       i64(r["vendor_rank"]),
				}
				v.AvgOrderValue = average(v.TotalSpent, v.OrderCount)
				branch := str(r["branch"])
				out[branch] = append(out[branch], v)
			}
			return out, nil
		})
}

// Summary is the tenant-wide overview.
type Summary struct {
	TotalOrders    int64           `json:"total_orders"`
	UniqueVendors  int64           `json:"unique_vendors"`
	UniqueBranches int64           `json:"unique_branches"`
	TotalValue     decimal.Decimal `json:"total_value"`
	AvgOrderValue  decimal.Decimal `json:"avg_order_value"`
	MinOrder       decimal.Decimal `json:"min_order"`
	MaxOrder       decimal.Decimal `json:"max_order"`
	EarliestOrder  *time.Time      `json:"earliest_order"`
	LatestOrder    *time.Time      `json:"latest_order"`
}

// SummaryStats returns the tenant-wide overview.
func (s *Service) SummaryStats(ctx context.Context, tenant model.TenantContext) (Summary, error) {
	return run(ctx, s, tenant, "summary", nil, func(ctx context.Context, src source) (Summary, error) {
		res, err := s.engine.Query(ctx, fmt.Sprintf(`
			SELECT
				COUNT(*) AS total_orders,
				COUNT(DISTINCT po_payto_name) AS unique_vendors,
				COUNT(DISTINCT po_branch) AS unique_branches,
				CAST(SUM(order_total) AS VARCHAR) AS total_value,
				CAST(MIN(order_total) AS VARCHAR) AS min_order,
				CAST(MAX(order_total) AS VARCHAR) AS max_order,
				MIN(order_date) AS earliest_order,
				MAX(order_date) AS latest_order
			FROM %s
			WHERE company_code = ?`, src),
			tenant.CompanyCode)
		if err != nil || len(res.Rows) == 0 {
			return Summary{}, err
		}

		r := res.Rows[0]
		sum := Summary{
			TotalOrders:    i64(r["total_orders"]),
			UniqueVendors:  i64(r["unique_vendors"]),
			UniqueBranches: i64(r["unique_branches"]),
			TotalValue:     dec(r["total_value"]),
			MinOrder:       dec(r["min_order"]),
			MaxOrder:       dec(r["max_order"]),
			EarliestOrder:  optTime(r["earliest_order"]),
			LatestOrder:    optTime(r["latest_order"]),
		}
		sum.AvgOrderValue = average(sum.TotalValue, sum.TotalOrders)
		return sum, nil
	})
}

// CompanyStats is one row of CompanyAnalysis.
type CompanyStats struct {
	Company       string          `json:"company"`
	OrderCount    int64           `json:"order_count"`
	TotalValue    decimal.Decimal `json:"total_value"`
	AvgOrderValue decimal.Decimal `json:"avg_order_value"`
	UniqueVendors int64           `json:"unique_vendors"`
}

// CompanyAnalysis groups orders by the po_company dimension, largest spend
// first.
func (s *Service) CompanyAnalysis(ctx context.Context, tenant model.TenantContext, limit int) ([]CompanyStats, error) {
	limit = orDefault(limit, DefaultCompanyLimit)

	return run(ctx, s, tenant, "companies", []any{limit},
		func(ctx context.Context, src source) ([]CompanyStats, error) {
			res, err := s.engine.Query(ctx, fmt.Sprintf(`
				SELECT
					po_company AS company,
					COUNT(*) AS order_count,
					CAST(SUM(order_total) AS VARCHAR) AS total_value,
					COUNT(DISTINCT po_payto_name) AS unique_vendors
				FROM %s
				WHERE company_code = ? AND po_company IS NOT NULL
				GROUP BY po_company
				ORDER BY SUM(order_total) DESC, po_company
				LIMIT %d`, src, limit),
				tenant.CompanyCode)
			if err != nil {
				return nil, err
			}
			out := make([]CompanyStats, 0, len(res.Rows))
			for _, r := range res.Rows {
				c := CompanyStats{
					Company:       str(r["company"]),
					OrderCount:    i64(r["order_count"]),
					TotalValue:    dec(r["total_value"]),
					UniqueVendors: i64(r["unique_vendors"]),
				}
				c.AvgOrderValue = average(c.TotalValue, c.OrderCount)
				out = append(out, c)
			}
			return out, nil
		})
}

// VendorCompany is one row of VendorCompanyBreakdown.
type VendorCompany struct {
	Company    string          `json:"company"`
	OrderCount int64           `json:"order_count"`
	TotalSpent decimal.Decimal `json:"total_spent"`
}

// VendorCompanyBreakdown splits one vendor's orders by po_company. The
// vendor name matches case-insensitively.
func (s *Service) VendorCompanyBreakdown(ctx context.Context, tenant model.TenantContext, vendor string) ([]VendorCompany, error) {
	if strings.TrimSpace(vendor) == "" {
		return nil, pferrors.InvalidArgument("vendor", vendor, "is required")
	}

	return run(ctx, s, tenant, "vendor_companies", []any{vendor},
		func(ctx context.Context, src source) ([]VendorCompany, error) {
			res, err := s.engine.Query(ctx, fmt.Sprintf(`
				SELECT
					COALESCE(po_company, '') AS company,
					COUNT(*) AS order_count,
					CAST(SUM(order_total) AS VARCHAR) AS total_spent
				FROM %s
				WHERE company_code = ? AND po_payto_name ILIKE ?%s
				GROUP BY 1
				ORDER BY SUM(order_total) DESC, 1`, src, likeEscape),
				tenant.CompanyCode, escapeLike(vendor))
			if err != nil {
				return nil, err
			}
			out := make([]VendorCompany, 0, len(res.Rows))
			for _, r := range res.Rows {
				out = append(out, VendorCompany{
					Company:    str(r["company"]),
					OrderCount: i64(r["order_count"]),
					TotalSpent: dec(r["total_spent"]),
				})
			}
			return out, nil
		})
}

// BatchStats summarizes the records of one import batch.
type BatchStats struct {
	BatchID    string          `json:"batch_id"`
	OrderCount int64           `json:"order_count"`
	TotalSpent decimal.Decimal `json:"total_spent"`
}

// BatchStats returns the record count and spend of one import batch.
func (s *Service) BatchStats(ctx context.Context, tenant model.TenantContext, batchID string) (BatchStats, error) {
	out, err := run(ctx, s, tenant, "batch_stats", []any{batchID},
		func(ctx context.Context, src source) (BatchStats, error) {
			res, err := s.engine.Query(ctx, fmt.Sprintf(`
				SELECT COUNT(*) AS order_count, CAST(SUM(order_total) AS VARCHAR) AS total_spent
				FROM %s
				WHERE company_code = ? AND import_batch_id = ?`, src),
				tenant.CompanyCode, batchID)
			if err != nil || len(res.Rows) == 0 {
				return BatchStats{BatchID: batchID}, err
			}
			return BatchStats{
				BatchID:    batchID,
				OrderCount: i64(res.Rows[0]["order_count"]),
				TotalSpent: dec(res.Rows[0]["total_spent"]),
			}, nil
		})
	out.BatchID = batchID
	return out, err
}

type where []string

func (w where) String() string {
	return strings.Join(w, " AND ")
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func optDecimal(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func optDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

package server

import (
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/logflow/poflow/internal/model"
	"github.com/logflow/poflow/pkg/export"
	"github.com/logflow/poflow/pkg/query/analytics"
)

// withTenant resolves the tenant, calls fn and writes its result.
func (s *Server) withTenant(w http.ResponseWriter, r *http.Request, fn func(model.TenantContext) (map[string]any, error)) {
	tenant, err := tenantFrom(r)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	body, err := fn(tenant)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, body)
}

// nonNil keeps empty results as [] in JSON.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func (s *Server) handleVendors(w http.ResponseWriter, r *http.Request) {
	s.withTenant(w, r, func(t model.TenantContext) (map[string]any, error) {
		limit, err := intParam(r, "limit", analytics.DefaultVendorLimit)
		if err != nil {
			return nil, err
		}
		minOrders, err := intParam(r, "min_orders", analytics.DefaultMinOrders)
		if err != nil {
			return nil, err
		}
		out, err := s.analytics.TopVendors(r.Context(), t, limit, minOrders, r.URL.Query().Get("sort_by"))
		return map[string]any{"vendors": nonNil(out)}, err
	})
}

func (s *Server) handleBranches(w http.ResponseWriter, r *http.Request) {
	s.withTenant(w, r, func(t model.TenantContext) (map[string]any, error) {
		limit, err := intParam(r, "limit", analytics.DefaultBranchLimit)
		if err != nil {
			return nil, err
		}
		out, err := s.analytics.BranchAnalysis(r.Context(), t, limit)
		return map[string]any{"branches": nonNil(out)}, err
	})
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	s.withTenant(w, r, func(t model.TenantContext) (map[string]any, error) {
		limit, err := intParam(r, "limit", analytics.DefaultCompanyLimit)
		if err != nil {
			return nil, err
		}
		out, err := s.analytics.CompanyAnalysis(r.Context(), t, limit)
		return map[string]any{"companies": nonNil(out)}, err
	})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	s.withTenant(w, r, func(t model.TenantContext) (map[string]any, error) {
		months, err := intParam(r, "months", analytics.DefaultMonths)
		if err != nil {
			return nil, err
		}
		q := r.URL.Query()
		out, err := s.analytics.MonthlyTrends(r.Context(), t, months, q.Get("branch"), q.Get("vendor"))
		return map[string]any{"trends": nonNil(out)}, err
	})
}

// filterFrom builds a search filter from query parameters.
func filterFrom(r *http.Request, defaultLimit int) (analytics.Filter, error) {
	q := r.URL.Query()
	f := analytics.Filter{
		PONumber: q.Get("po_number"),
		Vendor:   q.Get("vendor"),
		Branch:   q.Get("branch"),
		Company:  q.Get("company"),
		BatchID:  q.Get("batch_id"),
	}
	var err error
	if f.MinAmount, err = decimalParam(r, "min_amount"); err != nil {
		return f, err
	}
	if f.MaxAmount, err = decimalParam(r, "max_amount"); err != nil {
		return f, err
	}
	if f.StartDate, err = dateParam(r, "start_date"); err != nil {
		return f, err
	}
	if f.EndDate, err = dateParam(r, "end_date"); err != nil {
		return f, err
	}
	f.Limit, err = intParam(r, "limit", defaultLimit)
	return f, err
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.withTenant(w, r, func(t model.TenantContext) (map[string]any, error) {
		f, err := filterFrom(r, analytics.DefaultSearchLimit)
		if err != nil {
			return nil, err
		}
		out, err := s.analytics.Search(r.Context(), t, f)
		return map[string]any{"records": nonNil(out), "count": len(out)}, err
	})
}

func (s *Server) handleTopVendorsByBranch(w http.ResponseWriter, r *http.Request) {
	s.withTenant(w, r, func(t model.TenantContext) (map[string]any, error) {
		topN, err := intParam(r, "top_n", analytics.DefaultTopPerBranch)
		if err != nil {
			return nil, err
		}
		minTotal, err := decimalParam(r, "min_total")
		if err != nil {
			return nil, err
		}
		if minTotal == nil {
			minTotal = &decimal.Zero
		}
		out, err := s.analytics.TopVendorsByBranch(r.Context(), t, topN, *minTotal)
		if out == nil {
			out = map[string][]analytics.RankedVendor{}
		}
		return map[string]any{"branches": out}, err
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.withTenant(w, r, func(t model.TenantContext) (map[string]any, error) {
		out, err := s.analytics.SummaryStats(r.Context(), t)
		return map[string]any{"summary": out}, err
	})
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	s.withTenant(w, r, func(t model.TenantContext) (map[string]any, error) {
		out, err := s.analytics.FilterOptions(r.Context(), t)
		return map[string]any{"filters": out}, err
	})
}

func (s *Server) handleVendorCompanies(w http.ResponseWriter, r *http.Request) {
	s.withTenant(w, r, func(t model.TenantContext) (map[string]any, error) {
		vendor := r.URL.Query().Get("vendor")
		out, err := s.analytics.VendorCompanyBreakdown(r.Context(), t, vendor)
		return map[string]any{"vendor": vendor, "companies": nonNil(out)}, err
	})
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	s.withTenant(w, r, func(t model.TenantContext) (map[string]any, error) {
		info, err := s.datasets.Info(r.Context(), t.CompanyCode)
		return map[string]any{"dataset": info}, err
	})
}

// handleExport streams the filtered records as a CSV or XLSX download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	tenant, err := tenantFrom(r)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.jsonError(w, r, invalidFormat(r.URL.Query().Get("format"), err))
		return
	}
	f, err := filterFrom(r, 0)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	records, err := s.analytics.Records(r.Context(), tenant, f)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.Filename(tenant.CompanyCode)+`"`)
	if err := export.Write(w, format, records); err != nil {
		// Headers are already sent.
		s.log.Error("export failed", zap.String("company_code", tenant.CompanyCode), zap.Error(err))
	}
}

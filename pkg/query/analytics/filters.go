package analytics

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/logflow/poflow/internal/model"
)

// FilterOptions are the distinct values offered in dashboard dropdowns.
type FilterOptions struct {
	Vendors   []string `json:"vendors"`
	Branches  []string `json:"branches"`
	Companies []string `json:"companies"`
}

// FilterOptions lists the tenant's distinct vendors, branches and companies.
// The three lookups run concurrently.
func (s *Service) FilterOptions(ctx context.Context, tenant model.TenantContext) (FilterOptions, error) {
	return run(ctx, s, tenant, "filters", nil, func(ctx context.Context, src source) (FilterOptions, error) {
		var out FilterOptions
		g, ctx := errgroup.WithContext(ctx)
		targets := []struct {
			column string
			dst    *[]string
		}{
			{model.ColPaytoName, &out.Vendors},
			{model.ColBranch, &out.Branches},
			{model.ColCompany, &out.Companies},
		}
		for _, t := range targets {
			g.Go(func() error {
				values, err := s.distinct(ctx, src, tenant.CompanyCode, t.column)
				if err != nil {
					return err
				}
				*t.dst = values
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return FilterOptions{}, err
		}
		return out, nil
	})
}

func (s *Service) distinct(ctx context.Context, src source, companyCode, column string) ([]string, error) {
	res, err := s.engine.Query(ctx, fmt.Sprintf(`
		SELECT DISTINCT %[2]s AS value
		FROM %[1]s
		WHERE company_code = ? AND %[2]s IS NOT NULL AND %[2]s <> ''
		ORDER BY value`, src, column),
		companyCode)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(res.Rows))
	for _, r := range res.Rows {
		out = append(out, str(r["value"]))
	}
	return out, nil
}

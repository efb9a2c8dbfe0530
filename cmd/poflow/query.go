package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/logflow/poflow/internal/model"
	"github.com/logflow/poflow/pkg/export"
	"github.com/logflow/poflow/pkg/query/analytics"
	"github.com/logflow/poflow/pkg/tui"
)

var (
	queryCompany   string
	queryLimit     int
	queryJSON      bool
	queryMinOrders int
	querySortBy    string
	queryMonths    int
	queryBranch    string
	queryVendor    string
	queryTopN      int
	queryMinTotal  string
	queryPONumber  string
	queryCompanyF  string
	queryBatch     string
	queryStart     string
	queryEnd       string
	queryExport    string
)

var queryCmd = &cobra.Command{
	Use:   "query <shape>",
	Short: "Run an analytics query against a company's dataset",
	Long: `Run one of the dashboard queries from the command line.

Shapes:
  vendors           top vendors by spend or order count
  branches          spend per branch
  companies         spend per purchasing company
  trends            monthly totals (--months, --branch, --vendor)
  search            matching orders (--vendor, --po, --branch, --start, --end)
  top-by-branch     top N vendors within each branch (--top, --min-total)
  summary           dataset totals
  filters           distinct vendors, branches and companies
  vendor-companies  one vendor's spend per company (--vendor)
  batch             totals of one import (--batch)

Examples:
  poflow query vendors --company heritage --limit 10
  poflow query trends --company heritage --months 6 --json
  poflow query search --company heritage --vendor acme --export orders.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	f := queryCmd.Flags()
	f.StringVarP(&queryCompany, "company", "c", "", "Company code (required)")
	f.IntVarP(&queryLimit, "limit", "n", 0, "Maximum rows (0 uses the query default)")
	f.BoolVar(&queryJSON, "json", false, "Print JSON instead of a table")
	f.IntVar(&queryMinOrders, "min-orders", 1, "vendors: minimum order count")
	f.StringVar(&querySortBy, "sort", analytics.SortByTotalSpent, "vendors: total_spent or order_count")
	f.IntVar(&queryMonths, "months", 12, "trends: months to include")
	f.StringVar(&queryBranch, "branch", "", "Branch filter")
	f.StringVar(&queryVendor, "vendor", "", "Vendor filter")
	f.IntVar(&queryTopN, "top", 5, "top-by-branch: vendors per branch")
	f.StringVar(&queryMinTotal, "min-total", "0", "top-by-branch: minimum vendor spend")
	f.StringVar(&queryPONumber, "po", "", "search: PO number filter")
	f.StringVar(&queryCompanyF, "po-company", "", "search: purchasing company filter")
	f.StringVar(&queryBatch, "batch", "", "Import batch id")
	f.StringVar(&queryStart, "start", "", "search: first order date (YYYY-MM-DD)")
	f.StringVar(&queryEnd, "end", "", "search: last order date (YYYY-MM-DD)")
	f.StringVar(&queryExport, "export", "", "search: write results to a .csv or .xlsx file")
	_ = queryCmd.MarkFlagRequired("company")

	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	tenant := model.NewTenant(queryCompany, "")
	out := cmd.OutOrStdout()
	svc := a.analytics

	switch args[0] {
	case "vendors":
		rows, err := svc.TopVendors(ctx, tenant, queryLimit, queryMinOrders, querySortBy)
		if err != nil {
			return err
		}
		return emit(out, rows, []string{"Vendor", "ID", "Orders", "Total", "Avg", "Last order"}, func() [][]string {
			t := make([][]string, len(rows))
			for i, r := range rows {
				t[i] = []string{r.Vendor, r.VendorID, count(r.OrderCount), money(r.TotalSpent), money(r.AvgOrderValue), day(r.LastOrderDate)}
			}
			return t
		})
	case "branches":
		rows, err := svc.BranchAnalysis(ctx, tenant, queryLimit)
		if err != nil {
			return err
		}
		return emit(out, rows, []string{"Branch", "Orders", "Total", "Avg", "Vendors"}, func() [][]string {
			t := make([][]string, len(rows))
			for i, r := range rows {
				t[i] = []string{r.Branch, count(r.OrderCount), money(r.TotalValue), money(r.AvgOrderValue), count(r.UniqueVendors)}
			}
			return t
		})
	case "companies":
		rows, err := svc.CompanyAnalysis(ctx, tenant, queryLimit)
		if err != nil {
			return err
		}
		return emit(out, rows, []string{"Company", "Orders", "Total", "Avg", "Vendors"}, func() [][]string {
			t := make([][]string, len(rows))
			for i, r := range rows {
				t[i] = []string{r.Company, count(r.OrderCount), money(r.TotalValue), money(r.AvgOrderValue), count(r.UniqueVendors)}
			}
			return t
		})
	case "trends":
		rows, err := svc.MonthlyTrends(ctx, tenant, queryMonths, queryBranch, queryVendor)
		if err != nil {
			return err
		}
		return emit(out, rows, []string{"Month", "Orders", "Total", "Avg", "Vendors"}, func() [][]string {
			t := make([][]string, len(rows))
			for i, r := range rows {
				t[i] = []string{r.Month.Format("2006-01"), count(r.OrderCount), money(r.MonthlyTotal), money(r.AvgOrderValue), count(r.UniqueVendors)}
			}
			return t
		})
	case "search":
		f, err := searchFilter()
		if err != nil {
			return err
		}
		if queryExport != "" {
			return exportRecords(ctx, svc, tenant, f, queryExport)
		}
		rows, err := svc.Search(ctx, tenant, f)
		if err != nil {
			return err
		}
		return emit(out, rows, export.Header, func() [][]string {
			t := make([][]string, len(rows))
			for i, r := range rows {
				t[i] = []string{r.PONumber, r.PaytoName, r.Company, r.Branch, money(r.OrderTotal), r.OrderDate.Format(export.DateLayout)}
			}
			return t
		})
	case "top-by-branch":
		minTotal, err := decimal.NewFromString(queryMinTotal)
		if err != nil {
			return fmt.Errorf("invalid --min-total %q: %w", queryMinTotal, err)
		}
		byBranch, err := svc.TopVendorsByBranch(ctx, tenant, queryTopN, minTotal)
		if err != nil {
			return err
		}
		return emit(out, byBranch, []string{"Branch", "Rank", "Vendor", "Orders", "Total"}, func() [][]string {
			var t [][]string
			for _, branch := range sortedKeys(byBranch) {
				for _, v := range byBranch[branch] {
					t = append(t, []string{branch, count(v.Rank), v.Vendor, count(v.OrderCount), money(v.TotalSpent)})
				}
			}
			return t
		})
	case "summary":
		s, err := svc.SummaryStats(ctx, tenant)
		if err != nil {
			return err
		}
		return emit(out, s, []string{"Metric", "Value"}, func() [][]string {
			return [][]string{
				{"Orders", count(s.TotalOrders)},
				{"Vendors", count(s.UniqueVendors)},
				{"Branches", count(s.UniqueBranches)},
				{"Total value", money(s.TotalValue)},
				{"Average order", money(s.AvgOrderValue)},
				{"Smallest order", money(s.MinOrder)},
				{"Largest order", money(s.MaxOrder)},
				{"Earliest order", optDay(s.EarliestOrder)},
				{"Latest order", optDay(s.LatestOrder)},
			}
		})
	case "filters":
		opts, err := svc.FilterOptions(ctx, tenant)
		if err != nil {
			return err
		}
		return emit(out, opts, []string{"Field", "Values"}, func() [][]string {
			return [][]string{
				{"vendors", strconv.Itoa(len(opts.Vendors))},
				{"branches", strconv.Itoa(len(opts.Branches))},
				{"companies", strconv.Itoa(len(opts.Companies))},
			}
		})
	case "vendor-companies":
		if queryVendor == "" {
			return fmt.Errorf("--vendor is required for vendor-companies")
		}
		rows, err := svc.VendorCompanyBreakdown(ctx, tenant, queryVendor)
		if err != nil {
			return err
		}
		return emit(out, rows, []string{"Company", "Orders", "Total"}, func() [][]string {
			t := make([][]string, len(rows))
			for i, r := range rows {
				t[i] = []string{r.Company, count(r.OrderCount), money(r.TotalSpent)}
			}
			return t
		})
	case "batch":
		if queryBatch == "" {
			return fmt.Errorf("--batch is required for batch")
		}
		s, err := svc.BatchStats(ctx, tenant, queryBatch)
		if err != nil {
			return err
		}
		return emit(out, s, []string{"Batch", "Orders", "Total"}, func() [][]string {
			return [][]string{{s.BatchID, count(s.OrderCount), money(s.TotalSpent)}}
		})
	default:
		return fmt.Errorf("unknown query shape %q", args[0])
	}
}

func searchFilter() (analytics.Filter, error) {
	f := analytics.Filter{
		PONumber: queryPONumber,
		Vendor:   queryVendor,
		Branch:   queryBranch,
		Company:  queryCompanyF,
		BatchID:  queryBatch,
		Limit:    queryLimit,
	}
	for _, d := range []struct {
		flag, value string
		dst         **time.Time
	}{
		{"--start", queryStart, &f.StartDate},
		{"--end", queryEnd, &f.EndDate},
	} {
		if d.value == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, d.value)
		if err != nil {
			return f, fmt.Errorf("invalid %s %q: want YYYY-MM-DD", d.flag, d.value)
		}
		*d.dst = &t
	}
	return f, nil
}

func exportRecords(ctx context.Context, svc *analytics.Service, tenant model.TenantContext, f analytics.Filter, path string) error {
	format, err := export.ParseFormat(extOf(path))
	if err != nil {
		return err
	}
	records, err := svc.Records(ctx, tenant, f)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(file, format, records); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s orders to %s\n", tui.FormatNumber(int64(len(records))), path)
	return nil
}

// emit prints v as indented JSON with --json, otherwise as a table.
func emit(w io.Writer, v any, headers []string, rows func() [][]string) error {
	if queryJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	t := rows()
	if len(t) == 0 {
		fmt.Fprintln(w, "no data")
		return nil
	}
	fmt.Fprintln(w, tui.RenderTable(headers, t))
	return nil
}

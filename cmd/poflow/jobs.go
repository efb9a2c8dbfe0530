package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/poflow/internal/model"
	"github.com/logflow/poflow/pkg/jobs"
	"github.com/logflow/poflow/pkg/tui"
)

var (
	jobsCompany string
	jobsLimit   int
	jobsJSON    bool
	jobsUser    string
	jobsConfirm string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage import jobs",
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <batch-id>",
	Short: "Show one import job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, jobsCompany, func(ctx context.Context, a *app, tenant model.TenantContext) error {
			job, err := a.imports.ImportStatus(ctx, tenant, args[0])
			if err != nil {
				return err
			}
			if jobsJSON {
				return printJSON(cmd, job)
			}
			elapsed := time.Duration(0)
			if job.CompletedAt != nil {
				elapsed = job.CompletedAt.Sub(job.CreatedAt)
			}
			tui.PrintImportReport(cmd.OutOrStdout(), job, elapsed)
			return nil
		})
	},
}

var jobsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent imports, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, jobsCompany, func(ctx context.Context, a *app, tenant model.TenantContext) error {
			list, err := a.imports.ImportHistory(ctx, tenant, jobsLimit)
			if err != nil {
				return err
			}
			if jobsJSON {
				return printJSON(cmd, list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no imports")
				return nil
			}
			rows := make([][]string, len(list))
			for i, j := range list {
				rows[i] = []string{
					j.BatchID,
					j.Filename,
					string(j.Status),
					count(j.ImportedRows),
					count(j.SkippedRows),
					count(j.ErrorRows),
					j.CreatedAt.Local().Format(time.DateTime),
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderTable(
				[]string{"Batch", "File", "Status", "Imported", "Skipped", "Errors", "Started"}, rows))
			return nil
		})
	},
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <batch-id>",
	Short: "Delete the orders of one import",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, jobsCompany, func(ctx context.Context, a *app, tenant model.TenantContext) error {
			n, err := a.imports.DeleteBatch(ctx, tenant, args[0], actor())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s orders from batch %s\n", count(n), args[0])
			return nil
		})
	},
}

var jobsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every order of a company",
	Long: fmt.Sprintf(`Delete every stored order of the company and mark its imports deleted.

The command refuses to run unless --confirm %s is given.`, jobs.ConfirmDeleteAll),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, jobsCompany, func(ctx context.Context, a *app, tenant model.TenantContext) error {
			n, err := a.imports.ClearAll(ctx, tenant, actor(), jobsConfirm)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s orders of %s\n", count(n), tenant.CompanyCode)
			return nil
		})
	},
}

func init() {
	jobsCmd.PersistentFlags().StringVarP(&jobsCompany, "company", "c", "", "Company code (required)")
	jobsCmd.PersistentFlags().BoolVar(&jobsJSON, "json", false, "Print JSON")
	jobsCmd.PersistentFlags().StringVar(&jobsUser, "user", "", "Actor recorded in logs (default $USER)")
	_ = jobsCmd.MarkPersistentFlagRequired("company")

	jobsHistoryCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 50, "Maximum jobs")
	jobsClearCmd.Flags().StringVar(&jobsConfirm, "confirm", "", "Must be "+jobs.ConfirmDeleteAll)

	jobsCmd.AddCommand(jobsStatusCmd, jobsHistoryCmd, jobsDeleteCmd, jobsClearCmd)
	rootCmd.AddCommand(jobsCmd)
}

func actor() string {
	if jobsUser != "" {
		return jobsUser
	}
	return os.Getenv("USER")
}

// withApp runs fn against a fully wired app scoped to company.
func withApp(cmd *cobra.Command, company string, fn func(ctx context.Context, a *app, tenant model.TenantContext) error) error {
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

	return fn(ctx, a, model.NewTenant(company, "admin"))
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/logflow/poflow/internal/model"
	"github.com/logflow/poflow/pkg/tui"
)

var (
	datasetCompany string
	datasetJSON    bool
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Show where a company's Parquet dataset lives",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, datasetCompany, func(ctx context.Context, a *app, tenant model.TenantContext) error {
			info, err := a.datasets.Info(ctx, tenant.CompanyCode)
			if err != nil {
				return err
			}
			if datasetJSON {
				return printJSON(cmd, info)
			}
			rows := [][]string{
				{"Company", tenant.CompanyCode},
				{"Key", info.Key},
				{"Location", info.Location},
				{"Exists", fmt.Sprint(info.Exists)},
			}
			if info.Exists {
				rows = append(rows,
					[]string{"Size", tui.FormatBytes(info.Size)},
					[]string{"Last modified", info.LastModified.Local().Format("2006-01-02 15:04:05")},
				)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderTable([]string{"Field", "Value"}, rows))
			return nil
		})
	},
}

func init() {
	datasetCmd.Flags().StringVarP(&datasetCompany, "company", "c", "", "Company code (required)")
	datasetCmd.Flags().BoolVar(&datasetJSON, "json", false, "Print JSON")
	_ = datasetCmd.MarkFlagRequired("company")

	rootCmd.AddCommand(datasetCmd)
}

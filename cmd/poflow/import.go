package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/logflow/poflow/internal/model"
	"github.com/logflow/poflow/pkg/ingest"
	"github.com/logflow/poflow/pkg/tui"
)

var (
	importCompany  string
	importRole     string
	importMode     string
	importSkipRows int
	importUser     string
	importQuiet    bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a purchase-order CSV or XLSX file",
	Long: `Import a purchase-order export into the company's dataset.

The file is read in batches; each committed batch updates the job counters
and republishes the company's Parquet dataset.

Modes:
  skip_existing  keep stored orders, count incoming duplicates as skipped
  overwrite      replace stored orders that share a PO number

Examples:
  poflow import orders.csv --company heritage
  poflow import export.xlsx --company heritage --mode overwrite
  poflow import report.csv --company heritage --skip-rows 3`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importCompany, "company", "c", "", "Company code to import into (required)")
	importCmd.Flags().StringVar(&importRole, "role", "admin", "Caller role")
	importCmd.Flags().StringVarP(&importMode, "mode", "m", "", "Duplicate handling: skip_existing or overwrite (default from config)")
	importCmd.Flags().IntVar(&importSkipRows, "skip-rows", 0, "Lines to drop before the header row")
	importCmd.Flags().StringVar(&importUser, "user", "", "Recorded as imported_by (default $USER)")
	importCmd.Flags().BoolVarP(&importQuiet, "quiet", "q", false, "Hide the progress bar")
	_ = importCmd.MarkFlagRequired("company")

	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

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

	mode := importMode
	if mode == "" {
		mode = cfg.Ingest.DefaultMode
	}
	user := importUser
	if user == "" {
		user = os.Getenv("USER")
	}

	var bar *progressbar.ProgressBar
	opts := ingest.RunOptions{}
	if !importQuiet {
		opts.Progress = func(p ingest.Progress) {
			if bar == nil {
				bar = tui.ShowProgress(os.Stderr, p.TotalRows, "importing "+filepath.Base(path))
			}
			_ = bar.Set64(p.ImportedRows + p.SkippedRows + p.ErrorRows)
		}
	}

	tenant := model.NewTenant(importCompany, importRole)
	start := time.Now()
	res, err := a.imports.Import(ctx, tenant, ingest.ImportRequest{
		Data:      data,
		SkipRows:  importSkipRows,
		Mode:      model.ImportMode(mode),
		UserEmail: user,
		Filename:  filepath.Base(path),
	}, opts)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if res == nil {
		return err
	}

	job, jerr := a.imports.ImportStatus(ctx, tenant, res.BatchID)
	if jerr != nil {
		return jerr
	}
	tui.PrintImportReport(cmd.OutOrStdout(), job, time.Since(start))
	return err
}

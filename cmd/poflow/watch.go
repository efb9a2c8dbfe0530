package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/logflow/poflow/internal/model"
	"github.com/logflow/poflow/pkg/lifecycle"
)

var (
	watchCompany  string
	watchMode     string
	watchPattern  string
	watchExisting bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Import files as they are dropped into a directory",
	Long: `Watch a directory and import every new or rewritten file matching the
pattern. Writes are debounced so a file is imported once it stops changing.

Examples:
  poflow watch /srv/drop/heritage --company heritage
  poflow watch ./inbox --company heritage --pattern '*.xlsx' --existing`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchCompany, "company", "c", "", "Company code to import into (required)")
	watchCmd.Flags().StringVarP(&watchMode, "mode", "m", "", "Duplicate handling: skip_existing or overwrite")
	watchCmd.Flags().StringVar(&watchPattern, "pattern", "", "File name glob (default from config)")
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "Also import files already in the directory")
	_ = watchCmd.MarkFlagRequired("company")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if watchMode != "" {
		cfg.Ingest.DefaultMode = watchMode
	}
	if watchPattern != "" {
		cfg.Watch.Pattern = watchPattern
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := lifecycle.SignalContext(cmd.Context())
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	w, err := newDropWatcher(args[0], cfg, a, model.NewTenant(watchCompany, ""), watchExisting, log)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "watching %s for %s (ctrl-c to stop)\n", args[0], cfg.Watch.Pattern)
	if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

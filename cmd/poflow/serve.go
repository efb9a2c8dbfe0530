package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/poflow/internal/model"
	"github.com/logflow/poflow/pkg/config"
	"github.com/logflow/poflow/pkg/ingest"
	"github.com/logflow/poflow/pkg/lifecycle"
	"github.com/logflow/poflow/pkg/server"
	"github.com/logflow/poflow/pkg/telemetry"
	"github.com/logflow/poflow/pkg/watch"
)

var (
	servePort         int
	serveHost         string
	serveWatchDir     string
	serveWatchCompany string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the JSON API used by the dashboard.

Tenant identity is taken from the X-Company-Code, X-Role and X-User-Email
headers set by the upstream auth proxy.

On SIGINT or SIGTERM the server stops accepting requests, waits for running
imports to finish and flushes traces before exiting.

Examples:
  poflow serve
  poflow serve --port 3000 --host 0.0.0.0
  poflow serve --watch /srv/drop/heritage --watch-company heritage`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (overrides config)")
	serveCmd.Flags().StringVar(&serveWatchDir, "watch", "", "Also import files dropped into this directory")
	serveCmd.Flags().StringVar(&serveWatchCompany, "watch-company", "", "Company code for --watch imports")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if serveWatchDir != "" && serveWatchCompany == "" {
		return fmt.Errorf("--watch-company is required with --watch")
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := lifecycle.SignalContext(cmd.Context())
	defer stop()

	flushTraces, err := telemetry.Setup(ctx, cfg.Telemetry, version, log)
	if err != nil {
		return err
	}

	broker := server.NewBroker()
	a, err := newApp(ctx, cfg, log, ingest.WithProgressHook(broker.Publish))
	if err != nil {
		return err
	}

	mgr := lifecycle.NewShutdownManager(lifecycle.DefaultShutdownConfig(), log)
	srv := server.New(cfg.Server, server.Deps{
		Imports:   a.imports,
		Analytics: a.analytics,
		Datasets:  a.datasets,
		Broker:    broker,
		Health:    mgr.IsHealthy,
	}, log)

	serveCtx, cancelServe := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelServe()
	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, mgr.Middleware)
	})
	if serveWatchDir != "" {
		tenant := model.NewTenant(serveWatchCompany, "")
		w, err := newDropWatcher(serveWatchDir, cfg, a, tenant, false, log)
		if err != nil {
			cancelServe()
			_ = g.Wait()
			_ = a.close(context.Background())
			return err
		}
		g.Go(func() error {
			if err := w.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	mgr.Register("http", func(context.Context) error {
		cancelServe()
		return g.Wait()
	})
	mgr.Register("imports", a.close)
	mgr.Register("telemetry", func(ctx context.Context) error { return flushTraces(ctx) })

	fmt.Fprintf(os.Stderr, "poflow %s listening on http://%s\n", version, srv.Addr())

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case <-gctx.Done():
	}
	return mgr.Shutdown(context.Background())
}

// newDropWatcher wires a folder watcher to synchronous imports for tenant.
func newDropWatcher(dir string, cfg *config.Config, a *app, tenant model.TenantContext, existing bool, log *zap.Logger) (*watch.Watcher, error) {
	mode := model.ImportMode(cfg.Ingest.DefaultMode)
	return watch.New(dir, watch.Options{
		Pattern:  cfg.Watch.Pattern,
		Debounce: cfg.Watch.Debounce,
		Existing: existing,
	}, func(ctx context.Context, path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		res, err := a.imports.Import(ctx, tenant, ingest.ImportRequest{
			Data:      data,
			Mode:      mode,
			UserEmail: "watch",
			Filename:  filepath.Base(path),
		}, ingest.RunOptions{})
		if err != nil {
			return err
		}
		log.Info("dropped file imported",
			zap.String("path", path),
			zap.String("batch_id", res.BatchID),
			zap.String("status", string(res.Status)),
			zap.Int64("imported_rows", res.ImportedRows),
			zap.Int64("error_rows", res.ErrorRows))
		return nil
	}, log)
}

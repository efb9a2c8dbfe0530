package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/logflow/poflow/pkg/config"
	"github.com/logflow/poflow/pkg/ingest"
	"github.com/logflow/poflow/pkg/interfaces"
	"github.com/logflow/poflow/pkg/jobs"
	"github.com/logflow/poflow/pkg/query/analytics"
	"github.com/logflow/poflow/pkg/query/cache"
	"github.com/logflow/poflow/pkg/query/engine"
	"github.com/logflow/poflow/pkg/storage/object"
	"github.com/logflow/poflow/pkg/storage/s3"
	"github.com/logflow/poflow/pkg/store"
	"github.com/logflow/poflow/pkg/writer"
)

// app holds the wired services of one process.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	storage   interfaces.ObjectStorage
	datasets  *writer.Dataset
	records   store.RecordStore
	tracker   jobs.Tracker
	imports   *ingest.Service
	analytics *analytics.Service
}

// newApp builds storage, the record backend, the job tracker, the ingestion
// service and the analytics layer from cfg. Extra pipeline options (such as
// a progress hook) are appended to the defaults.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...ingest.Option) (*app, error) {
	a := &app{cfg: cfg, log: log}

	var err error
	if a.storage, err = newStorage(ctx, cfg.Storage); err != nil {
		return nil, err
	}

	codec, err := writer.ParseCompression(cfg.Storage.Compression)
	if err != nil {
		return nil, err
	}
	a.datasets, err = writer.NewDataset(a.storage, cfg.Storage.DatasetKey, writer.Config{
		Compression:  codec,
		RowGroupSize: cfg.Storage.RowGroupSize,
	}, log)
	if err != nil {
		return nil, err
	}

	if a.records, err = newRecordStore(cfg.Store, a.datasets); err != nil {
		return nil, err
	}
	if a.tracker, err = newTracker(cfg.Jobs); err != nil {
		a.records.Close()
		return nil, err
	}

	ecfg := engine.Config{Threads: cfg.Query.Threads, MemoryLimit: cfg.Query.MemoryLimit}
	if rc, ok := a.storage.(interfaces.RemoteCredentials); ok {
		ecfg.Remote = rc
	}
	var results *cache.Cache
	if cfg.Query.CacheTTL > 0 {
		results = cache.NewCache(cfg.Query.CacheSize, cfg.Query.CacheTTL)
	}
	a.analytics = analytics.New(engine.New(ecfg, log), a.datasets, results, log)

	pipelineOpts := append([]ingest.Option{
		ingest.WithDataset(a.datasets),
		ingest.WithChangeHook(a.analytics.Invalidate),
		ingest.WithLogger(log),
	}, opts...)
	p := ingest.NewPipeline(ingest.Config{
		BatchSize:       cfg.Ingest.BatchSize,
		MaxErrorSamples: cfg.Ingest.MaxErrorSamples,
	}, a.records, a.tracker, pipelineOpts...)
	a.imports = ingest.NewService(p, ingest.NewRunner(cfg.Ingest.Workers, cfg.Ingest.QueueSize))

	log.Debug("app wired",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("store", a.records.Name()),
		zap.String("jobs", cfg.Jobs.Backend))
	return a, nil
}

// close drains running imports and releases the backends.
func (a *app) close(ctx context.Context) error {
	err := a.imports.Shutdown(ctx)
	if cerr := a.tracker.Close(); err == nil {
		err = cerr
	}
	if cerr := a.records.Close(); err == nil {
		err = cerr
	}
	return err
}

func newStorage(ctx context.Context, c config.StorageConfig) (interfaces.ObjectStorage, error) {
	switch c.Backend {
	case "s3":
		return s3.NewClient(ctx, s3.Config{
			Region:           c.S3.Region,
			Bucket:           c.S3.Bucket,
			Endpoint:         c.S3.Endpoint,
			UsePathStyle:     c.S3.UsePathStyle,
			AccessKeyID:      c.S3.AccessKeyID,
			SecretAccessKey:  c.S3.SecretAccessKey,
			SessionToken:     c.S3.SessionToken,
			OperationTimeout: c.S3.Timeout,
		})
	default:
		if err := os.MkdirAll(c.LocalRoot, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", c.LocalRoot, err)
		}
		return object.NewLocalStorage(c.LocalRoot)
	}
}

func newRecordStore(c config.StoreConfig, ds *writer.Dataset) (store.RecordStore, error) {
	switch c.Backend {
	case "memory":
		return store.NewMemory(), nil
	case "table":
		if err := ensureParent(c.TablePath); err != nil {
			return nil, err
		}
		return store.NewTable(c.TablePath)
	default:
		return store.NewColumnar(ds), nil
	}
}

func newTracker(c config.JobsConfig) (jobs.Tracker, error) {
	switch c.Backend {
	case "memory":
		return jobs.NewMemory(), nil
	case "redis":
		rc := jobs.DefaultRedisConfig(c.RedisAddress)
		rc.Password = c.RedisPassword
		rc.Database = c.RedisDatabase
		if c.RedisPrefix != "" {
			rc.Prefix = c.RedisPrefix
		}
		rc.TTL = c.RetainFor
		return jobs.NewRedis(rc)
	default:
		if err := ensureParent(c.DuckDBPath); err != nil {
			return nil, err
		}
		return jobs.NewDuckDB(c.DuckDBPath)
	}
}

// ensureParent creates the directory holding a database file.
func ensureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return nil
}

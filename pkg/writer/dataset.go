package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/logflow/poflow/internal/model"
	"github.com/logflow/poflow/internal/pool"
	pferrors "github.com/logflow/poflow/pkg/errors"
	"github.com/logflow/poflow/pkg/interfaces"
	"github.com/logflow/poflow/pkg/logger"
)

// DefaultKeyTemplate is the well-known location of a tenant dataset.
const DefaultKeyTemplate = "analytics/{company_code}/purchase_orders.parquet"

const contentType = "application/vnd.apache.parquet"

// WriteMode selects how a dataset write treats existing data.
type WriteMode int

const (
	// ModeReplace overwrites the dataset with exactly the given records.
	ModeReplace WriteMode = iota
	// ModeAppend keeps the existing records and adds the given ones after them.
	ModeAppend
)

func (m WriteMode) String() string {
	if m == ModeAppend {
		return "append"
	}
	return "replace"
}

// WriteResult describes a committed dataset write.
type WriteResult struct {
	Key      string
	Location string
	Rows     int64
	Bytes    int64
}

// Info is the metadata of a tenant dataset.
type Info struct {
	Exists       bool      `json:"exists"`
	Key          string    `json:"key"`
	Location     string    `json:"location"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified,omitempty"`
}

// Dataset reads and writes per-tenant Parquet datasets on object storage.
type Dataset struct {
	storage     interfaces.ObjectStorage
	keyTemplate string
	cfg         Config
	buffers     *pool.BufferPool
	log         *zap.Logger
}

// NewDataset creates a Dataset. An empty keyTemplate selects DefaultKeyTemplate.
func NewDataset(storage interfaces.ObjectStorage, keyTemplate string, cfg Config, log *zap.Logger) (*Dataset, error) {
	if keyTemplate == "" {
		keyTemplate = DefaultKeyTemplate
	}
	if !strings.Contains(keyTemplate, "{company_code}") {
		return nil, pferrors.InvalidArgument("dataset_key", keyTemplate, "must contain {company_code}")
	}
	return &Dataset{
		storage:     storage,
		keyTemplate: keyTemplate,
		cfg:         cfg,
		buffers:     pool.NewBufferPool(pool.DefaultBufferSize),
		log:         logger.OrNop(log).Named("writer"),
	}, nil
}

// Storage returns the underlying object storage.
func (d *Dataset) Storage() interfaces.ObjectStorage {
	return d.storage
}

// Key resolves the object key of a tenant dataset.
func (d *Dataset) Key(companyCode string) string {
	return strings.ReplaceAll(d.keyTemplate, "{company_code}", sanitize(companyCode))
}

// Location returns the address the query engine reads a tenant dataset from.
func (d *Dataset) Location(companyCode string) string {
	return d.storage.Location(d.Key(companyCode))
}

func sanitize(companyCode string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return r.Replace(strings.TrimSpace(companyCode))
}

// Write commits records to the tenant dataset. In ModeAppend the existing
// object is loaded first; if that read fails for any reason other than the
// object not existing, the write is aborted and nothing is uploaded.
func (d *Dataset) Write(ctx context.Context, companyCode string, records []model.PurchaseOrder, mode WriteMode) (*WriteResult, error) {
	key := d.Key(companyCode)
	ctx, span := otel.Tracer("poflow/writer").Start(ctx, "dataset.write")
	defer span.End()
	span.SetAttributes(
		attribute.String("company_code", companyCode),
		attribute.String("key", key),
		attribute.String("mode", mode.String()),
		attribute.Int("records", len(records)),
	)

	rows := records
	if mode == ModeAppend {
		existing, err := d.read(ctx, key)
		switch {
		case errors.Is(err, interfaces.ErrObjectNotFound):
			existing = nil
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, "read existing dataset")
			return nil, pferrors.Wrap(err, pferrors.CodeTransientRead, "failed to read existing dataset").
				WithContext("key", key)
		}
		rows = make([]model.PurchaseOrder, 0, len(existing)+len(records))
		rows = append(rows, existing...)
		rows = append(rows, records...)
	}

	buf := d.buffers.Get()
	defer d.buffers.Put(buf)
	n, err := Encode(buf, rows, d.cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode")
		return nil, pferrors.Wrap(err, pferrors.CodeWriteFailed, "failed to encode dataset").
			WithContext("key", key)
	}

	size := int64(buf.Len())
	if err := d.storage.Put(ctx, key, buf, interfaces.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"company_code": companyCode},
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload")
		return nil, pferrors.Wrap(err, pferrors.CodeStorageUnavailable, "failed to upload dataset").
			WithContext("key", key)
	}

	d.log.Debug("dataset written",
		zap.String("company_code", companyCode),
		zap.String("key", key),
		zap.Stringer("mode", mode),
		zap.Int64("rows", n),
		zap.Int64("bytes", size))

	return &WriteResult{
		Key:      key,
		Location: d.storage.Location(key),
		Rows:     n,
		Bytes:    size,
	}, nil
}

// Read returns every record of the tenant dataset. A missing dataset yields
// an error wrapping interfaces.ErrObjectNotFound.
func (d *Dataset) Read(ctx context.Context, companyCode string) ([]model.PurchaseOrder, error) {
	ctx, span := otel.Tracer("poflow/writer").Start(ctx, "dataset.read")
	defer span.End()
	return d.read(ctx, d.Key(companyCode))
}

func (d *Dataset) read(ctx context.Context, key string) ([]model.PurchaseOrder, error) {
	rc, err := d.storage.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return Decode(ctx, bytes.NewReader(data))
}

// Info reports whether the tenant dataset exists and its size.
func (d *Dataset) Info(ctx context.Context, companyCode string) (*Info, error) {
	key := d.Key(companyCode)
	info := &Info{Key: key, Location: d.storage.Location(key)}

	oi, err := d.storage.Head(ctx, key)
	if errors.Is(err, interfaces.ErrObjectNotFound) {
		return info, nil
	}
	if err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeStorageUnavailable, "failed to stat dataset").
			WithContext("key", key)
	}

	info.Exists = true
	info.Size = oi.Size
	info.LastModified = oi.LastModified
	return info, nil
}

// Exists reports whether the tenant dataset exists.
func (d *Dataset) Exists(ctx context.Context, companyCode string) (bool, error) {
	return d.storage.Exists(ctx, d.Key(companyCode))
}

// Delete removes the tenant dataset.
func (d *Dataset) Delete(ctx context.Context, companyCode string) error {
	key := d.Key(companyCode)
	if err := d.storage.Delete(ctx, key); err != nil {
		return pferrors.Wrap(err, pferrors.CodeStorageUnavailable, "failed to delete dataset").
			WithContext("key", key)
	}
	d.log.Info("dataset deleted", zap.String("company_code", companyCode), zap.String("key", key))
	return nil
}

// Package writer encodes purchase orders as Parquet and publishes one
// dataset object per tenant.
package writer

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/parquet/compress"

	"github.com/logflow/poflow/internal/model"
)

// Config controls how datasets are encoded.
type Config struct {
	Compression  Compression
	RowGroupSize int64
}

// Compression names a Parquet page codec.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionSnappy Compression = "snappy"
	CompressionGzip   Compression = "gzip"
	CompressionZstd   Compression = "zstd"
	CompressionLZ4    Compression = "lz4"
)

var codecs = map[Compression]compress.Compression{
	CompressionNone:   compress.Codecs.Uncompressed,
	CompressionSnappy: compress.Codecs.Snappy,
	CompressionGzip:   compress.Codecs.Gzip,
	CompressionZstd:   compress.Codecs.Zstd,
	CompressionLZ4:    compress.Codecs.Lz4,
}

// ParseCompression parses a codec name. Empty selects snappy.
func ParseCompression(s string) (Compression, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CompressionSnappy, nil
	}
	if s == "uncompressed" {
		return CompressionNone, nil
	}
	c := Compression(s)
	if _, ok := codecs[c]; !ok {
		return "", fmt.Errorf("unknown parquet compression %q", s)
	}
	return c, nil
}

func (c Compression) codec() compress.Compression {
	if codec, ok := codecs[c]; ok {
		return codec
	}
	return compress.Codecs.Snappy
}

func DefaultConfig() Config {
	return Config{
		Compression:  CompressionSnappy,
		RowGroupSize: 100_000,
	}
}

// Money is stored as DECIMAL(18,2).
const (
	MoneyPrecision = 18
	MoneyScale     = 2
)

var moneyType = &arrow.Decimal128Type{Precision: MoneyPrecision, Scale: MoneyScale}

var importedAtType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

// Schema returns the Arrow schema of a purchase-order dataset.
// Optional descriptive fields are nullable and written as null when empty.
func Schema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: model.ColPaytoID, Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: model.ColPaytoName, Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: model.ColCompany, Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: model.ColBranch, Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: model.ColPONumber, Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: model.ColOrderTotal, Type: moneyType, Nullable: false},
		{Name: model.ColOrderDate, Type: arrow.FixedWidthTypes.Date32, Nullable: false},
		{Name: model.ColCompanyCode, Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: model.ColImportBatchID, Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: model.ColImportedBy, Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: model.ColImportedAt, Type: importedAtType, Nullable: false},
		{Name: model.ColSourceFile, Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
}

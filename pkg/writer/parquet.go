package writer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/decimal128"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/shopspring/decimal"

	"github.com/logflow/poflow/internal/model"
)

const secondsPerDay = 24 * 60 * 60

var maxMoney = decimal.New(1, MoneyPrecision-MoneyScale)

// Encode writes records as a single Parquet file, one row group per
// cfg.RowGroupSize rows. An empty slice yields a valid file with no rows.
func Encode(w io.Writer, records []model.PurchaseOrder, cfg Config) (int64, error) {
	if cfg.RowGroupSize <= 0 {
		cfg.RowGroupSize = DefaultConfig().RowGroupSize
	}

	allocator := memory.NewGoAllocator()
	schema := Schema()

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(cfg.Compression.codec()),
		parquet.WithDictionaryDefault(true),
		parquet.WithDataPageSize(1024*1024), // 1MB
		parquet.WithMaxRowGroupLength(cfg.RowGroupSize),
	)

	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithStoreSchema(),
	)

	fw, err := pqarrow.NewFileWriter(schema, w, writerProps, arrowProps)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	rb := array.NewRecordBuilder(allocator, schema)
	defer rb.Release()

	var written int64
	for start := 0; start < len(records); start += int(cfg.RowGroupSize) {
		end := start + int(cfg.RowGroupSize)
		if end > len(records) {
			end = len(records)
		}

		rb.Reserve(end - start)
		for i := start; i < end; i++ {
			if err := appendRecord(rb, &records[i]); err != nil {
				fw.Close()
				return written, fmt.Errorf("record %d (po %s): %w", i, records[i].PONumber, err)
			}
		}

		rec := rb.NewRecord()
		err := fw.Write(rec)
		rec.Release()
		if err != nil {
			fw.Close()
			return written, fmt.Errorf("failed to write row group: %w", err)
		}
		written += int64(end - start)
	}

	if err := fw.Close(); err != nil {
		return written, fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return written, nil
}

func appendRecord(rb *array.RecordBuilder, po *model.PurchaseOrder) error {
	total, err := toMoney(po.OrderTotal)
	if err != nil {
		return err
	}

	appendOptional(rb.Field(0).(*array.StringBuilder), po.PaytoID)
	rb.Field(1).(*array.StringBuilder).Append(po.PaytoName)
	appendOptional(rb.Field(2).(*array.StringBuilder), po.Company)
	appendOptional(rb.Field(3).(*array.StringBuilder), po.Branch)
	rb.Field(4).(*array.StringBuilder).Append(po.PONumber)
	rb.Field(5).(*array.Decimal128Builder).Append(total)
	rb.Field(6).(*array.Date32Builder).Append(toDate32(po.OrderDate))
	rb.Field(7).(*array.StringBuilder).Append(po.CompanyCode)
	rb.Field(8).(*array.StringBuilder).Append(po.ImportBatchID)
	appendOptional(rb.Field(9).(*array.StringBuilder), po.ImportedBy)
	rb.Field(10).(*array.TimestampBuilder).Append(arrow.Timestamp(po.ImportedAt.UTC().UnixMicro()))
	appendOptional(rb.Field(11).(*array.StringBuilder), po.SourceFile)
	return nil
}

func appendOptional(b *array.StringBuilder, v string) {
	if v == "" {
		b.AppendNull()
		return
	}
	b.Append(v)
}

func toMoney(d decimal.Decimal) (decimal128.Num, error) {
	d = d.Round(MoneyScale)
	if d.Abs().GreaterThanOrEqual(maxMoney) {
		return decimal128.Num{}, fmt.Errorf("order total %s exceeds DECIMAL(%d,%d)", d, MoneyPrecision, MoneyScale)
	}
	return decimal128.FromBigInt(d.Shift(MoneyScale).BigInt()), nil
}

func toDate32(t time.Time) arrow.Date32 {
	y, m, d := t.Date()
	return arrow.Date32(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay)
}

// Decode reads every record of a Parquet dataset in file order. Columns are
// matched by name so files produced by other tools decode as long as the
// canonical column names are present.
func Decode(ctx context.Context, r parquet.ReaderAtSeeker) ([]model.PurchaseOrder, error) {
	reader, err := file.NewParquetReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}
	defer reader.Close()

	mem := memory.NewGoAllocator()
	arrowReader, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{
		BatchSize: 8192,
	}, mem)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	defer table.Release()

	index := make(map[string]int, table.NumCols())
	for i, f := range table.Schema().Fields() {
		index[f.Name] = i
	}
	if _, ok := index[model.ColPONumber]; !ok {
		return nil, fmt.Errorf("parquet file has no %s column", model.ColPONumber)
	}

	out := make([]model.PurchaseOrder, 0, table.NumRows())
	tr := array.NewTableReader(table, 8192)
	defer tr.Release()

	for tr.Next() {
		rec := tr.Record()
		col := func(name string) arrow.Array {
			i, ok := index[name]
			if !ok {
				return nil
			}
			return rec.Column(i)
		}

		paytoID := col(model.ColPaytoID)
		paytoName := col(model.ColPaytoName)
		company := col(model.ColCompany)
		branch := col(model.ColBranch)
		poNumber := col(model.ColPONumber)
		orderTotal := col(model.ColOrderTotal)
		orderDate := col(model.ColOrderDate)
		companyCode := col(model.ColCompanyCode)
		batchID := col(model.ColImportBatchID)
		importedBy := col(model.ColImportedBy)
		importedAt := col(model.ColImportedAt)
		sourceFile := col(model.ColSourceFile)

		for i := 0; i < int(rec.NumRows()); i++ {
			total, err := decimalAt(orderTotal, i)
			if err != nil {
				return nil, err
			}
			out = append(out, model.PurchaseOrder{
				PaytoID:       stringAt(paytoID, i),
				PaytoName:     stringAt(paytoName, i),
				Company:       stringAt(company, i),
				Branch:        stringAt(branch, i),
				PONumber:      stringAt(poNumber, i),
				OrderTotal:    total,
				OrderDate:     timeAt(orderDate, i),
				CompanyCode:   stringAt(companyCode, i),
				ImportBatchID: stringAt(batchID, i),
				ImportedBy:    stringAt(importedBy, i),
				ImportedAt:    timeAt(importedAt, i),
				SourceFile:    stringAt(sourceFile, i),
			})
		}
	}
	return out, nil
}

func stringAt(col arrow.Array, i int) string {
	if col == nil || col.IsNull(i) {
		return ""
	}
	switch a := col.(type) {
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Binary:
		return string(a.Value(i))
	default:
		return a.ValueStr(i)
	}
}

func decimalAt(col arrow.Array, i int) (decimal.Decimal, error) {
	if col == nil || col.IsNull(i) {
		return decimal.Zero, nil
	}
	switch a := col.(type) {
	case *array.Decimal128:
		scale := a.DataType().(*arrow.Decimal128Type).Scale
		return decimal.NewFromBigInt(a.Value(i).BigInt(), -scale), nil
	case *array.Float64:
		return decimal.NewFromFloat(a.Value(i)).Round(MoneyScale), nil
	case *array.Int64:
		return decimal.NewFromInt(a.Value(i)), nil
	default:
		return decimal.NewFromString(a.ValueStr(i))
	}
}

func timeAt(col arrow.Array, i int) time.Time {
	if col == nil || col.IsNull(i) {
		return time.Time{}
	}
	switch a := col.(type) {
	case *array.Date32:
		return time.Unix(int64(a.Value(i))*secondsPerDay, 0).UTC()
	case *array.Date64:
		return time.UnixMilli(int64(a.Value(i))).UTC()
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC()
	default:
		return time.Time{}
	}
}

package normalize

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	pferrors "github.com/logflow/poflow/pkg/errors"
)

// Row is one data row keyed by canonical column name.
type Row struct {
	// Number is the 1-based row number with the header counted as row 1,
	// so the first data row is row 2.
	Number int
	Values map[string]string
}

// Get returns the raw value of a canonical column.
func (r Row) Get(column string) string {
	return r.Values[column]
}

// Reader streams CSV rows with headers resolved to the canonical schema.
type Reader struct {
	csv     *csv.Reader
	headers []string
	columns HeaderMap
	row     int
}

// NewReader drops skipRows physical lines (after a UTF-8 BOM), reads the
// header row and resolves it against the alias table.
func NewReader(r io.Reader, skipRows int) (*Reader, error) {
	br := bufio.NewReader(r)

	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = br.Discard(3)
	}

	for i := 0; i < skipRows; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if err == io.EOF {
				return nil, pferrors.New(pferrors.CodeEmptyFile, "no rows left after skipping").
					WithContext("skip_rows", skipRows)
			}
			return nil, pferrors.Wrap(err, pferrors.CodeInvalidFormat, "skip leading rows")
		}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, pferrors.New(pferrors.CodeEmptyFile, "file is empty")
	}
	if err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeInvalidFormat, "read header")
	}

	columns := ResolveHeaders(header)
	if len(columns) == 0 {
		return nil, pferrors.New(pferrors.CodeMissingHeader, "header row has no recognised columns").
			WithContext("headers", strings.Join(header, ","))
	}

	return &Reader{
		csv:     cr,
		headers: header,
		columns: columns,
		row:     1,
	}, nil
}

// Headers returns the raw header row.
func (r *Reader) Headers() []string {
	return r.headers
}

// Columns returns the resolved header mapping.
func (r *Reader) Columns() HeaderMap {
	return r.columns
}

// Next returns the next data row or io.EOF.
func (r *Reader) Next() (Row, error) {
	record, err := r.csv.Read()
	if err == io.EOF {
		return Row{}, io.EOF
	}
	r.row++
	if err != nil {
		return Row{Number: r.row}, pferrors.Wrap(err, pferrors.CodeInvalidFormat, fmt.Sprintf("read row %d", r.row))
	}

	values := make(map[string]string, len(r.columns))
	for idx, canonical := range r.columns {
		if idx < len(record) {
			values[canonical] = record[idx]
		}
	}
	return Row{Number: r.row, Values: values}, nil
}

// ReadAll drains the reader.
func (r *Reader) ReadAll() ([]Row, error) {
	var rows []Row
	for {
		row, err := r.Next()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
}

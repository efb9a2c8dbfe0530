package normalize

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	pferrors "github.com/logflow/poflow/pkg/errors"
)

// zipMagic starts every XLSX workbook.
var zipMagic = []byte("PK\x03\x04")

// IsXLSX reports whether an upload is an Excel workbook, by name or content.
func IsXLSX(filename string, data []byte) bool {
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return true
	}
	return bytes.HasPrefix(data, zipMagic)
}

// XLSXToCSV renders the first sheet of a workbook as CSV so it can go
// through the same Reader as a CSV upload. Cells are taken as formatted
// text, which keeps dates in the sheet's display format.
func XLSXToCSV(data []byte) ([]byte, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeInvalidFormat, "failed to open xlsx")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, pferrors.New(pferrors.CodeEmptyFile, "no sheets found in xlsx file")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeInvalidFormat, "failed to read rows")
	}
	defer rows.Close()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, pferrors.Wrap(err, pferrors.CodeInvalidFormat, "failed to read row")
		}
		if err := w.Write(cols); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

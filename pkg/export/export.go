// Package export renders purchase orders as CSV or Excel downloads.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/poflow/internal/model"
)

// Format is a download format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat parses a format name. Empty selects CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want csv or xlsx)", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Filename returns the download name for a tenant export.
func (f Format) Filename(companyCode string) string {
	return fmt.Sprintf("purchase_orders_%s.%s", companyCode, f)
}

// Header is the column row of every export.
var Header = []string{"PO Number", "Vendor", "Company", "Branch", "Order Total", "Order Date"}

// DateLayout is the order date format of exported rows.
const DateLayout = "01/02/2006"

// Write renders records in format f.
func Write(w io.Writer, f Format, records []model.PurchaseOrder) error {
	if f == FormatXLSX {
		return WriteXLSX(w, records)
	}
	return WriteCSV(w, records)
}

// WriteCSV writes records as CSV.
func WriteCSV(w io.Writer, records []model.PurchaseOrder) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for i := range records {
		r := &records[i]
		if err := cw.Write([]string{
			r.PONumber,
			r.PaytoName,
			r.Company,
			r.Branch,
			r.OrderTotal.StringFixed(2),
			r.OrderDate.Format(DateLayout),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const sheet = "Purchase Orders"

// WriteXLSX writes records as a single-sheet workbook with numeric totals
// and date cells.
func WriteXLSX(w io.Writer, records []model.PurchaseOrder) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return err
	}
	dateFmt := "mm/dd/yyyy"
	dates, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dateFmt})
	if err != nil {
		return err
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = excelize.Cell{StyleID: bold, Value: h}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for i := range records {
		r := &records[i]
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		total, _ := r.OrderTotal.Float64()
		if err := sw.SetRow(cell, []any{
			r.PONumber,
			r.PaytoName,
			r.Company,
			r.Branch,
			excelize.Cell{StyleID: money, Value: total},
			excelize.Cell{StyleID: dates, Value: r.OrderDate},
		}); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}

	_, err = f.WriteTo(w)
	return err
}

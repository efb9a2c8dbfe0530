package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/logflow/poflow/internal/model"
)

func records() []model.PurchaseOrder {
	return []model.PurchaseOrder{
		{
			PONumber:   "PO-1",
			PaytoName:  "ACME, Inc",
			Company:    "Heritage",
			Branch:     "North",
			OrderTotal: decimal.RequireFromString("1250"),
			OrderDate:  time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			PONumber:   "PO-2",
			PaytoName:  "BETA",
			OrderTotal: decimal.RequireFromString("0.5"),
			OrderDate:  time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records()))

	want := strings.Join([]string{
		"PO Number,Vendor,Company,Branch,Order Total,Order Date",
		`PO-1,"ACME, Inc",Heritage,North,1250.00,01/05/2024`,
		"PO-2,BETA,,,0.50,12/31/2024",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, records()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "PO-1", rows[1][0])
	assert.Equal(t, "ACME, Inc", rows[1][1])
	assert.Equal(t, "BETA", rows[2][1])
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
	assert.Equal(t, "purchase_orders_heritage.xlsx", f.Filename("heritage"))

	_, err = ParseFormat("pdf")
	assert.Error(t, err)
}

package normalize

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/poflow/internal/model"
	pferrors "github.com/logflow/poflow/pkg/errors"
)

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"PO_NUMBER":         "po_number",
		" PO Number ":       "po_number",
		"po-number":         "po_number",
		"Vendor   Name":     "vendor_name",
		"\ufeffPO_PAYTO_ID": "po_payto_id",
		"PO#":               "po#",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeHeader(in), in)
	}
}

func TestResolveHeaders(t *testing.T) {
	hm := ResolveHeaders([]string{"Vendor", "PO_PAYTO_NAME", "PO#", "Amount", "Date", "Notes"})

	assert.Equal(t, model.ColPaytoName, hm[1], "preferred alias wins over vendor")
	_, vendorMapped := hm[0]
	assert.False(t, vendorMapped)
	assert.Equal(t, model.ColPONumber, hm[2])
	assert.Equal(t, model.ColOrderTotal, hm[3])
	assert.Equal(t, model.ColOrderDate, hm[4])
	_, notesMapped := hm[5]
	assert.False(t, notesMapped)
	assert.Empty(t, hm.Missing())

	partial := ResolveHeaders([]string{"vendor", "total"})
	assert.ElementsMatch(t, []string{model.ColPONumber, model.ColOrderDate}, partial.Missing())
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1,250.00", "1250", false},
		{"$ 3,000.10", "3000.1", false},
		{"-12.5", "-12.5", false},
		{"not-a-number", "", true},
		{"$", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "%s -> %s", tt.in, got)
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("01/15/2024")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseDate("1/5/2024")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), got)

	for _, bad := range []string{"2024-01-15", "13/01/2024", "01/15/24", "01/15/2024 10:00"} {
		_, err := ParseDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestNormalize(t *testing.T) {
	importedAt := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	n := New(Meta{
		CompanyCode: "heritage",
		BatchID:     "batch-1",
		ImportedBy:  "ops@example.com",
		ImportedAt:  importedAt,
		SourceFile:  "pos.csv",
	})

	valid := Row{Number: 2, Values: map[string]string{
		model.ColPaytoID:    " V-1 ",
		model.ColPaytoName:  "ACME",
		model.ColBranch:     "North",
		model.ColPONumber:   "PO-1",
		model.ColOrderTotal: "1,250.00",
		model.ColOrderDate:  "01/15/2024",
	}}
	po, rowErr := n.Normalize(valid)
	require.Nil(t, rowErr)
	assert.Equal(t, "V-1", po.PaytoID)
	assert.Equal(t, "ACME", po.PaytoName)
	assert.Equal(t, "", po.Company)
	assert.True(t, decimal.NewFromInt(1250).Equal(po.OrderTotal))
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), po.OrderDate)
	assert.Equal(t, "heritage", po.CompanyCode)
	assert.Equal(t, "batch-1", po.ImportBatchID)
	assert.Equal(t, importedAt, po.ImportedAt)

	tests := []struct {
		name    string
		change  map[string]string
		code    pferrors.Code
		message string
	}{
		{"missing po number", map[string]string{model.ColPONumber: " "}, pferrors.CodeMissingField, "Row 3: Missing required fields"},
		{"bad total", map[string]string{model.ColOrderTotal: "not-a-number"}, pferrors.CodeInvalidAmount, "Row 3: Invalid order total: not-a-number"},
		{"bad date", map[string]string{model.ColOrderDate: "2024-01-16"}, pferrors.CodeInvalidDate, "Row 3: Invalid date format: 2024-01-16 (expected MM/DD/YYYY)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := map[string]string{}
			for k, v := range valid.Values {
				values[k] = v
			}
			for k, v := range tt.change {
				values[k] = v
			}
			_, rowErr := n.Normalize(Row{Number: 3, Values: values})
			require.NotNil(t, rowErr)
			assert.Equal(t, tt.code, rowErr.Code)
			assert.Equal(t, tt.message, rowErr.Error())
		})
	}
}

func TestReader(t *testing.T) {
	data := "\ufeffExported by ERP\nreport generated 2024-02-01\n" +
		"PO_PAYTO_ID,PO_PAYTO_NAME,PO_COMPANY,PO_BRANCH,PO_NUMBER,ORDER_TOTAL,ORDER_DATE\n" +
		"V1,ACME,Heritage,North,PO-1,\"1,250.00\",01/15/2024\n" +
		"V1,ACME,Heritage,North,PO-2\n"

	r, err := NewReader(strings.NewReader(data), 2)
	require.NoError(t, err)
	assert.Len(t, r.Headers(), 7)
	assert.Empty(t, r.Columns().Missing())

	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Number)
	assert.Equal(t, "1,250.00", rows[0].Get(model.ColOrderTotal))
	assert.Equal(t, 3, rows[1].Number)
	assert.Equal(t, "", rows[1].Get(model.ColOrderDate), "short rows leave columns empty")

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderErrors(t *testing.T) {
	_, err := NewReader(strings.NewReader(""), 0)
	assert.True(t, pferrors.IsCode(err, pferrors.CodeEmptyFile))

	_, err = NewReader(strings.NewReader("a\nb\n"), 5)
	assert.True(t, pferrors.IsCode(err, pferrors.CodeEmptyFile))

	_, err = NewReader(strings.NewReader("foo,bar\n1,2\n"), 0)
	assert.True(t, pferrors.IsCode(err, pferrors.CodeMissingHeader))
}

func TestRejections(t *testing.T) {
	r := NewRejections(2)
	for i := 0; i < 5; i++ {
		r.Add(&RowError{Row: i + 2, Message: "Missing required fields"})
	}
	assert.Equal(t, int64(5), r.Count)
	assert.Equal(t, []string{"Row 2: Missing required fields", "Row 3: Missing required fields"}, r.Samples)
	assert.Equal(t, "Row 2: Missing required fields\nRow 3: Missing required fields", r.Message())
}

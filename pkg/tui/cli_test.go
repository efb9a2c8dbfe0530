package tui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/logflow/poflow/internal/model"
)

func TestFormatters(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2<<20))

	assert.Equal(t, "999", FormatNumber(999))
	assert.Equal(t, "1.2K", FormatNumber(1250))
	assert.Equal(t, "3.0M", FormatNumber(3_000_000))

	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
}

func TestRenderTable(t *testing.T) {
	out := RenderTable([]string{"Vendor", "Total Spent"}, [][]string{
		{"ACME", "1250.00"},
		{"BETA", "99.50"},
	})
	assert.Contains(t, out, "Vendor")
	assert.Contains(t, out, "ACME")
	assert.Contains(t, out, "99.50")
}

func TestPrintImportReport(t *testing.T) {
	var buf bytes.Buffer
	PrintImportReport(&buf, &model.ImportJob{
		BatchID:      "batch-1",
		Status:       model.StatusCompletedWithErrors,
		TotalRows:    3,
		ImportedRows: 2,
		ErrorRows:    1,
		ErrorSamples: []string{"Row 3: Invalid order total: not-a-number"},
	}, time.Second)

	out := buf.String()
	assert.Contains(t, out, "batch-1")
	assert.Contains(t, out, "Row 3: Invalid order total: not-a-number")
}

func TestShowProgress(t *testing.T) {
	var buf bytes.Buffer
	bar := ShowProgress(&buf, 10, "importing")
	assert.NoError(t, bar.Set64(10))
}

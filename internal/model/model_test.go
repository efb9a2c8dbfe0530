package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseImportMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ImportMode
		wantErr bool
	}{
		{"", ModeSkipExisting, false},
		{"skip_existing", ModeSkipExisting, false},
		{"Skip", ModeSkipExisting, false},
		{"overwrite", ModeOverwrite, false},
		{" OVERWRITE ", ModeOverwrite, false},
		{"merge", "", true},
	}
	for _, tt := range tests {
		got, err := ParseImportMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestTenantContext(t *testing.T) {
	tenant := NewTenant(" heritage ", "ADMIN")
	assert.Equal(t, "heritage", tenant.CompanyCode)
	assert.Equal(t, RoleAdmin, tenant.Role)
	assert.NoError(t, tenant.Validate())
	assert.True(t, tenant.Owns("heritage"))
	assert.False(t, tenant.Owns("other"))

	empty := NewTenant("", "")
	assert.Equal(t, RoleCustomer, empty.Role)
	assert.Error(t, empty.Validate())
	assert.False(t, empty.Owns(""))
}

func TestJobStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusProcessing.IsTerminal())
	for _, s := range []JobStatus{StatusCompleted, StatusCompletedWithErrors, StatusFailed, StatusDeleted} {
		assert.True(t, s.IsTerminal(), s)
	}
}

func TestJobUpdateApply(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	job := ImportJob{
		BatchID:      "b1",
		Status:       StatusProcessing,
		TotalRows:    10,
		ImportedRows: 2,
		CreatedAt:    created,
	}

	now := created.Add(time.Minute)
	JobUpdate{ImportedRows: Ptr(int64(7)), ErrorRows: Ptr(int64(1))}.Apply(&job, now)

	assert.Equal(t, StatusProcessing, job.Status)
	assert.Equal(t, int64(10), job.TotalRows)
	assert.Equal(t, int64(7), job.ImportedRows)
	assert.Equal(t, int64(1), job.ErrorRows)
	assert.Equal(t, now, job.UpdatedAt)
	assert.Nil(t, job.CompletedAt)

	JobUpdate{Status: Ptr(StatusCompleted), CompletedAt: &now}.Apply(&job, now)
	assert.Equal(t, StatusCompleted, job.Status)
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, now, *job.CompletedAt)
}

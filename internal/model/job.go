package model

import "time"

// MaxErrorSamples is the number of rejection messages kept per job.
const MaxErrorSamples = 10

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	StatusProcessing          JobStatus = "processing"
	StatusCompleted           JobStatus = "completed"
	StatusCompletedWithErrors JobStatus = "completed_with_errors"
	StatusFailed              JobStatus = "failed"
	StatusDeleted             JobStatus = "deleted"
)

// IsTerminal reports whether the job has finished processing.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithErrors, StatusFailed, StatusDeleted:
		return true
	default:
		return false
	}
}

// ImportJob is the persisted state of one ingestion batch.
type ImportJob struct {
	BatchID     string     `json:"batch_id"`
	CompanyCode string     `json:"company_code"`
	Filename    string     `json:"filename"`
	FileKey     string     `json:"file_key,omitempty"`
	ImportedBy  string     `json:"imported_by"`
	Mode        ImportMode `json:"mode"`
	Status      JobStatus  `json:"status"`

	TotalRows    int64 `json:"total_rows"`
	ImportedRows int64 `json:"imported_rows"`
	SkippedRows  int64 `json:"skipped_rows"`
	ErrorRows    int64 `json:"error_rows"`

	ErrorSamples []string `json:"error_samples,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobUpdate is a partial update of an ImportJob. Nil fields are left untouched.
type JobUpdate struct {
	Status       *JobStatus
	TotalRows    *int64
	ImportedRows *int64
	SkippedRows  *int64
	ErrorRows    *int64
	ErrorSamples []string
	ErrorMessage *string
	CompletedAt  *time.Time
}

// Apply merges the update into job and stamps UpdatedAt. A deleted job is
// final and is left untouched.
func (u JobUpdate) Apply(job *ImportJob, now time.Time) {
	if job.Status == StatusDeleted {
		return
	}
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.TotalRows != nil {
		job.TotalRows = *u.TotalRows
	}
	if u.ImportedRows != nil {
		job.ImportedRows = *u.ImportedRows
	}
	if u.SkippedRows != nil {
		job.SkippedRows = *u.SkippedRows
	}
	if u.ErrorRows != nil {
		job.ErrorRows = *u.ErrorRows
	}
	if u.ErrorSamples != nil {
		job.ErrorSamples = append([]string(nil), u.ErrorSamples...)
	}
	if u.ErrorMessage != nil {
		job.ErrorMessage = *u.ErrorMessage
	}
	if u.CompletedAt != nil {
		t := *u.CompletedAt
		job.CompletedAt = &t
	}
	job.UpdatedAt = now
}

// Ptr returns a pointer to v. Handy for building JobUpdate values.
func Ptr[T any](v T) *T {
	return &v
}

package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/logflow/poflow/internal/model"
)

// DuckDB persists jobs in an import_jobs table.
type DuckDB struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDuckDB opens (or creates) the job database at path. An empty path
// opens an in-memory database.
func NewDuckDB(path string) (*DuckDB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &DuckDB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return d, nil
}

func (d *DuckDB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS import_jobs (
			batch_id VARCHAR PRIMARY KEY,
			company_code VARCHAR NOT NULL,
			filename VARCHAR,
			file_key VARCHAR,
			imported_by VARCHAR,
			mode VARCHAR,
			status VARCHAR NOT NULL,
			total_rows BIGINT DEFAULT 0,
			imported_rows BIGINT DEFAULT 0,
			skipped_rows BIGINT DEFAULT 0,
			error_rows BIGINT DEFAULT 0,
			error_samples VARCHAR,
			error_message VARCHAR,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (d *DuckDB) Close() error {
	return d.db.Close()
}

func (d *DuckDB) Create(ctx context.Context, job *model.ImportJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	stamp(job, time.Now().UTC())
	samples, err := json.Marshal(job.ErrorSamples)
	if err != nil {
		return err
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO import_jobs (batch_id, company_code, filename, file_key, imported_by, mode,
			status, total_rows, imported_rows, skipped_rows, error_rows, error_samples,
			error_message, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.BatchID, job.CompanyCode, job.Filename, job.FileKey, job.ImportedBy, string(job.Mode),
		string(job.Status), job.TotalRows, job.ImportedRows, job.SkippedRows, job.ErrorRows,
		string(samples), job.ErrorMessage, job.CreatedAt.UTC(), job.UpdatedAt.UTC(), nullTime(job.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Update issues a single UPDATE touching only the provided columns.
func (d *DuckDB) Update(ctx context.Context, batchID string, u model.JobUpdate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.TotalRows != nil {
		add("total_rows", *u.TotalRows)
	}
	if u.ImportedRows != nil {
		add("imported_rows", *u.ImportedRows)
	}
	if u.SkippedRows != nil {
		add("skipped_rows", *u.SkippedRows)
	}
	if u.ErrorRows != nil {
		add("error_rows", *u.ErrorRows)
	}
	if u.ErrorSamples != nil {
		b, err := json.Marshal(u.ErrorSamples)
		if err != nil {
			return err
		}
		add("error_samples", string(b))
	}
	if u.ErrorMessage != nil {
		add("error_message", *u.ErrorMessage)
	}
	if u.CompletedAt != nil {
		add("completed_at", u.CompletedAt.UTC())
	}
	args = append(args, batchID)

	res, err := d.db.ExecContext(ctx,
		`UPDATE import_jobs SET `+strings.Join(sets, ", ")+
			` WHERE batch_id = ? AND status <> '`+string(model.StatusDeleted)+`'`, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	// Either the job is missing or it is deleted and stays that way.
	var exists bool
	err = d.db.QueryRowContext(ctx,
		`SELECT count(*) > 0 FROM import_jobs WHERE batch_id = ?`, batchID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check job: %w", err)
	}
	if !exists {
		return ErrJobNotFound
	}
	return nil
}

const jobColumns = `batch_id, company_code, filename, file_key, imported_by, mode, status,
	total_rows, imported_rows, skipped_rows, error_rows, error_samples, error_message,
	created_at, updated_at, completed_at`

func (d *DuckDB) Get(ctx context.Context, batchID string) (*model.ImportJob, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	job, err := scanJob(d.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM import_jobs WHERE batch_id = ?`, batchID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return job, err
}

func (d *DuckDB) List(ctx context.Context, companyCode string, limit int) ([]*model.ImportJob, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM import_jobs
		WHERE company_code = ?
		ORDER BY created_at DESC
		LIMIT %d
	`, jobColumns, normalizeLimit(limit)), companyCode)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var out []*model.ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*model.ImportJob, error) {
	var (
		job                                          model.ImportJob
		filename, fileKey, importedBy, mode, samples sql.NullString
		message                                      sql.NullString
		status                                       string
		completedAt                                  sql.NullTime
	)
	err := s.Scan(&job.BatchID, &job.CompanyCode, &filename, &fileKey, &importedBy, &mode,
		&status, &job.TotalRows, &job.ImportedRows, &job.SkippedRows, &job.ErrorRows,
		&samples, &message, &job.CreatedAt, &job.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	job.Filename = filename.String
	job.FileKey = fileKey.String
	job.ImportedBy = importedBy.String
	job.Mode = model.ImportMode(mode.String)
	job.Status = model.JobStatus(status)
	job.ErrorMessage = message.String
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	if samples.Valid && samples.String != "" && samples.String != "null" {
		if err := json.Unmarshal([]byte(samples.String), &job.ErrorSamples); err != nil {
			return nil, fmt.Errorf("job %s: bad error_samples: %w", job.BatchID, err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		job.CompletedAt = &t
	}
	return &job, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

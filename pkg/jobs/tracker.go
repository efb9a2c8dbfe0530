// Package jobs tracks import jobs and performs the tenant-scoped deletion
// operations that act on them.
package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/logflow/poflow/internal/model"
)

// ErrJobNotFound is returned when a batch id has no job.
var ErrJobNotFound = errors.New("import job not found")

// Tracker persists import job state.
type Tracker interface {
	// Create stores a new job. CreatedAt and UpdatedAt are stamped if zero.
	Create(ctx context.Context, job *model.ImportJob) error

	// Update applies the non-nil fields of u atomically. Updates to a job
	// already marked deleted are ignored.
	Update(ctx context.Context, batchID string, u model.JobUpdate) error

	Get(ctx context.Context, batchID string) (*model.ImportJob, error)

	// List returns the tenant's jobs, newest first.
	List(ctx context.Context, companyCode string, limit int) ([]*model.ImportJob, error)

	Close() error
}

// DefaultHistoryLimit is the number of jobs returned when no limit is given.
const DefaultHistoryLimit = 50

func stamp(job *model.ImportJob, now time.Time) {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}

// Memory keeps jobs in process memory.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*model.ImportJob
	now  func() time.Time
}

// NewMemory creates an empty in-memory tracker.
func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]*model.ImportJob),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Create(ctx context.Context, job *model.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stamp(job, m.now())
	cp := *job
	m.jobs[job.BatchID] = &cp
	return nil
}

func (m *Memory) Update(ctx context.Context, batchID string, u model.JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[batchID]
	if !ok {
		return ErrJobNotFound
	}
	u.Apply(job, m.now())
	return nil
}

func (m *Memory) Get(ctx context.Context, batchID string) (*model.ImportJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[batchID]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *Memory) List(ctx context.Context, companyCode string, limit int) ([]*model.ImportJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.ImportJob
	for _, job := range m.jobs {
		if job.CompanyCode == companyCode {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

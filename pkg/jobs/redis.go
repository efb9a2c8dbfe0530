package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/logflow/poflow/internal/model"
)

// RedisConfig configures the Redis job tracker.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all keys (e.g., "poflow:jobs:")
	Prefix string

	// TTL is the time-to-live for job keys (0 = no expiration)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration

	PoolSize     int
	MinIdleConns int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:      address,
		Prefix:       "poflow:jobs:",
		Timeout:      5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// Redis stores each job as a hash and indexes jobs per tenant in a sorted
// set scored by creation time.
type Redis struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{cfg: cfg, client: client}, nil
}

func (r *Redis) key(batchID string) string {
	return r.cfg.Prefix + batchID
}

func (r *Redis) companyIndexKey(companyCode string) string {
	return r.cfg.Prefix + "index:company:" + sanitizeKey(companyCode)
}

func sanitizeKey(s string) string {
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

const timeLayout = time.RFC3339Nano

// Create writes the full job hash and its index entry in one transaction.
func (r *Redis) Create(ctx context.Context, job *model.ImportJob) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	stamp(job, time.Now().UTC())
	fields, err := jobFields(job)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.key(job.BatchID), fields)
	pipe.ZAdd(ctx, r.companyIndexKey(job.CompanyCode), redis.Z{
		Score:  float64(job.CreatedAt.UnixMilli()),
		Member: job.BatchID,
	})
	if r.cfg.TTL > 0 {
		pipe.Expire(ctx, r.key(job.BatchID), r.cfg.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create job in Redis: %w", err)
	}
	return nil
}

// updateScript sets the given fields only if the job hash exists and is not
// deleted. Returns -1 for a missing job, 0 for a deleted one, 1 on update.
var updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('HGET', KEYS[1], 'status') == ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
return 1
`)

// Update sets only the provided fields. The existence check and the write
// run as one script so an expired job is never recreated as a partial hash.
func (r *Redis) Update(ctx context.Context, batchID string, u model.JobUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	fields, err := updateFields(u, time.Now().UTC())
	if err != nil {
		return err
	}
	args := make([]any, 0, 1+2*len(fields))
	args = append(args, string(model.StatusDeleted))
	for k, v := range fields {
		args = append(args, k, v)
	}

	n, err := updateScript.Run(ctx, r.client, []string{r.key(batchID)}, args...).Int64()
	if err != nil {
		return fmt.Errorf("failed to update job in Redis: %w", err)
	}
	if n < 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, batchID string) (*model.ImportJob, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	values, err := r.client.HGetAll(ctx, r.key(batchID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load job from Redis: %w", err)
	}
	if len(values) == 0 {
		return nil, ErrJobNotFound
	}
	return parseJob(values)
}

func (r *Redis) List(ctx context.Context, companyCode string, limit int) ([]*model.ImportJob, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	limit = normalizeLimit(limit)
	ids, err := r.client.ZRevRange(ctx, r.companyIndexKey(companyCode), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs from Redis: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load jobs from Redis: %w", err)
	}

	out := make([]*model.ImportJob, 0, len(ids))
	for _, cmd := range cmds {
		values := cmd.Val()
		if len(values) == 0 {
			continue // expired
		}
		job, err := parseJob(values)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func jobFields(job *model.ImportJob) (map[string]any, error) {
	samples, err := json.Marshal(job.ErrorSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal error samples: %w", err)
	}
	fields := map[string]any{
		"batch_id":      job.BatchID,
		"company_code":  job.CompanyCode,
		"filename":      job.Filename,
		"file_key":      job.FileKey,
		"imported_by":   job.ImportedBy,
		"mode":          string(job.Mode),
		"status":        string(job.Status),
		"total_rows":    job.TotalRows,
		"imported_rows": job.ImportedRows,
		"skipped_rows":  job.SkippedRows,
		"error_rows":    job.ErrorRows,
		"error_samples": string(samples),
		"error_message": job.ErrorMessage,
		"created_at":    job.CreatedAt.UTC().Format(timeLayout),
		"updated_at":    job.UpdatedAt.UTC().Format(timeLayout),
	}
	if job.CompletedAt != nil {
		fields["completed_at"] = job.CompletedAt.UTC().Format(timeLayout)
	}
	return fields, nil
}

func updateFields(u model.JobUpdate, now time.Time) (map[string]any, error) {
	fields := map[string]any{"updated_at": now.Format(timeLayout)}
	if u.Status != nil {
		fields["status"] = string(*u.Status)
	}
	if u.TotalRows != nil {
		fields["total_rows"] = *u.TotalRows
	}
	if u.ImportedRows != nil {
		fields["imported_rows"] = *u.ImportedRows
	}
	if u.SkippedRows != nil {
		fields["skipped_rows"] = *u.SkippedRows
	}
	if u.ErrorRows != nil {
		fields["error_rows"] = *u.ErrorRows
	}
	if u.ErrorSamples != nil {
		b, err := json.Marshal(u.ErrorSamples)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal error samples: %w", err)
		}
		fields["error_samples"] = string(b)
	}
	if u.ErrorMessage != nil {
		fields["error_message"] = *u.ErrorMessage
	}
	if u.CompletedAt != nil {
		fields["completed_at"] = u.CompletedAt.UTC().Format(timeLayout)
	}
	return fields, nil
}

func parseJob(v map[string]string) (*model.ImportJob, error) {
	job := &model.ImportJob{
		BatchID:      v["batch_id"],
		CompanyCode:  v["company_code"],
		Filename:     v["filename"],
		FileKey:      v["file_key"],
		ImportedBy:   v["imported_by"],
		Mode:         model.ImportMode(v["mode"]),
		Status:       model.JobStatus(v["status"]),
		ErrorMessage: v["error_message"],
	}

	var err error
	ints := []struct {
		field string
		dst   *int64
	}{
		{"total_rows", &job.TotalRows},
		{"imported_rows", &job.ImportedRows},
		{"skipped_rows", &job.SkippedRows},
		{"error_rows", &job.ErrorRows},
	}
	for _, f := range ints {
		if s := v[f.field]; s != "" {
			if *f.dst, err = strconv.ParseInt(s, 10, 64); err != nil {
				return nil, fmt.Errorf("job %s: bad %s %q", job.BatchID, f.field, s)
			}
		}
	}

	if s := v["error_samples"]; s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &job.ErrorSamples); err != nil {
			return nil, fmt.Errorf("job %s: bad error_samples: %w", job.BatchID, err)
		}
	}

	if job.CreatedAt, err = parseTime(v["created_at"]); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = parseTime(v["updated_at"]); err != nil {
		return nil, err
	}
	if s := v["completed_at"]; s != "" {
		t, err := parseTime(s)
		if err != nil {
			return nil, err
		}
		job.CompletedAt = &t
	}
	return job, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Package engine runs analytical SQL on an embedded DuckDB.
//
// Every query opens its own in-memory database, so concurrent queries share
// no mutable state and nothing has to be invalidated when the underlying
// Parquet objects change.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	pferrors "github.com/logflow/poflow/pkg/errors"
	"github.com/logflow/poflow/pkg/interfaces"
	"github.com/logflow/poflow/pkg/logger"
)

// Config holds the immutable engine settings.
type Config struct {
	// Threads is the DuckDB worker thread count (0 = NumCPU).
	Threads int

	// MemoryLimit is passed to SET memory_limit (e.g. "2GB"). Empty keeps
	// the DuckDB default.
	MemoryLimit string

	// Remote supplies object-store credentials for s3:// locations.
	Remote interfaces.RemoteCredentials
}

// Engine executes SQL queries using DuckDB.
type Engine struct {
	cfg Config
	log *zap.Logger
}

// New creates a query engine.
func New(cfg Config, log *zap.Logger) *Engine {
	if cfg.Threads <= 0 {
		cfg.Threads = runtime.NumCPU()
	}
	return &Engine{cfg: cfg, log: logger.OrNop(log).Named("engine")}
}

// Result is a fully materialized query result.
type Result struct {
	Columns  []string
	Rows     []map[string]any
	Duration time.Duration
}

// Query executes a SQL query on a fresh database and returns every row.
func (e *Engine) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	start := time.Now()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeEngineInit, "failed to initialize DuckDB")
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeEngineInit, "failed to open DuckDB connection")
	}
	defer conn.Close()

	for _, stmt := range e.setup() {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return nil, pferrors.Wrap(err, pferrors.CodeEngineInit, "failed to configure DuckDB").
				WithContext("statement", redact(stmt))
		}
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeQueryFailed, "query failed")
	}
	result, err := toMaps(rows)
	if err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeQueryFailed, "failed to read query results")
	}
	result.Duration = time.Since(start)

	e.log.Debug("query executed",
		zap.Int("rows", len(result.Rows)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// setup returns the per-database configuration statements.
func (e *Engine) setup() []string {
	stmts := []string{fmt.Sprintf("SET threads=%d", e.cfg.Threads)}
	if e.cfg.MemoryLimit != "" {
		stmts = append(stmts, fmt.Sprintf("SET memory_limit=%s", quote(e.cfg.MemoryLimit)))
	}
	if e.cfg.Remote == nil {
		return stmts
	}

	qc := e.cfg.Remote.QueryCredentials()
	stmts = append(stmts, "INSTALL httpfs", "LOAD httpfs")
	set := func(name, value string) {
		if value != "" {
			stmts = append(stmts, fmt.Sprintf("SET %s=%s", name, quote(value)))
		}
	}
	set("s3_region", qc.Region)
	set("s3_endpoint", qc.Endpoint)
	set("s3_url_style", qc.URLStyle)
	set("s3_access_key_id", qc.AccessKeyID)
	set("s3_secret_access_key", qc.SecretAccessKey)
	set("s3_session_token", qc.SessionToken)
	stmts = append(stmts, fmt.Sprintf("SET s3_use_ssl=%t", qc.UseSSL))
	return stmts
}

// quote renders s as a SQL string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func redact(stmt string) string {
	if strings.Contains(stmt, "secret") || strings.Contains(stmt, "session_token") || strings.Contains(stmt, "key_id") {
		if i := strings.Index(stmt, "="); i > 0 {
			return stmt[:i+1] + "'***'"
		}
	}
	return stmt
}

// toMaps reads all rows as maps and closes rows.
func toMaps(rows *sql.Rows) (*Result, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	result := &Result{Columns: cols}
	values := make([]any, len(cols))
	valuePtrs := make([]any, len(cols))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}

// ReadParquet returns a FROM clause reading the Parquet object at location.
func ReadParquet(location string) string {
	return "read_parquet(" + quote(location) + ")"
}

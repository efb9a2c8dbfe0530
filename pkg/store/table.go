package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/shopspring/decimal"

	"github.com/logflow/poflow/internal/model"
)

// chunk bounds the number of placeholders in one IN list.
const chunk = 500

// Table keeps records in a DuckDB database file.
type Table struct {
	db *sql.DB
	mu sync.Mutex
}

// NewTable opens (or creates) the database at path. An empty path opens an
// in-memory database.
func NewTable(path string) (*Table, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	t := &Table{db: db}
	if err := t.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return t, nil
}

func (t *Table) migrate() error {
	migrations := []string{
		`CREATE SEQUENCE IF NOT EXISTS purchase_orders_seq`,
		`CREATE TABLE IF NOT EXISTS purchase_orders (
			seq BIGINT DEFAULT nextval('purchase_orders_seq'),
			po_payto_id VARCHAR,
			po_payto_name VARCHAR NOT NULL,
			po_company VARCHAR,
			po_branch VARCHAR,
			po_number VARCHAR NOT NULL,
			order_total DECIMAL(18,2) NOT NULL,
			order_date DATE NOT NULL,
			company_code VARCHAR NOT NULL,
			import_batch_id VARCHAR NOT NULL,
			imported_by VARCHAR,
			imported_at TIMESTAMP NOT NULL,
			source_file VARCHAR,
			UNIQUE (company_code, po_number)
		)`,
	}

	for _, migration := range migrations {
		if _, err := t.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (t *Table) Name() string { return "table" }

// Close closes the database connection.
func (t *Table) Close() error {
	return t.db.Close()
}

func (t *Table) Existing(ctx context.Context, companyCode string, poNumbers []string) (map[string]struct{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return existingIn(ctx, t.db, companyCode, poNumbers)
}

func (t *Table) DeleteByPONumbers(ctx context.Context, companyCode string, poNumbers []string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	n, err := deletePONumbers(ctx, tx, companyCode, poNumbers)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	return n, tx.Commit()
}

func (t *Table) Insert(ctx context.Context, records []model.PurchaseOrder) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	if err := insertRecords(ctx, tx, records); err != nil {
		tx.Rollback()
		return 0, err
	}
	return int64(len(records)), tx.Commit()
}

// InsertNew looks up and inserts inside one transaction. The unique key on
// (company_code, po_number) rejects a duplicate written by another process.
func (t *Table) InsertNew(ctx context.Context, companyCode string, records []model.PurchaseOrder) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stored, err := existingIn(ctx, tx, companyCode, poNumbersOf(records))
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	add := fresh(records, stored)
	if err := insertRecords(ctx, tx, add); err != nil {
		tx.Rollback()
		return 0, err
	}
	return int64(len(add)), tx.Commit()
}

// ReplaceBatch deletes and then inserts under the store lock. DuckDB checks
// the unique key against rows deleted earlier in the same transaction, so
// the delete is committed first.
func (t *Table) ReplaceBatch(ctx context.Context, companyCode string, records []model.PurchaseOrder) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	if _, err := deletePONumbers(ctx, tx, companyCode, poNumbersOf(records)); err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	if tx, err = t.db.BeginTx(ctx, nil); err != nil {
		return 0, err
	}
	if err := insertRecords(ctx, tx, records); err != nil {
		tx.Rollback()
		return 0, err
	}
	return int64(len(records)), tx.Commit()
}

func (t *Table) DeleteByBatch(ctx context.Context, companyCode, batchID string) (int64, error) {
	return t.exec(ctx, `DELETE FROM purchase_orders WHERE company_code = ? AND import_batch_id = ?`, companyCode, batchID)
}

func (t *Table) DeleteAll(ctx context.Context, companyCode string) (int64, error) {
	return t.exec(ctx, `DELETE FROM purchase_orders WHERE company_code = ?`, companyCode)
}

func (t *Table) Count(ctx context.Context, companyCode string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var n int64
	err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM purchase_orders WHERE company_code = ?`, companyCode).Scan(&n)
	return n, err
}

func (t *Table) Snapshot(ctx context.Context, companyCode string) ([]model.PurchaseOrder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.db.QueryContext(ctx, `
		SELECT po_payto_id, po_payto_name, po_company, po_branch, po_number,
		       CAST(order_total AS VARCHAR), order_date, company_code,
		       import_batch_id, imported_by, imported_at, source_file
		FROM purchase_orders
		WHERE company_code = ?
		ORDER BY seq
	`, companyCode)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	defer rows.Close()

	var out []model.PurchaseOrder
	for rows.Next() {
		var (
			po                                           model.PurchaseOrder
			paytoID, company, branch, importedBy, source sql.NullString
			total                                        string
		)
		if err := rows.Scan(&paytoID, &po.PaytoName, &company, &branch, &po.PONumber,
			&total, &po.OrderDate, &po.CompanyCode, &po.ImportBatchID, &importedBy,
			&po.ImportedAt, &source); err != nil {
			return nil, err
		}
		if po.OrderTotal, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("bad order_total %q: %w", total, err)
		}
		po.PaytoID = paytoID.String
		po.Company = company.String
		po.Branch = branch.String
		po.ImportedBy = importedBy.String
		po.SourceFile = source.String
		po.OrderDate = po.OrderDate.UTC()
		po.ImportedAt = po.ImportedAt.UTC()
		out = append(out, po)
	}
	return out, rows.Err()
}

func (t *Table) exec(ctx context.Context, query string, args ...any) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	res, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func existingIn(ctx context.Context, q queryer, companyCode string, poNumbers []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	for start := 0; start < len(poNumbers); start += chunk {
		part := poNumbers[start:min(start+chunk, len(poNumbers))]
		query := `SELECT DISTINCT po_number FROM purchase_orders
			WHERE company_code = ? AND po_number IN (` + placeholders(len(part)) + `)`

		rows, err := q.QueryContext(ctx, query, withCompany(companyCode, part)...)
		if err != nil {
			return nil, fmt.Errorf("failed to query existing: %w", err)
		}
		for rows.Next() {
			var po string
			if err := rows.Scan(&po); err != nil {
				rows.Close()
				return nil, err
			}
			found[po] = struct{}{}
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}
	return found, nil
}

func deletePONumbers(ctx context.Context, tx *sql.Tx, companyCode string, poNumbers []string) (int64, error) {
	var total int64
	for start := 0; start < len(poNumbers); start += chunk {
		part := poNumbers[start:min(start+chunk, len(poNumbers))]
		res, err := tx.ExecContext(ctx,
			`DELETE FROM purchase_orders WHERE company_code = ? AND po_number IN (`+placeholders(len(part))+`)`,
			withCompany(companyCode, part)...)
		if err != nil {
			return 0, fmt.Errorf("failed to delete records: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func insertRecords(ctx context.Context, tx *sql.Tx, records []model.PurchaseOrder) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO purchase_orders (
			po_payto_id, po_payto_name, po_company, po_branch, po_number,
			order_total, order_date, company_code, import_batch_id,
			imported_by, imported_at, source_file
		) VALUES (?, ?, ?, ?, ?, CAST(? AS DECIMAL(18,2)), CAST(? AS DATE), ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			nullable(r.PaytoID), r.PaytoName, nullable(r.Company), nullable(r.Branch), r.PONumber,
			r.OrderTotal.StringFixed(2), r.OrderDate.Format("2006-01-02"), r.CompanyCode, r.ImportBatchID,
			nullable(r.ImportedBy), r.ImportedAt.UTC(), nullable(r.SourceFile),
		); err != nil {
			return fmt.Errorf("failed to insert %s: %w", r.PONumber, err)
		}
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func withCompany(companyCode string, values []string) []any {
	args := make([]any, 0, len(values)+1)
	args = append(args, companyCode)
	for _, v := range values {
		args = append(args, v)
	}
	return args
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

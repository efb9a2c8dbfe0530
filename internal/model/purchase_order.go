// Package model defines the core data structures shared by the ingestion
// pipeline, the record stores and the analytics layer.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Canonical column names, in persisted order.
const (
	ColPaytoID       = "po_payto_id"
	ColPaytoName     = "po_payto_name"
	ColCompany       = "po_company"
	ColBranch        = "po_branch"
	ColPONumber      = "po_number"
	ColOrderTotal    = "order_total"
	ColOrderDate     = "order_date"
	ColCompanyCode   = "company_code"
	ColImportBatchID = "import_batch_id"
	ColImportedBy    = "imported_by"
	ColImportedAt    = "imported_at"
	ColSourceFile    = "source_file"
)

// Columns lists every persisted column in schema order.
var Columns = []string{
	ColPaytoID, ColPaytoName, ColCompany, ColBranch, ColPONumber,
	ColOrderTotal, ColOrderDate, ColCompanyCode, ColImportBatchID,
	ColImportedBy, ColImportedAt, ColSourceFile,
}

// PurchaseOrder is one normalized purchase order line.
// (PONumber, CompanyCode) is unique across the system.
type PurchaseOrder struct {
	PaytoID   string `json:"po_payto_id"`
	PaytoName string `json:"po_payto_name"`
	Company   string `json:"po_company"`
	Branch    string `json:"po_branch"`
	PONumber  string `json:"po_number"`

	OrderTotal decimal.Decimal `json:"order_total"`
	// OrderDate is a calendar date at UTC midnight.
	OrderDate time.Time `json:"order_date"`

	CompanyCode   string    `json:"company_code"`
	ImportBatchID string    `json:"import_batch_id"`
	ImportedBy    string    `json:"imported_by"`
	ImportedAt    time.Time `json:"imported_at"`
	SourceFile    string    `json:"source_file"`
}

// Role distinguishes the two kinds of authenticated callers.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// ParseRole parses a role name. Unknown or empty values map to RoleCustomer.
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleCustomer
}

// TenantContext identifies the caller of every core operation.
// The admin role does not widen the tenant scope.
type TenantContext struct {
	CompanyCode string `json:"company_code"`
	Role        Role   `json:"role"`
}

// NewTenant builds a TenantContext from raw values.
func NewTenant(companyCode, role string) TenantContext {
	return TenantContext{
		CompanyCode: strings.TrimSpace(companyCode),
		Role:        ParseRole(role),
	}
}

// Validate reports whether the tenant can be used to scope data.
func (t TenantContext) Validate() error {
	if t.CompanyCode == "" {
		return fmt.Errorf("tenant company code is required")
	}
	return nil
}

// Owns reports whether data stored under companyCode belongs to this tenant.
func (t TenantContext) Owns(companyCode string) bool {
	return t.CompanyCode != "" && t.CompanyCode == companyCode
}

// ImportMode selects the duplicate-handling policy of an import.
type ImportMode string

const (
	// ModeSkipExisting keeps already stored records and counts incoming
	// duplicates as skipped. This is the default.
	ModeSkipExisting ImportMode = "skip_existing"
	// ModeOverwrite deletes stored records sharing a po_number with the
	// incoming batch before inserting the batch.
	ModeOverwrite ImportMode = "overwrite"
)

// ParseImportMode parses an import mode name.
func ParseImportMode(s string) (ImportMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip", "skip_existing", "skip-existing":
		return ModeSkipExisting, nil
	case "overwrite", "replace":
		return ModeOverwrite, nil
	default:
		return "", fmt.Errorf("unknown import mode %q (want skip_existing or overwrite)", s)
	}
}

func (m ImportMode) String() string {
	return string(m)
}

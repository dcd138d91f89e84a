package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is stateless; every call runs on the handle it is given so
// callers can compose it inside their own transactions.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	// LockOpen loads and row-locks the sent and overdue invoices of a
	// tenant's unit in id order.
	LockOpen(ctx context.Context, db *gorm.DB, tenantID, unitID snowflake.ID) ([]Invoice, error)
	ListOpen(ctx context.Context, db *gorm.DB, tenantID, unitID snowflake.ID) ([]Invoice, error)
	CountForUnit(ctx context.Context, db *gorm.DB, tenantID, unitID snowflake.ID) (int64, error)
	AppliedTotals(ctx context.Context, db *gorm.DB, invoiceIDs []snowflake.ID) (map[snowflake.ID]int64, error)
	// TransitionStatus moves an invoice to `to` only while it is in one of
	// `from`. It reports whether a row changed.
	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []InvoiceStatus, to InvoiceStatus, at time.Time) (bool, error)
	MarkOverdue(ctx context.Context, db *gorm.DB, asOf time.Time, at time.Time) (int64, error)
}

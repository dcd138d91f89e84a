package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/errs"
	"gorm.io/gorm"
)

type AppendRequest struct {
	TenantID    snowflake.ID
	UnitID      *snowflake.ID
	LeaseID     *snowflake.ID
	PropertyID  *snowflake.ID
	InvoiceID   *snowflake.ID
	PaymentID   *snowflake.ID
	EntryType   EntryType
	Direction   Direction
	Amount      int64
	EffectiveAt time.Time
	Description string
	Source      string
	// PeriodKey marks a recurring charge. Entries sharing tenant, type,
	// direction, description and period key are rejected as duplicates.
	PeriodKey string
}

// Service is the only write path into the ledger. There is no update or
// delete; corrections are new offsetting entries.
type Service interface {
	Append(ctx context.Context, req AppendRequest) (LedgerEntry, error)
	// AppendTx appends inside a transaction owned by the caller.
	AppendTx(ctx context.Context, tx *gorm.DB, req AppendRequest) (LedgerEntry, error)
	// ExistsRecurring reports whether an INVOICE/DEBIT entry with the given
	// description is already effective in the calendar month of at.
	ExistsRecurring(ctx context.Context, tenantID snowflake.ID, description string, at time.Time) (bool, error)
}

var (
	ErrInvalidTenant    = fmt.Errorf("%w: invalid_tenant", errs.ErrValidation)
	ErrInvalidAmount    = fmt.Errorf("%w: invalid_amount", errs.ErrValidation)
	ErrInvalidEntryType = fmt.Errorf("%w: invalid_entry_type", errs.ErrValidation)
	ErrInvalidDirection = fmt.Errorf("%w: invalid_direction", errs.ErrValidation)
	ErrInvalidPeriodKey = fmt.Errorf("%w: invalid_period_key", errs.ErrValidation)
	ErrDuplicateEntry   = fmt.Errorf("%w: duplicate_entry", errs.ErrDuplicate)
)

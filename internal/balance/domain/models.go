package domain

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/errs"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPrepaid Status = "Prepaid"
	StatusCleared Status = "Cleared"
	StatusOverdue Status = "Overdue"
)

// StatusFor classifies a balance: owing is Overdue, credit is Prepaid.
func StatusFor(balance int64) Status {
	switch {
	case balance < 0:
		return StatusPrepaid
	case balance > 0:
		return StatusOverdue
	default:
		return StatusCleared
	}
}

type Summary struct {
	TenantID snowflake.ID `json:"tenant_id"`
	// RentDueThisCycle and PaidThisMonth cover entries effective in the
	// current calendar month only.
	RentDueThisCycle int64  `json:"rent_due_this_cycle"`
	PaidThisMonth    int64  `json:"paid_this_month"`
	Arrears          int64  `json:"arrears"`
	Balance          int64  `json:"balance"`
	Status           Status `json:"status"`
}

type HistoryRequest struct {
	TenantID snowflake.ID
	UnitID   *snowflake.ID
	// Limit caps the number of newest entries returned; zero uses the
	// configured default.
	Limit int
}

type HistoryEntry struct {
	ledgerdomain.LedgerEntry
	RunningBalance int64 `json:"running_balance"`
}

// RunningBalanceStrategy returns entries newest first, each carrying the
// cumulative balance computed oldest first up to and including it.
type RunningBalanceStrategy interface {
	Name() string
	History(ctx context.Context, db *gorm.DB, req HistoryRequest) ([]HistoryEntry, error)
}

type Service interface {
	Summarize(ctx context.Context, tenantID snowflake.ID) (Summary, error)
	SummarizeAll(ctx context.Context) ([]Summary, error)
	History(ctx context.Context, req HistoryRequest) ([]HistoryEntry, error)
}

var (
	ErrInvalidTenant = fmt.Errorf("%w: invalid_tenant", errs.ErrValidation)
	ErrInvalidLimit  = fmt.Errorf("%w: invalid_limit", errs.ErrValidation)
)

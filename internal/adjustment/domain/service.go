package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/errs"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
)

type AdjustRequest struct {
	TenantID  snowflake.ID
	UnitID    *snowflake.ID
	Amount    int64
	Direction ledgerdomain.Direction
	// Reason is stored as the entry description.
	Reason      string
	EffectiveAt time.Time
	Source      string
}

type OpeningBalanceRequest struct {
	TenantID snowflake.ID
	UnitID   *snowflake.ID
	// Balance is signed: positive is owed by the tenant, negative is credit.
	Balance     int64
	EffectiveAt time.Time
}

type Service interface {
	// Adjust writes a correction not tied to any invoice or payment.
	Adjust(ctx context.Context, req AdjustRequest) (ledgerdomain.LedgerEntry, error)
	RecordOpeningBalance(ctx context.Context, req OpeningBalanceRequest) (ledgerdomain.LedgerEntry, error)
}

var (
	ErrInvalidReason         = fmt.Errorf("%w: invalid_reason", errs.ErrValidation)
	ErrInvalidOpeningBalance = fmt.Errorf("%w: invalid_opening_balance", errs.ErrValidation)
)

package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/errs"
)

type CreateInvoiceRequest struct {
	TenantID snowflake.ID
	UnitID   snowflake.ID
	Amount   int64
	DueDate  *time.Time
	// Status is draft or sent; empty means draft.
	Status InvoiceStatus
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	Send(ctx context.Context, id snowflake.ID) (Invoice, error)
	Cancel(ctx context.Context, id snowflake.ID) (Invoice, error)
	GetByID(ctx context.Context, id snowflake.ID) (Invoice, error)
	// ListOpen returns open invoices oldest obligation first.
	ListOpen(ctx context.Context, tenantID, unitID snowflake.ID) ([]OpenInvoice, error)
	Remaining(ctx context.Context, id snowflake.ID) (int64, error)
	// MarkOverdue moves sent invoices due before asOf to overdue.
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

var (
	ErrInvalidTenant     = fmt.Errorf("%w: invalid_tenant", errs.ErrValidation)
	ErrInvalidUnit       = fmt.Errorf("%w: invalid_unit", errs.ErrValidation)
	ErrInvalidAmount     = fmt.Errorf("%w: invalid_amount", errs.ErrValidation)
	ErrInvalidStatus     = fmt.Errorf("%w: invalid_status", errs.ErrValidation)
	ErrInvalidTransition = fmt.Errorf("%w: invalid_status_transition", errs.ErrValidation)
	ErrInvoiceNotFound   = fmt.Errorf("%w: invoice_not_found", errs.ErrNotFound)
)

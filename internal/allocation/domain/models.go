package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/errs"
)

// PaymentApplication is the part of a payment applied to one invoice.
// There is at most one row per (payment, invoice); re-applying merges.
type PaymentApplication struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	PaymentID snowflake.ID `gorm:"not null;uniqueIndex:ux_payment_applications_pair,priority:1"`
	InvoiceID snowflake.ID `gorm:"not null;uniqueIndex:ux_payment_applications_pair,priority:2;index"`
	Amount    int64        `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null"`
	UpdatedAt time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (PaymentApplication) TableName() string { return "payment_applications" }

// Application describes what one allocation call applied to an invoice.
type Application struct {
	InvoiceID snowflake.ID
	Amount    int64
	// Remaining is what the invoice still owes after this application.
	Remaining int64
	Paid      bool
}

type Result struct {
	PaymentID    snowflake.ID
	Applications []Application
	Allocated    int64
	// Unapplied is payment credit left over after every open invoice was
	// covered. It is a valid outcome, not an error.
	Unapplied int64
}

type Service interface {
	// Allocate distributes the unapplied part of a payment across the open
	// invoices of a tenant's unit, oldest obligation first.
	Allocate(ctx context.Context, paymentID, tenantID, unitID snowflake.ID) (Result, error)
}

var (
	ErrInvalidPayment   = fmt.Errorf("%w: invalid_payment", errs.ErrValidation)
	ErrInvalidTenant    = fmt.Errorf("%w: invalid_tenant", errs.ErrValidation)
	ErrInvalidUnit      = fmt.Errorf("%w: invalid_unit", errs.ErrValidation)
	ErrInvoicesNotFound = fmt.Errorf("%w: invoices_not_found", errs.ErrNotFound)
)

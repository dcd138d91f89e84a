package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/errs"
	"gorm.io/gorm"
)

// Payment is money received from a tenant, recorded once per idempotency key.
type Payment struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	TenantID       snowflake.ID  `json:"tenant_id" gorm:"not null;index"`
	UnitID         *snowflake.ID `json:"unit_id,omitempty"`
	Amount         int64         `json:"amount" gorm:"not null"`
	IdempotencyKey string        `json:"idempotency_key" gorm:"type:text;not null;uniqueIndex"`
	// InvoiceID is the first invoice this payment was applied to.
	InvoiceID     *snowflake.ID `json:"invoice_id,omitempty"`
	LedgerEntryID snowflake.ID  `json:"ledger_entry_id" gorm:"not null"`
	Source        string        `json:"source" gorm:"type:text;not null"`
	EffectiveAt   time.Time     `json:"effective_at" gorm:"not null"`
	CreatedAt     time.Time     `json:"created_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

type RecordPaymentRequest struct {
	TenantID       snowflake.ID
	UnitID         *snowflake.ID
	Amount         int64
	EffectiveAt    time.Time
	Description    string
	Source         string
	IdempotencyKey string
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*Payment, error)
	// Insert reports false when the idempotency key already exists.
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	// AppliedTotal sums every application already made from the payment.
	AppliedTotal(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	// SetInvoiceIfUnset records the first invoice a payment touched.
	SetInvoiceIfUnset(ctx context.Context, db *gorm.DB, id, invoiceID snowflake.ID) (bool, error)
}

type Service interface {
	// RecordPayment writes the payment and its CREDIT ledger entry
	// atomically. A replayed idempotency key returns the stored payment
	// together with ErrDuplicatePayment.
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (Payment, error)
	GetByID(ctx context.Context, id snowflake.ID) (Payment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (Payment, error)
}

var (
	ErrInvalidTenant         = fmt.Errorf("%w: invalid_tenant", errs.ErrValidation)
	ErrInvalidAmount         = fmt.Errorf("%w: invalid_amount", errs.ErrValidation)
	ErrInvalidIdempotencyKey = fmt.Errorf("%w: invalid_idempotency_key", errs.ErrValidation)
	ErrDuplicatePayment      = fmt.Errorf("%w: duplicate_payment", errs.ErrDuplicate)
	ErrPaymentNotFound       = fmt.Errorf("%w: payment_not_found", errs.ErrNotFound)
)

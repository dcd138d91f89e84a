// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// OpenStatuses are the statuses payments may be allocated against.
var OpenStatuses = []InvoiceStatus{InvoiceStatusSent, InvoiceStatusOverdue}

// IsOpen reports whether payments may still be applied.
func (s InvoiceStatus) IsOpen() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusOverdue
}

// Invoice is an obligation for a tenant on one unit.
type Invoice struct {
	ID        snowflake.ID  `gorm:"primaryKey"`
	TenantID  snowflake.ID  `gorm:"not null;index"`
	UnitID    snowflake.ID  `gorm:"not null;index"`
	Amount    int64         `gorm:"not null"`
	Status    InvoiceStatus `gorm:"type:text;not null"`
	DueDate   *time.Time
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// OpenInvoice is an invoice with the amount already applied to it.
type OpenInvoice struct {
	Invoice
	Applied   int64
	Remaining int64
}

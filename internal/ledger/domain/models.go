package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// EntryType classifies the business event behind a ledger entry.
type EntryType string

const (
	EntryTypeInvoice        EntryType = "INVOICE"
	EntryTypePayment        EntryType = "PAYMENT"
	EntryTypeAdjustment     EntryType = "ADJUSTMENT"
	EntryTypeOpeningBalance EntryType = "OPENING_BALANCE"
)

// Direction carries the sign of an entry. DEBIT raises what the tenant
// owes, CREDIT lowers it.
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// LedgerEntry is an immutable posting against a tenant.
// Amount is always a positive magnitude in minor units.
type LedgerEntry struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	TenantID    snowflake.ID  `gorm:"not null;index"`
	UnitID      *snowflake.ID `gorm:"index"`
	LeaseID     *snowflake.ID
	PropertyID  *snowflake.ID
	InvoiceID   *snowflake.ID
	PaymentID   *snowflake.ID
	EntryType   EntryType `gorm:"type:text;not null"`
	Direction   Direction `gorm:"type:text;not null"`
	Amount      int64     `gorm:"not null"`
	EffectiveAt time.Time `gorm:"not null"`
	Description string    `gorm:"type:text;not null"`
	Source      string    `gorm:"type:text;not null"`
	PeriodKey   *string   `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// Signed returns the amount with the direction applied.
func (e LedgerEntry) Signed() int64 {
	return SignedAmount(e.Direction, e.Amount)
}

func SignedAmount(direction Direction, amount int64) int64 {
	if direction == DirectionCredit {
		return -amount
	}
	return amount
}

// PeriodKey formats the calendar month of t as YYYY-MM in UTC.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// MonthBounds returns the UTC start of t's month and the start of the next.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Package notification delivers fire-and-forget signals after financial
// writes commit. Delivery failures never affect the write that caused them.
package notification

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type EventType string

const (
	EventPaymentRecorded EventType = "payment.recorded"
	EventInvoicePaid     EventType = "invoice.paid"
)

type Event struct {
	Type       EventType    `json:"type"`
	TenantID   snowflake.ID `json:"tenant_id"`
	PaymentID  snowflake.ID `json:"payment_id,omitempty"`
	InvoiceID  snowflake.ID `json:"invoice_id,omitempty"`
	Amount     int64        `json:"amount"`
	OccurredAt time.Time    `json:"occurred_at"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Composite fans an event out to every notifier and joins their errors.
type Composite []Notifier

func (c Composite) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range c {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package notification

import (
	"context"

	"go.uber.org/zap"
)

type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notification.log")}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	n.log.Info("notification",
		zap.String("type", string(event.Type)),
		zap.String("tenant_id", event.TenantID.String()),
		zap.String("payment_id", event.PaymentID.String()),
		zap.String("invoice_id", event.InvoiceID.String()),
		zap.Int64("amount", event.Amount),
	)
	return nil
}

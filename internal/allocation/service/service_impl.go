package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	allocationdomain "github.com/smallbiznis/rentledger/internal/allocation/domain"
	"github.com/smallbiznis/rentledger/internal/clock"
	invoicedomain "github.com/smallbiznis/rentledger/internal/invoice/domain"
	"github.com/smallbiznis/rentledger/internal/notification"
	obsmetrics "github.com/smallbiznis/rentledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/rentledger/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	PaymentRepo paymentdomain.Repository
	InvoiceRepo invoicedomain.Repository
	Dispatcher  *notification.Dispatcher `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics      `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	paymentRepo paymentdomain.Repository
	invoiceRepo invoicedomain.Repository
	dispatcher  *notification.Dispatcher
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) allocationdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("allocation.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		paymentRepo: p.PaymentRepo,
		invoiceRepo: p.InvoiceRepo,
		dispatcher:  p.Dispatcher,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Allocate(ctx context.Context, paymentID, tenantID, unitID snowflake.ID) (allocationdomain.Result, error) {
	if paymentID == 0 {
		return allocationdomain.Result{}, allocationdomain.ErrInvalidPayment
	}
	if tenantID == 0 {
		return allocationdomain.Result{}, allocationdomain.ErrInvalidTenant
	}
	if unitID == 0 {
		return allocationdomain.Result{}, allocationdomain.ErrInvalidUnit
	}

	result := allocationdomain.Result{PaymentID: paymentID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.paymentRepo.LockByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil || payment.TenantID != tenantID {
			return paymentdomain.ErrPaymentNotFound
		}

		invoiceCount, err := s.invoiceRepo.CountForUnit(ctx, tx, tenantID, unitID)
		if err != nil {
			return err
		}
		if invoiceCount == 0 {
			return allocationdomain.ErrInvoicesNotFound
		}

		alreadyApplied, err := s.paymentRepo.AppliedTotal(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		toAllocate := payment.Amount - alreadyApplied
		if toAllocate <= 0 {
			return nil
		}

		open, err := s.lockOpenInvoices(ctx, tx, tenantID, unitID)
		if err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		for _, invoice := range open {
			if toAllocate == 0 {
				break
			}
			if invoice.Remaining <= 0 {
				continue
			}

			amount := min(toAllocate, invoice.Remaining)
			if err := s.mergeApplication(ctx, tx, paymentID, invoice.ID, amount, now); err != nil {
				return err
			}

			application := allocationdomain.Application{
				InvoiceID: invoice.ID,
				Amount:    amount,
				Remaining: invoice.Remaining - amount,
			}
			if amount == invoice.Remaining {
				paid, err := s.invoiceRepo.TransitionStatus(ctx, tx, invoice.ID, invoicedomain.OpenStatuses, invoicedomain.InvoiceStatusPaid, now)
				if err != nil {
					return err
				}
				application.Paid = paid
			}

			result.Applications = append(result.Applications, application)
			result.Allocated += amount
			toAllocate -= amount
		}

		if len(result.Applications) > 0 {
			if _, err := s.paymentRepo.SetInvoiceIfUnset(ctx, tx, paymentID, result.Applications[0].InvoiceID); err != nil {
				return err
			}
		}

		result.Unapplied = toAllocate
		return nil
	})
	if err != nil {
		s.log.Warn("allocation aborted",
			zap.String("payment_id", paymentID.String()),
			zap.String("tenant_id", tenantID.String()),
			zap.String("unit_id", unitID.String()),
			zap.Error(err),
		)
		return allocationdomain.Result{}, err
	}

	s.obsMetrics.RecordAllocation(ctx, result.Allocated, result.Unapplied)
	s.log.Info("payment allocated",
		zap.String("payment_id", paymentID.String()),
		zap.Int("applications", len(result.Applications)),
		zap.Int64("allocated", result.Allocated),
		zap.Int64("unapplied", result.Unapplied),
	)
	s.notifyPaid(ctx, tenantID, paymentID, result)
	return result, nil
}

// lockOpenInvoices locks the open invoice set and returns it with the
// amount still owed on each, oldest obligation first.
func (s *Service) lockOpenInvoices(ctx context.Context, tx *gorm.DB, tenantID, unitID snowflake.ID) ([]invoicedomain.OpenInvoice, error) {
	invoices, err := s.invoiceRepo.LockOpen(ctx, tx, tenantID, unitID)
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(invoices))
	for _, invoice := range invoices {
		ids = append(ids, invoice.ID)
	}
	applied, err := s.invoiceRepo.AppliedTotals(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	open := make([]invoicedomain.OpenInvoice, 0, len(invoices))
	for _, invoice := range invoices {
		open = append(open, invoicedomain.OpenInvoice{
			Invoice:   invoice,
			Applied:   applied[invoice.ID],
			Remaining: invoice.Amount - applied[invoice.ID],
		})
	}
	invoicedomain.SortOldestFirst(open)
	return open, nil
}

func (s *Service) mergeApplication(ctx context.Context, tx *gorm.DB, paymentID, invoiceID snowflake.ID, amount int64, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO payment_applications (id, payment_id, invoice_id, amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (payment_id, invoice_id) DO UPDATE
		SET amount = payment_applications.amount + excluded.amount,
			updated_at = excluded.updated_at`,
		s.genID.Generate(),
		paymentID,
		invoiceID,
		amount,
		now,
		now,
	).Error
}

func (s *Service) notifyPaid(ctx context.Context, tenantID, paymentID snowflake.ID, result allocationdomain.Result) {
	for _, application := range result.Applications {
		if !application.Paid {
			continue
		}
		s.dispatcher.Dispatch(ctx, notification.Event{
			Type:       notification.EventInvoicePaid,
			TenantID:   tenantID,
			PaymentID:  paymentID,
			InvoiceID:  application.InvoiceID,
			Amount:     application.Amount,
			OccurredAt: s.clock.Now().UTC(),
		})
	}
}

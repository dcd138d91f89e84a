package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/clock"
	invoicedomain "github.com/smallbiznis/rentledger/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  invoicedomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  invoicedomain.Repository
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	if req.TenantID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidTenant
	}
	if req.UnitID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidUnit
	}
	if req.Amount <= 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAmount
	}

	status := invoicedomain.InvoiceStatus(strings.ToLower(strings.TrimSpace(string(req.Status))))
	switch status {
	case "":
		status = invoicedomain.InvoiceStatusDraft
	case invoicedomain.InvoiceStatusDraft, invoicedomain.InvoiceStatusSent:
	default:
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidStatus
	}

	var dueDate *time.Time
	if req.DueDate != nil {
		due := req.DueDate.UTC()
		dueDate = &due
	}

	now := s.clock.Now().UTC()
	invoice := invoicedomain.Invoice{
		ID:        s.genID.Generate(),
		TenantID:  req.TenantID,
		UnitID:    req.UnitID,
		Amount:    req.Amount,
		Status:    status,
		DueDate:   dueDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, &invoice); err != nil {
		return invoicedomain.Invoice{}, err
	}
	return invoice, nil
}

func (s *Service) Send(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	return s.transition(ctx, id, []invoicedomain.InvoiceStatus{invoicedomain.InvoiceStatusDraft}, invoicedomain.InvoiceStatusSent)
}

// Cancel voids an unpaid invoice. Paid is terminal.
func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	return s.transition(ctx, id, []invoicedomain.InvoiceStatus{
		invoicedomain.InvoiceStatusDraft,
		invoicedomain.InvoiceStatusSent,
		invoicedomain.InvoiceStatusOverdue,
	}, invoicedomain.InvoiceStatusCancelled)
}

func (s *Service) transition(ctx context.Context, id snowflake.ID, from []invoicedomain.InvoiceStatus, to invoicedomain.InvoiceStatus) (invoicedomain.Invoice, error) {
	var updated invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return invoicedomain.ErrInvoiceNotFound
		}

		now := s.clock.Now().UTC()
		changed, err := s.repo.TransitionStatus(ctx, tx, id, from, to, now)
		if err != nil {
			return err
		}
		if !changed {
			return invoicedomain.ErrInvalidTransition
		}

		updated = *current
		updated.Status = to
		updated.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, invoicedomain.ErrInvalidTransition) {
			s.log.Warn("rejected invoice status transition",
				zap.String("invoice_id", id.String()),
				zap.String("to", string(to)),
			)
		}
		return invoicedomain.Invoice{}, err
	}
	return updated, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if item == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	return *item, nil
}

func (s *Service) ListOpen(ctx context.Context, tenantID, unitID snowflake.ID) ([]invoicedomain.OpenInvoice, error) {
	if tenantID == 0 {
		return nil, invoicedomain.ErrInvalidTenant
	}
	if unitID == 0 {
		return nil, invoicedomain.ErrInvalidUnit
	}

	items, err := s.repo.ListOpen(ctx, s.db, tenantID, unitID)
	if err != nil {
		return nil, err
	}
	return s.withRemaining(ctx, s.db, items)
}

func (s *Service) withRemaining(ctx context.Context, conn *gorm.DB, items []invoicedomain.Invoice) ([]invoicedomain.OpenInvoice, error) {
	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	applied, err := s.repo.AppliedTotals(ctx, conn, ids)
	if err != nil {
		return nil, err
	}

	open := make([]invoicedomain.OpenInvoice, 0, len(items))
	for _, item := range items {
		open = append(open, invoicedomain.OpenInvoice{
			Invoice:   item,
			Applied:   applied[item.ID],
			Remaining: item.Amount - applied[item.ID],
		})
	}
	invoicedomain.SortOldestFirst(open)
	return open, nil
}

func (s *Service) Remaining(ctx context.Context, id snowflake.ID) (int64, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return 0, err
	}
	if item == nil {
		return 0, invoicedomain.ErrInvoiceNotFound
	}
	applied, err := s.repo.AppliedTotals(ctx, s.db, []snowflake.ID{id})
	if err != nil {
		return 0, err
	}
	return item.Amount - applied[id], nil
}

func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	count, err := s.repo.MarkOverdue(ctx, s.db, asOf.UTC(), s.clock.Now().UTC())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Info("marked invoices overdue", zap.Int64("count", count), zap.Time("as_of", asOf.UTC()))
	}
	return count, nil
}

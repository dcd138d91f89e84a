package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
	"github.com/smallbiznis/rentledger/internal/notification"
	obsmetrics "github.com/smallbiznis/rentledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/rentledger/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultDescription = "Payment received"

// errKeyTaken aborts the transaction when a concurrent writer stored the
// same idempotency key between the pre-check and the insert.
var errKeyTaken = errors.New("idempotency_key_taken")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	LedgerSvc  ledgerdomain.Service
	Repo       paymentdomain.Repository
	Dispatcher *notification.Dispatcher `optional:"true"`
	ObsMetrics *obsmetrics.Metrics      `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	ledgerSvc  ledgerdomain.Service
	repo       paymentdomain.Repository
	dispatcher *notification.Dispatcher
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		ledgerSvc:  p.LedgerSvc,
		repo:       p.Repo,
		dispatcher: p.Dispatcher,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) RecordPayment(ctx context.Context, req paymentdomain.RecordPaymentRequest) (paymentdomain.Payment, error) {
	if req.TenantID == 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidTenant
	}
	if req.Amount <= 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidAmount
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidIdempotencyKey
	}
	source := strings.TrimSpace(req.Source)
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = defaultDescription
	}

	existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, key)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if existing != nil {
		return s.duplicate(ctx, *existing)
	}

	paymentID := s.genID.Generate()
	var payment paymentdomain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.ledgerSvc.AppendTx(ctx, tx, ledgerdomain.AppendRequest{
			TenantID:    req.TenantID,
			UnitID:      req.UnitID,
			PaymentID:   &paymentID,
			EntryType:   ledgerdomain.EntryTypePayment,
			Direction:   ledgerdomain.DirectionCredit,
			Amount:      req.Amount,
			EffectiveAt: req.EffectiveAt,
			Description: description,
			Source:      source,
		})
		if err != nil {
			return err
		}

		payment = paymentdomain.Payment{
			ID:             paymentID,
			TenantID:       req.TenantID,
			UnitID:         req.UnitID,
			Amount:         req.Amount,
			IdempotencyKey: key,
			LedgerEntryID:  entry.ID,
			Source:         source,
			EffectiveAt:    entry.EffectiveAt,
			CreatedAt:      entry.CreatedAt,
		}
		inserted, err := s.repo.Insert(ctx, tx, &payment)
		if err != nil {
			return err
		}
		if !inserted {
			return errKeyTaken
		}
		return nil
	})
	if errors.Is(err, errKeyTaken) {
		stored, findErr := s.repo.FindByIdempotencyKey(ctx, s.db, key)
		if findErr != nil {
			return paymentdomain.Payment{}, findErr
		}
		if stored == nil {
			return paymentdomain.Payment{}, paymentdomain.ErrDuplicatePayment
		}
		return s.duplicate(ctx, *stored)
	}
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	s.obsMetrics.RecordPayment(ctx, source, "recorded")
	s.log.Info("payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("tenant_id", payment.TenantID.String()),
		zap.Int64("amount", payment.Amount),
	)
	s.dispatcher.Dispatch(ctx, notification.Event{
		Type:       notification.EventPaymentRecorded,
		TenantID:   payment.TenantID,
		PaymentID:  payment.ID,
		Amount:     payment.Amount,
		OccurredAt: payment.EffectiveAt,
	})
	return payment, nil
}

func (s *Service) duplicate(ctx context.Context, existing paymentdomain.Payment) (paymentdomain.Payment, error) {
	s.obsMetrics.RecordPayment(ctx, existing.Source, "duplicate")
	s.log.Info("duplicate payment skipped",
		zap.String("payment_id", existing.ID.String()),
		zap.String("idempotency_key", existing.IdempotencyKey),
	)
	return existing, paymentdomain.ErrDuplicatePayment
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (paymentdomain.Payment, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if item == nil {
		return paymentdomain.Payment{}, paymentdomain.ErrPaymentNotFound
	}
	return *item, nil
}

func (s *Service) GetByIdempotencyKey(ctx context.Context, key string) (paymentdomain.Payment, error) {
	item, err := s.repo.FindByIdempotencyKey(ctx, s.db, strings.TrimSpace(key))
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if item == nil {
		return paymentdomain.Payment{}, paymentdomain.ErrPaymentNotFound
	}
	return *item, nil
}

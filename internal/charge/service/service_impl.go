package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/rentledger/internal/charge/domain"
	"github.com/smallbiznis/rentledger/internal/config"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
	"github.com/smallbiznis/rentledger/internal/lock"
	obsmetrics "github.com/smallbiznis/rentledger/internal/observability/metrics"
	occupancydomain "github.com/smallbiznis/rentledger/internal/occupancy/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	chargeSource  = "recurring_charge"
	lockKeyPrefix = "rentledger:charges:"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	LedgerSvc   ledgerdomain.Service
	Occupancies occupancydomain.Provider
	Locker      lock.Locker                 `optional:"true"`
	Billing     *config.BillingConfigHolder `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	ledgerSvc   ledgerdomain.Service
	occupancies occupancydomain.Provider
	locker      lock.Locker
	billing     *config.BillingConfigHolder
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:         p.Log.Named("charge.service"),
		ledgerSvc:   p.LedgerSvc,
		occupancies: p.Occupancies,
		locker:      p.Locker,
		billing:     p.Billing,
		obsMetrics:  p.ObsMetrics,
	}
}

// MonthLabel renders the human-readable charge description for runDate.
func MonthLabel(prefix string, runDate time.Time) string {
	return prefix + " – " + runDate.UTC().Format("Jan 2006")
}

func (s *Service) GenerateMonthlyCharges(ctx context.Context, runDate time.Time) (domain.Result, error) {
	cfg := s.billing.Get()
	runDate = runDate.UTC()

	result := domain.Result{
		MonthLabel: MonthLabel(cfg.ChargeLabelPrefix, runDate),
		PeriodKey:  ledgerdomain.PeriodKey(runDate),
	}

	if s.locker != nil {
		key := lockKeyPrefix + result.PeriodKey
		token, ok, err := s.locker.TryLock(ctx, key, cfg.ChargeLockTTL)
		if err != nil {
			return result, fmt.Errorf("acquire charge lock: %w", err)
		}
		if !ok {
			return result, domain.ErrBatchInProgress
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				s.log.Warn("failed to release charge lock", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	occupancies, err := s.occupancies.ListActive(ctx, runDate)
	if err != nil {
		return result, fmt.Errorf("list active occupancies: %w", err)
	}

	for _, occ := range occupancies {
		if err := ctx.Err(); err != nil {
			s.record(ctx, result)
			return result, err
		}

		created, err := s.chargeOne(ctx, occ, result.MonthLabel, result.PeriodKey, runDate)
		switch {
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, domain.TenantError{TenantID: occ.TenantID, OccupancyID: occ.ID, Err: err})
			s.log.Error("failed to generate charge",
				zap.String("tenant_id", occ.TenantID.String()),
				zap.String("occupancy_id", occ.ID.String()),
				zap.String("period", result.PeriodKey),
				zap.Error(err),
			)
		case created:
			result.Created++
		default:
			result.Skipped++
		}
	}

	s.record(ctx, result)
	s.log.Info("monthly charges generated",
		zap.String("month", result.MonthLabel),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// chargeOne is the per-tenant unit of work. It reports false when the
// tenant was already billed for the period.
func (s *Service) chargeOne(ctx context.Context, occ occupancydomain.Occupancy, label, periodKey string, runDate time.Time) (bool, error) {
	exists, err := s.ledgerSvc.ExistsRecurring(ctx, occ.TenantID, label, runDate)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	unitID := occ.UnitID
	_, err = s.ledgerSvc.Append(ctx, ledgerdomain.AppendRequest{
		TenantID:    occ.TenantID,
		UnitID:      &unitID,
		LeaseID:     occ.LeaseID,
		PropertyID:  occ.PropertyID,
		EntryType:   ledgerdomain.EntryTypeInvoice,
		Direction:   ledgerdomain.DirectionDebit,
		Amount:      occ.MonthlyRent,
		EffectiveAt: runDate,
		Description: label,
		Source:      chargeSource,
		PeriodKey:   periodKey,
	})
	if errors.Is(err, ledgerdomain.ErrDuplicateEntry) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) record(ctx context.Context, result domain.Result) {
	ctx = context.WithoutCancel(ctx)
	s.obsMetrics.RecordCharge(ctx, "created", result.Created)
	s.obsMetrics.RecordCharge(ctx, "skipped", result.Skipped)
	s.obsMetrics.RecordCharge(ctx, "failed", result.Failed)
}

package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/rentledger/internal/balance/domain"
	"github.com/smallbiznis/rentledger/internal/clock"
	"github.com/smallbiznis/rentledger/internal/config"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Billing *config.BillingConfigHolder `optional:"true"`
}

// Service reads are lock-free snapshots and may trail in-flight writers.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	billing  *config.BillingConfigHolder
	window   balancedomain.RunningBalanceStrategy
	fallback balancedomain.RunningBalanceStrategy
}

func NewService(p Params) balancedomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("balance.service"),
		clock:    p.Clock,
		billing:  p.Billing,
		window:   WindowStrategy{},
		fallback: FoldStrategy{},
	}
}

type totalsRow struct {
	TenantID     snowflake.ID
	TotalDebits  int64
	TotalCredits int64
	MonthDebits  int64
	MonthCredits int64
}

func (r totalsRow) summary() balancedomain.Summary {
	balance := r.TotalDebits - r.TotalCredits
	return balancedomain.Summary{
		TenantID:         r.TenantID,
		RentDueThisCycle: r.MonthDebits,
		PaidThisMonth:    r.MonthCredits,
		Arrears:          max(balance, 0),
		Balance:          balance,
		Status:           balancedomain.StatusFor(balance),
	}
}

const totalsSelect = `SELECT tenant_id,
	COALESCE(SUM(CASE WHEN direction = 'DEBIT' THEN amount ELSE 0 END), 0) AS total_debits,
	COALESCE(SUM(CASE WHEN direction = 'CREDIT' THEN amount ELSE 0 END), 0) AS total_credits,
	COALESCE(SUM(CASE WHEN direction = 'DEBIT' AND effective_at >= ? AND effective_at < ? THEN amount ELSE 0 END), 0) AS month_debits,
	COALESCE(SUM(CASE WHEN direction = 'CREDIT' AND effective_at >= ? AND effective_at < ? THEN amount ELSE 0 END), 0) AS month_credits
FROM ledger_entries`

func (s *Service) Summarize(ctx context.Context, tenantID snowflake.ID) (balancedomain.Summary, error) {
	if tenantID == 0 {
		return balancedomain.Summary{}, balancedomain.ErrInvalidTenant
	}
	start, end := ledgerdomain.MonthBounds(s.clock.Now())

	var rows []totalsRow
	err := s.db.WithContext(ctx).Raw(
		totalsSelect+` WHERE tenant_id = ? GROUP BY tenant_id`,
		start, end, start, end, tenantID,
	).Scan(&rows).Error
	if err != nil {
		return balancedomain.Summary{}, err
	}
	if len(rows) == 0 {
		return totalsRow{TenantID: tenantID}.summary(), nil
	}
	return rows[0].summary(), nil
}

func (s *Service) SummarizeAll(ctx context.Context) ([]balancedomain.Summary, error) {
	start, end := ledgerdomain.MonthBounds(s.clock.Now())

	var rows []totalsRow
	err := s.db.WithContext(ctx).Raw(
		totalsSelect+` GROUP BY tenant_id ORDER BY tenant_id ASC`,
		start, end, start, end,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]balancedomain.Summary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, row.summary())
	}
	return summaries, nil
}

func (s *Service) History(ctx context.Context, req balancedomain.HistoryRequest) ([]balancedomain.HistoryEntry, error) {
	if req.TenantID == 0 {
		return nil, balancedomain.ErrInvalidTenant
	}
	if req.Limit < 0 {
		return nil, balancedomain.ErrInvalidLimit
	}

	cfg := s.billing.Get()
	if req.Limit == 0 {
		req.Limit = cfg.HistoryLimit
	}

	primary := s.window
	if cfg.RunningBalanceStrategy == config.RunningBalanceFold {
		primary = s.fallback
	}

	items, err := primary.History(ctx, s.db, req)
	if err == nil || primary == s.fallback {
		return items, err
	}

	s.log.Warn("running balance strategy failed, falling back",
		zap.String("strategy", primary.Name()),
		zap.String("fallback", s.fallback.Name()),
		zap.Error(err),
	)
	return s.fallback.History(ctx, s.db, req)
}

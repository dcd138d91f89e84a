package service

import (
	"context"
	"strings"

	adjustmentdomain "github.com/smallbiznis/rentledger/internal/adjustment/domain"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sourceAdjustment     = "adjustment"
	sourceOpeningBalance = "opening_balance"
	openingBalanceLabel  = "Opening balance"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	LedgerSvc ledgerdomain.Service
}

type Service struct {
	log       *zap.Logger
	ledgerSvc ledgerdomain.Service
}

func NewService(p Params) adjustmentdomain.Service {
	return &Service{
		log:       p.Log.Named("adjustment.service"),
		ledgerSvc: p.LedgerSvc,
	}
}

func (s *Service) Adjust(ctx context.Context, req adjustmentdomain.AdjustRequest) (ledgerdomain.LedgerEntry, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return ledgerdomain.LedgerEntry{}, adjustmentdomain.ErrInvalidReason
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = sourceAdjustment
	}

	entry, err := s.ledgerSvc.Append(ctx, ledgerdomain.AppendRequest{
		TenantID:    req.TenantID,
		UnitID:      req.UnitID,
		EntryType:   ledgerdomain.EntryTypeAdjustment,
		Direction:   req.Direction,
		Amount:      req.Amount,
		EffectiveAt: req.EffectiveAt,
		Description: reason,
		Source:      source,
	})
	if err != nil {
		return ledgerdomain.LedgerEntry{}, err
	}

	s.log.Info("ledger adjusted",
		zap.String("tenant_id", entry.TenantID.String()),
		zap.String("direction", string(entry.Direction)),
		zap.Int64("amount", entry.Amount),
		zap.String("reason", reason),
	)
	return entry, nil
}

func (s *Service) RecordOpeningBalance(ctx context.Context, req adjustmentdomain.OpeningBalanceRequest) (ledgerdomain.LedgerEntry, error) {
	if req.Balance == 0 {
		return ledgerdomain.LedgerEntry{}, adjustmentdomain.ErrInvalidOpeningBalance
	}

	direction := ledgerdomain.DirectionDebit
	amount := req.Balance
	if amount < 0 {
		direction = ledgerdomain.DirectionCredit
		amount = -amount
	}

	return s.ledgerSvc.Append(ctx, ledgerdomain.AppendRequest{
		TenantID:    req.TenantID,
		UnitID:      req.UnitID,
		EntryType:   ledgerdomain.EntryTypeOpeningBalance,
		Direction:   direction,
		Amount:      amount,
		EffectiveAt: req.EffectiveAt,
		Description: openingBalanceLabel,
		Source:      sourceOpeningBalance,
	})
}

package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/rentledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Append(ctx context.Context, req ledgerdomain.AppendRequest) (ledgerdomain.LedgerEntry, error) {
	return s.AppendTx(ctx, s.db, req)
}

func (s *Service) AppendTx(ctx context.Context, tx *gorm.DB, req ledgerdomain.AppendRequest) (ledgerdomain.LedgerEntry, error) {
	entry, err := s.normalize(req)
	if err != nil {
		return ledgerdomain.LedgerEntry{}, err
	}

	result := tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (
			id, tenant_id, unit_id, lease_id, property_id, invoice_id, payment_id,
			entry_type, direction, amount, effective_at, description, source, period_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		entry.ID,
		entry.TenantID,
		entry.UnitID,
		entry.LeaseID,
		entry.PropertyID,
		entry.InvoiceID,
		entry.PaymentID,
		string(entry.EntryType),
		string(entry.Direction),
		entry.Amount,
		entry.EffectiveAt,
		entry.Description,
		entry.Source,
		entry.PeriodKey,
		entry.CreatedAt,
	)
	if result.Error != nil {
		return ledgerdomain.LedgerEntry{}, result.Error
	}
	if result.RowsAffected == 0 {
		s.log.Debug("ledger entry skipped by unique constraint",
			zap.String("tenant_id", entry.TenantID.String()),
			zap.String("entry_type", string(entry.EntryType)),
			zap.String("description", entry.Description),
		)
		return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrDuplicateEntry
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(entry.EntryType), string(entry.Direction))
	return entry, nil
}

func (s *Service) ExistsRecurring(ctx context.Context, tenantID snowflake.ID, description string, at time.Time) (bool, error) {
	if tenantID == 0 {
		return false, ledgerdomain.ErrInvalidTenant
	}
	start, end := ledgerdomain.MonthBounds(at)

	var count int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM ledger_entries
		WHERE tenant_id = ?
			AND entry_type = ?
			AND direction = ?
			AND description = ?
			AND effective_at >= ?
			AND effective_at < ?`,
		tenantID,
		string(ledgerdomain.EntryTypeInvoice),
		string(ledgerdomain.DirectionDebit),
		strings.TrimSpace(description),
		start,
		end,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) normalize(req ledgerdomain.AppendRequest) (ledgerdomain.LedgerEntry, error) {
	if req.TenantID == 0 {
		return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrInvalidTenant
	}
	if req.Amount <= 0 {
		return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrInvalidAmount
	}
	entryType, err := normalizeEntryType(req.EntryType)
	if err != nil {
		return ledgerdomain.LedgerEntry{}, err
	}
	direction, err := normalizeDirection(req.Direction)
	if err != nil {
		return ledgerdomain.LedgerEntry{}, err
	}

	now := s.clock.Now().UTC()
	effectiveAt := req.EffectiveAt.UTC()
	if req.EffectiveAt.IsZero() {
		effectiveAt = now
	}

	var periodKey *string
	if key := strings.TrimSpace(req.PeriodKey); key != "" {
		if _, err := time.Parse("2006-01", key); err != nil {
			return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrInvalidPeriodKey
		}
		periodKey = &key
	}

	return ledgerdomain.LedgerEntry{
		ID:          s.genID.Generate(),
		TenantID:    req.TenantID,
		UnitID:      req.UnitID,
		LeaseID:     req.LeaseID,
		PropertyID:  req.PropertyID,
		InvoiceID:   req.InvoiceID,
		PaymentID:   req.PaymentID,
		EntryType:   entryType,
		Direction:   direction,
		Amount:      req.Amount,
		EffectiveAt: effectiveAt,
		Description: strings.TrimSpace(req.Description),
		Source:      strings.TrimSpace(req.Source),
		PeriodKey:   periodKey,
		CreatedAt:   now,
	}, nil
}

func normalizeEntryType(entryType ledgerdomain.EntryType) (ledgerdomain.EntryType, error) {
	normalized := ledgerdomain.EntryType(strings.ToUpper(strings.TrimSpace(string(entryType))))
	switch normalized {
	case ledgerdomain.EntryTypeInvoice,
		ledgerdomain.EntryTypePayment,
		ledgerdomain.EntryTypeAdjustment,
		ledgerdomain.EntryTypeOpeningBalance:
		return normalized, nil
	default:
		return "", ledgerdomain.ErrInvalidEntryType
	}
}

func normalizeDirection(direction ledgerdomain.Direction) (ledgerdomain.Direction, error) {
	normalized := ledgerdomain.Direction(strings.ToUpper(strings.TrimSpace(string(direction))))
	switch normalized {
	case ledgerdomain.DirectionDebit, ledgerdomain.DirectionCredit:
		return normalized, nil
	default:
		return "", ledgerdomain.ErrInvalidDirection
	}
}

package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/clock"
	occupancydomain "github.com/smallbiznis/rentledger/internal/occupancy/domain"
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
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) occupancydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("occupancy.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) ListActive(ctx context.Context, at time.Time) ([]occupancydomain.Occupancy, error) {
	var items []occupancydomain.Occupancy
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, unit_id, lease_id, property_id, monthly_rent, status, started_at, ended_at
		FROM occupancies
		WHERE status = ? AND monthly_rent > 0 AND started_at <= ?
		ORDER BY tenant_id ASC, id ASC`,
		string(occupancydomain.StatusActive),
		at.UTC(),
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) Register(ctx context.Context, req occupancydomain.RegisterRequest) (occupancydomain.Occupancy, error) {
	if req.TenantID == 0 {
		return occupancydomain.Occupancy{}, occupancydomain.ErrInvalidTenant
	}
	if req.UnitID == 0 {
		return occupancydomain.Occupancy{}, occupancydomain.ErrInvalidUnit
	}
	if req.MonthlyRent < 0 {
		return occupancydomain.Occupancy{}, occupancydomain.ErrInvalidMonthlyRent
	}

	startedAt := req.StartedAt.UTC()
	if req.StartedAt.IsZero() {
		startedAt = s.clock.Now().UTC()
	}

	item := occupancydomain.Occupancy{
		ID:          s.genID.Generate(),
		TenantID:    req.TenantID,
		UnitID:      req.UnitID,
		LeaseID:     req.LeaseID,
		PropertyID:  req.PropertyID,
		MonthlyRent: req.MonthlyRent,
		Status:      occupancydomain.StatusActive,
		StartedAt:   startedAt,
	}
	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO occupancies (id, tenant_id, unit_id, lease_id, property_id, monthly_rent, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.TenantID,
		item.UnitID,
		item.LeaseID,
		item.PropertyID,
		item.MonthlyRent,
		string(item.Status),
		item.StartedAt,
	).Error
	if err != nil {
		return occupancydomain.Occupancy{}, err
	}
	return item, nil
}

func (s *Service) End(ctx context.Context, id snowflake.ID, at time.Time) error {
	res := s.db.WithContext(ctx).Exec(
		`UPDATE occupancies SET status = ?, ended_at = ? WHERE id = ? AND status = ?`,
		string(occupancydomain.StatusEnded),
		at.UTC(),
		id,
		string(occupancydomain.StatusActive),
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return occupancydomain.ErrOccupancyNotFound
	}
	s.log.Info("occupancy ended", zap.String("occupancy_id", id.String()))
	return nil
}

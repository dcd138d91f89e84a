package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/errs"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Occupancy ties a tenant to a unit with a recurring monthly rent.
type Occupancy struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	TenantID    snowflake.ID  `gorm:"not null;index"`
	UnitID      snowflake.ID  `gorm:"not null"`
	LeaseID     *snowflake.ID
	PropertyID  *snowflake.ID
	MonthlyRent int64     `gorm:"not null"`
	Status      Status    `gorm:"type:text;not null"`
	StartedAt   time.Time `gorm:"not null"`
	EndedAt     *time.Time
}

// TableName sets the database table name.
func (Occupancy) TableName() string { return "occupancies" }

type RegisterRequest struct {
	TenantID    snowflake.ID
	UnitID      snowflake.ID
	LeaseID     *snowflake.ID
	PropertyID  *snowflake.ID
	MonthlyRent int64
	StartedAt   time.Time
}

// Provider is the read side the charge generator depends on.
type Provider interface {
	// ListActive returns active occupancies with a positive monthly rent
	// that had started by at.
	ListActive(ctx context.Context, at time.Time) ([]Occupancy, error)
}

type Service interface {
	Provider
	Register(ctx context.Context, req RegisterRequest) (Occupancy, error)
	End(ctx context.Context, id snowflake.ID, at time.Time) error
}

var (
	ErrInvalidTenant      = fmt.Errorf("%w: invalid_tenant", errs.ErrValidation)
	ErrInvalidUnit        = fmt.Errorf("%w: invalid_unit", errs.ErrValidation)
	ErrInvalidMonthlyRent = fmt.Errorf("%w: invalid_monthly_rent", errs.ErrValidation)
	ErrOccupancyNotFound  = fmt.Errorf("%w: occupancy_not_found", errs.ErrNotFound)
)

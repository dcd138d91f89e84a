package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Result summarises one monthly charge run.
type Result struct {
	MonthLabel string
	PeriodKey  string
	Created    int
	Skipped    int
	Failed     int
	Errors     []TenantError
}

type TenantError struct {
	TenantID    snowflake.ID
	OccupancyID snowflake.ID
	Err         error
}

func (e TenantError) Error() string {
	return "tenant " + e.TenantID.String() + ": " + e.Err.Error()
}

func (e TenantError) Unwrap() error { return e.Err }

type Service interface {
	// GenerateMonthlyCharges bills every active occupancy once for the
	// calendar month containing runDate. Safe to re-run.
	GenerateMonthlyCharges(ctx context.Context, runDate time.Time) (Result, error)
}

var ErrBatchInProgress = errors.New("charge_batch_in_progress")

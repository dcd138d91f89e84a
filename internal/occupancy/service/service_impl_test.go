package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/clock"
	occupancydomain "github.com/smallbiznis/rentledger/internal/occupancy/domain"
	"github.com/smallbiznis/rentledger/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestListActiveFiltersEndedZeroRentAndFutureStarts(t *testing.T) {
	db := testutil.NewDB(t)
	now := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(Params{DB: db, Log: zap.NewNop(), GenID: testutil.NewNode(t), Clock: clock.NewFakeClock(now)})
	ctx := context.Background()

	active, err := svc.Register(ctx, occupancydomain.RegisterRequest{TenantID: 1, UnitID: 10, MonthlyRent: 15000, StartedAt: now.AddDate(0, -2, 0)})
	require.NoError(t, err)
	_, err = svc.Register(ctx, occupancydomain.RegisterRequest{TenantID: 2, UnitID: 20, MonthlyRent: 0, StartedAt: now.AddDate(0, -1, 0)})
	require.NoError(t, err)
	_, err = svc.Register(ctx, occupancydomain.RegisterRequest{TenantID: 3, UnitID: 30, MonthlyRent: 9000, StartedAt: now.AddDate(0, 1, 0)})
	require.NoError(t, err)
	ended, err := svc.Register(ctx, occupancydomain.RegisterRequest{TenantID: 4, UnitID: 40, MonthlyRent: 8000, StartedAt: now.AddDate(-1, 0, 0)})
	require.NoError(t, err)
	require.NoError(t, svc.End(ctx, ended.ID, now.AddDate(0, 0, -3)))

	items, err := svc.ListActive(ctx, now)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, active.ID, items[0].ID)
	require.Equal(t, int64(15000), items[0].MonthlyRent)

	require.ErrorIs(t, svc.End(ctx, ended.ID, now), occupancydomain.ErrOccupancyNotFound)
	require.ErrorIs(t, svc.End(ctx, snowflake.ID(12345), now), occupancydomain.ErrOccupancyNotFound)
}

func TestRegisterValidation(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(Params{DB: db, Log: zap.NewNop(), GenID: testutil.NewNode(t), Clock: clock.New()})

	_, err := svc.Register(context.Background(), occupancydomain.RegisterRequest{UnitID: 1, MonthlyRent: 1})
	require.ErrorIs(t, err, occupancydomain.ErrInvalidTenant)
	_, err = svc.Register(context.Background(), occupancydomain.RegisterRequest{TenantID: 1, MonthlyRent: 1})
	require.ErrorIs(t, err, occupancydomain.ErrInvalidUnit)
	_, err = svc.Register(context.Background(), occupancydomain.RegisterRequest{TenantID: 1, UnitID: 1, MonthlyRent: -5})
	require.ErrorIs(t, err, occupancydomain.ErrInvalidMonthlyRent)
}

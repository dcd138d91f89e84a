package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/charge/domain"
	"github.com/smallbiznis/rentledger/internal/clock"
	"github.com/smallbiznis/rentledger/internal/config"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/rentledger/internal/ledger/service"
	"github.com/smallbiznis/rentledger/internal/lock"
	occupancydomain "github.com/smallbiznis/rentledger/internal/occupancy/domain"
	occupancyservice "github.com/smallbiznis/rentledger/internal/occupancy/service"
	"github.com/smallbiznis/rentledger/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	db          *gorm.DB
	clock       *clock.FakeClock
	ledger      ledgerdomain.Service
	occupancies occupancydomain.Service
	locker      lock.Locker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2025, time.November, 1, 6, 0, 0, 0, time.UTC))
	return &harness{
		db:          db,
		clock:       clk,
		ledger:      ledgerservice.NewService(ledgerservice.Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clk}),
		occupancies: occupancyservice.NewService(occupancyservice.Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clk}),
		locker:      lock.NewLocalLocker(clk),
	}
}

func (h *harness) service(ledgerSvc ledgerdomain.Service) domain.Service {
	if ledgerSvc == nil {
		ledgerSvc = h.ledger
	}
	return NewService(Params{
		Log:         zap.NewNop(),
		LedgerSvc:   ledgerSvc,
		Occupancies: h.occupancies,
		Locker:      h.locker,
		Billing:     config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	})
}

func (h *harness) occupy(t *testing.T, tenantID, unitID snowflake.ID, rent int64, startedAt time.Time) {
	t.Helper()
	_, err := h.occupancies.Register(context.Background(), occupancydomain.RegisterRequest{
		TenantID:    tenantID,
		UnitID:      unitID,
		MonthlyRent: rent,
		StartedAt:   startedAt,
	})
	require.NoError(t, err)
}

func (h *harness) charges(t *testing.T, tenantID snowflake.ID) int64 {
	t.Helper()
	return testutil.Count(t, h.db, "ledger_entries", "tenant_id = ? AND entry_type = ? AND direction = ?",
		tenantID, "INVOICE", "DEBIT")
}

// ledgerHook lets a test intercept ledger calls made by the generator.
type ledgerHook struct {
	ledgerdomain.Service
	skipExistenceCheck bool
	beforeAppend       func(req ledgerdomain.AppendRequest) error
	afterAppend        func()
}

func (l *ledgerHook) ExistsRecurring(ctx context.Context, tenantID snowflake.ID, description string, at time.Time) (bool, error) {
	if l.skipExistenceCheck {
		return false, nil
	}
	return l.Service.ExistsRecurring(ctx, tenantID, description, at)
}

func (l *ledgerHook) Append(ctx context.Context, req ledgerdomain.AppendRequest) (ledgerdomain.LedgerEntry, error) {
	if l.beforeAppend != nil {
		if err := l.beforeAppend(req); err != nil {
			return ledgerdomain.LedgerEntry{}, err
		}
	}
	entry, err := l.Service.Append(ctx, req)
	if l.afterAppend != nil {
		l.afterAppend()
	}
	return entry, err
}

func TestMonthLabel(t *testing.T) {
	got := MonthLabel("Monthly Rent", time.Date(2025, time.November, 30, 23, 0, 0, 0, time.UTC))
	require.Equal(t, "Monthly Rent – Nov 2025", got)
}

func TestGenerateMonthlyChargesIsIdempotentPerMonth(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.occupy(t, 1, 10, 15000, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	h.occupy(t, 2, 20, 9000, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC))
	svc := h.service(nil)

	first, err := svc.GenerateMonthlyCharges(ctx, time.Date(2025, time.November, 1, 6, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "Monthly Rent – Nov 2025", first.MonthLabel)
	require.Equal(t, "2025-11", first.PeriodKey)
	require.Equal(t, 2, first.Created)
	require.Zero(t, first.Skipped)

	second, err := svc.GenerateMonthlyCharges(ctx, time.Date(2025, time.November, 12, 6, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Zero(t, second.Created)
	require.Equal(t, 2, second.Skipped)

	require.Equal(t, int64(1), h.charges(t, 1))
	require.Equal(t, int64(1), h.charges(t, 2))

	var amount int64
	require.NoError(t, h.db.Raw(`SELECT amount FROM ledger_entries WHERE tenant_id = ?`, 1).Scan(&amount).Error)
	require.Equal(t, int64(15000), amount)
}

func TestGenerateMonthlyChargesBillsNextMonthSeparately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.occupy(t, 1, 10, 15000, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	svc := h.service(nil)

	_, err := svc.GenerateMonthlyCharges(ctx, time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	dec, err := svc.GenerateMonthlyCharges(ctx, time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, dec.Created)
	require.Equal(t, "Monthly Rent – Dec 2025", dec.MonthLabel)
	require.Equal(t, int64(2), h.charges(t, 1))
}

func TestGenerateMonthlyChargesMidMonthStartBilledOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.occupy(t, 7, 70, 12000, time.Date(2025, time.November, 15, 0, 0, 0, 0, time.UTC))
	svc := h.service(nil)

	early, err := svc.GenerateMonthlyCharges(ctx, time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Zero(t, early.Created)

	for _, day := range []int{16, 20, 30} {
		_, err := svc.GenerateMonthlyCharges(ctx, time.Date(2025, time.November, day, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
	}
	require.Equal(t, int64(1), h.charges(t, 7))
}

func TestGenerateMonthlyChargesStorageConflictCountsAsSkip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.occupy(t, 1, 10, 15000, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	runDate := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)

	_, err := h.service(nil).GenerateMonthlyCharges(ctx, runDate)
	require.NoError(t, err)

	racing := h.service(&ledgerHook{Service: h.ledger, skipExistenceCheck: true})
	result, err := racing.GenerateMonthlyCharges(ctx, runDate.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Zero(t, result.Created)
	require.Equal(t, 1, result.Skipped)
	require.Zero(t, result.Failed)
	require.Equal(t, int64(1), h.charges(t, 1))
}

func TestGenerateMonthlyChargesResumesAfterCancellation(t *testing.T) {
	h := newHarness(t)
	h.occupy(t, 1, 10, 15000, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	h.occupy(t, 2, 20, 9000, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	h.occupy(t, 3, 30, 8000, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	runDate := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupted := h.service(&ledgerHook{Service: h.ledger, afterAppend: cancel})

	partial, err := interrupted.GenerateMonthlyCharges(ctx, runDate)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, partial.Created)

	resumed, err := h.service(nil).GenerateMonthlyCharges(context.Background(), runDate)
	require.NoError(t, err)
	require.Equal(t, 2, resumed.Created)
	require.Equal(t, 1, resumed.Skipped)
	for _, tenantID := range []snowflake.ID{1, 2, 3} {
		require.Equal(t, int64(1), h.charges(t, tenantID))
	}
}

func TestGenerateMonthlyChargesCountsTenantFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.occupy(t, 1, 10, 15000, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	h.occupy(t, 2, 20, 9000, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	boom := errors.New("boom")

	svc := h.service(&ledgerHook{Service: h.ledger, beforeAppend: func(req ledgerdomain.AppendRequest) error {
		if req.TenantID == 1 {
			return boom
		}
		return nil
	}})

	result, err := svc.GenerateMonthlyCharges(ctx, time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	require.Equal(t, snowflake.ID(1), result.Errors[0].TenantID)
	require.ErrorIs(t, result.Errors[0], boom)
	require.Zero(t, h.charges(t, 1))
}

func TestGenerateMonthlyChargesRejectsConcurrentBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.occupy(t, 1, 10, 15000, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))

	token, ok, err := h.locker.TryLock(ctx, "rentledger:charges:2025-11", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	svc := h.service(nil)
	_, err = svc.GenerateMonthlyCharges(ctx, time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, domain.ErrBatchInProgress)
	require.Zero(t, h.charges(t, 1))

	require.NoError(t, h.locker.Release(ctx, "rentledger:charges:2025-11", token))
	result, err := svc.GenerateMonthlyCharges(ctx, time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
}

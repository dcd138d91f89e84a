package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	allocationdomain "github.com/smallbiznis/rentledger/internal/allocation/domain"
	"github.com/smallbiznis/rentledger/internal/clock"
	"github.com/smallbiznis/rentledger/internal/errs"
	invoicedomain "github.com/smallbiznis/rentledger/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/rentledger/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/rentledger/internal/invoice/service"
	ledgerservice "github.com/smallbiznis/rentledger/internal/ledger/service"
	"github.com/smallbiznis/rentledger/internal/notification"
	obsmetrics "github.com/smallbiznis/rentledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/rentledger/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/rentledger/internal/payment/repository"
	paymentservice "github.com/smallbiznis/rentledger/internal/payment/service"
	"github.com/smallbiznis/rentledger/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tenantID = snowflake.ID(1001)
	unitID   = snowflake.ID(2002)
)

type capturingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (c *capturingNotifier) Notify(_ context.Context, event notification.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

type harness struct {
	t          *testing.T
	db         *gorm.DB
	invoices   invoicedomain.Service
	payments   paymentdomain.Service
	allocator  allocationdomain.Service
	notifier   *capturingNotifier
	dispatcher *notification.Dispatcher
	seq        int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC))
	notifier := &capturingNotifier{}
	dispatcher := notification.NewDispatcher(notifier, zap.NewNop(), obsmetrics.NewNop(), time.Second)

	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clk})
	return &harness{
		t:  t,
		db: db,
		invoices: invoiceservice.NewService(invoiceservice.Params{
			DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: invoicerepo.Provide(),
		}),
		payments: paymentservice.NewService(paymentservice.Params{
			DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, LedgerSvc: ledgerSvc, Repo: paymentrepo.Provide(),
		}),
		allocator: NewService(Params{
			DB:          db,
			Log:         zap.NewNop(),
			GenID:       node,
			Clock:       clk,
			PaymentRepo: paymentrepo.Provide(),
			InvoiceRepo: invoicerepo.Provide(),
			Dispatcher:  dispatcher,
			ObsMetrics:  obsmetrics.NewNop(),
		}),
		notifier:   notifier,
		dispatcher: dispatcher,
	}
}

func (h *harness) invoice(amount int64, due *time.Time, status invoicedomain.InvoiceStatus) snowflake.ID {
	h.t.Helper()
	inv, err := h.invoices.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		TenantID: tenantID, UnitID: unitID, Amount: amount, DueDate: due, Status: status,
	})
	require.NoError(h.t, err)
	return inv.ID
}

func (h *harness) payment(amount int64) snowflake.ID {
	h.t.Helper()
	h.seq++
	unit := unitID
	p, err := h.payments.RecordPayment(context.Background(), paymentdomain.RecordPaymentRequest{
		TenantID:       tenantID,
		UnitID:         &unit,
		Amount:         amount,
		IdempotencyKey: "txn-" + snowflake.ID(h.seq).String(),
	})
	require.NoError(h.t, err)
	return p.ID
}

func (h *harness) status(id snowflake.ID) invoicedomain.InvoiceStatus {
	h.t.Helper()
	inv, err := h.invoices.GetByID(context.Background(), id)
	require.NoError(h.t, err)
	return inv.Status
}

func (h *harness) remaining(id snowflake.ID) int64 {
	h.t.Helper()
	remaining, err := h.invoices.Remaining(context.Background(), id)
	require.NoError(h.t, err)
	return remaining
}

func (h *harness) appliedForPayment(id snowflake.ID) int64 {
	h.t.Helper()
	var total int64
	require.NoError(h.t, h.db.Raw(`SELECT COALESCE(SUM(amount), 0) FROM payment_applications WHERE payment_id = ?`, id).Scan(&total).Error)
	return total
}

func due(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestAllocateOldestFirstExhaustsPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Created newest-due first so ordering cannot come from insertion.
	i2 := h.invoice(500, due(2024, time.February, 1), invoicedomain.InvoiceStatusSent)
	i1 := h.invoice(1000, due(2024, time.January, 1), invoicedomain.InvoiceStatusSent)
	marked, err := h.invoices.MarkOverdue(ctx, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, int64(1), marked)
	paymentID := h.payment(1200)

	result, err := h.allocator.Allocate(ctx, paymentID, tenantID, unitID)
	require.NoError(t, err)

	require.Equal(t, int64(1200), result.Allocated)
	require.Zero(t, result.Unapplied)
	require.Equal(t, []allocationdomain.Application{
		{InvoiceID: i1, Amount: 1000, Remaining: 0, Paid: true},
		{InvoiceID: i2, Amount: 200, Remaining: 300, Paid: false},
	}, result.Applications)

	require.Equal(t, invoicedomain.InvoiceStatusPaid, h.status(i1))
	require.Equal(t, invoicedomain.InvoiceStatusSent, h.status(i2))
	require.Equal(t, int64(300), h.remaining(i2))

	payment, err := h.payments.GetByID(ctx, paymentID)
	require.NoError(t, err)
	require.NotNil(t, payment.InvoiceID)
	require.Equal(t, i1, *payment.InvoiceID)

	h.dispatcher.Close()
	require.Len(t, h.notifier.events, 1)
	require.Equal(t, notification.EventInvoicePaid, h.notifier.events[0].Type)
	require.Equal(t, i1, h.notifier.events[0].InvoiceID)
}

func TestAllocateSurplusLeavesUnappliedCredit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	i1 := h.invoice(1000, due(2024, time.January, 1), invoicedomain.InvoiceStatusSent)
	i2 := h.invoice(500, nil, invoicedomain.InvoiceStatusSent)
	draft := h.invoice(700, due(2023, time.December, 1), invoicedomain.InvoiceStatusDraft)
	paymentID := h.payment(2000)

	result, err := h.allocator.Allocate(ctx, paymentID, tenantID, unitID)
	require.NoError(t, err)
	require.Equal(t, int64(1500), result.Allocated)
	require.Equal(t, int64(500), result.Unapplied)

	require.Equal(t, invoicedomain.InvoiceStatusPaid, h.status(i1))
	require.Equal(t, invoicedomain.InvoiceStatusPaid, h.status(i2))
	require.Equal(t, invoicedomain.InvoiceStatusDraft, h.status(draft))
	for _, id := range []snowflake.ID{i1, i2} {
		require.Zero(t, h.remaining(id))
	}
	require.Equal(t, int64(700), h.remaining(draft))
}

func TestAllocateTwiceNeverExceedsPaymentAmount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	i1 := h.invoice(1000, due(2024, time.January, 1), invoicedomain.InvoiceStatusSent)
	paymentID := h.payment(600)

	first, err := h.allocator.Allocate(ctx, paymentID, tenantID, unitID)
	require.NoError(t, err)
	require.Equal(t, int64(600), first.Allocated)

	second, err := h.allocator.Allocate(ctx, paymentID, tenantID, unitID)
	require.NoError(t, err)
	require.Zero(t, second.Allocated)
	require.Zero(t, second.Unapplied)
	require.Empty(t, second.Applications)

	require.Equal(t, int64(600), h.appliedForPayment(paymentID))
	require.Equal(t, int64(400), h.remaining(i1))
	require.Equal(t, int64(1), testutil.Count(t, h.db, "payment_applications", ""))
}

func TestAllocateLeftoverCreditReachesLaterInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	i1 := h.invoice(1000, due(2024, time.January, 1), invoicedomain.InvoiceStatusSent)
	paymentID := h.payment(1500)

	result, err := h.allocator.Allocate(ctx, paymentID, tenantID, unitID)
	require.NoError(t, err)
	require.Equal(t, int64(500), result.Unapplied)

	i2 := h.invoice(700, due(2024, time.February, 1), invoicedomain.InvoiceStatusSent)
	result, err = h.allocator.Allocate(ctx, paymentID, tenantID, unitID)
	require.NoError(t, err)
	require.Equal(t, []allocationdomain.Application{{InvoiceID: i2, Amount: 500, Remaining: 200}}, result.Applications)
	require.Zero(t, result.Unapplied)

	require.Equal(t, int64(1500), h.appliedForPayment(paymentID))

	// The back-reference keeps the first invoice touched.
	payment, err := h.payments.GetByID(ctx, paymentID)
	require.NoError(t, err)
	require.Equal(t, i1, *payment.InvoiceID)
}

func TestAllocateMergesExistingApplicationRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	i1 := h.invoice(2000, due(2024, time.January, 1), invoicedomain.InvoiceStatusSent)
	paymentID := h.payment(1500)
	now := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, h.db.Exec(
		`INSERT INTO payment_applications (id, payment_id, invoice_id, amount, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		1, paymentID, i1, 200, now, now,
	).Error)

	result, err := h.allocator.Allocate(ctx, paymentID, tenantID, unitID)
	require.NoError(t, err)
	require.Equal(t, int64(1300), result.Allocated)

	var amount int64
	require.NoError(t, h.db.Raw(`SELECT amount FROM payment_applications WHERE payment_id = ? AND invoice_id = ?`, paymentID, i1).Scan(&amount).Error)
	require.Equal(t, int64(1500), amount)
	require.Equal(t, int64(1), testutil.Count(t, h.db, "payment_applications", ""))
	require.Equal(t, int64(500), h.remaining(i1))
}

func TestAllocateSplitsInvoiceAcrossPayments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	i1 := h.invoice(1000, due(2024, time.January, 1), invoicedomain.InvoiceStatusSent)
	first := h.payment(600)
	second := h.payment(600)

	_, err := h.allocator.Allocate(ctx, first, tenantID, unitID)
	require.NoError(t, err)
	result, err := h.allocator.Allocate(ctx, second, tenantID, unitID)
	require.NoError(t, err)

	require.Equal(t, int64(400), result.Allocated)
	require.Equal(t, int64(200), result.Unapplied)
	require.Equal(t, invoicedomain.InvoiceStatusPaid, h.status(i1))
	require.Zero(t, h.remaining(i1))
}

func TestAllocateOnlyPaidInvoicesLeavesEverythingUnapplied(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	i1 := h.invoice(300, due(2024, time.January, 1), invoicedomain.InvoiceStatusSent)
	_, err := h.allocator.Allocate(ctx, h.payment(300), tenantID, unitID)
	require.NoError(t, err)
	require.Equal(t, invoicedomain.InvoiceStatusPaid, h.status(i1))

	result, err := h.allocator.Allocate(ctx, h.payment(900), tenantID, unitID)
	require.NoError(t, err)
	require.Zero(t, result.Allocated)
	require.Equal(t, int64(900), result.Unapplied)
}

func TestAllocateNotFoundAbortsWithoutWrites(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	paymentID := h.payment(500)

	_, err := h.allocator.Allocate(ctx, paymentID, tenantID, unitID)
	require.ErrorIs(t, err, allocationdomain.ErrInvoicesNotFound)
	require.True(t, errs.IsNotFound(err))

	h.invoice(500, nil, invoicedomain.InvoiceStatusSent)

	_, err = h.allocator.Allocate(ctx, snowflake.ID(424242), tenantID, unitID)
	require.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)

	_, err = h.allocator.Allocate(ctx, paymentID, tenantID+1, unitID)
	require.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)

	_, err = h.allocator.Allocate(ctx, paymentID, tenantID, 0)
	require.ErrorIs(t, err, allocationdomain.ErrInvalidUnit)

	require.Zero(t, testutil.Count(t, h.db, "payment_applications", ""))
}

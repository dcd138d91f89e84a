package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/rentledger/internal/errs"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "canceled wrapped", err: fmt.Errorf("charges: %w", context.Canceled), want: SchedulerJobReasonDeadlineExceeded},
		{name: "validation", err: fmt.Errorf("%w: invalid_amount", errs.ErrValidation), want: SchedulerJobReasonValidation},
		{name: "duplicate", err: fmt.Errorf("%w: duplicate_ledger_entry", errs.ErrDuplicate), want: SchedulerJobReasonUniqueViolation},
		{name: "lock timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "other pg", err: &pgconn.PgError{Code: "42P01"}, want: SchedulerJobReasonDB},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestSchedulerMetricsRecordOnRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewSchedulerMetrics(registry, Config{ServiceName: "rentledger", Environment: "test"})
	if err != nil {
		t.Fatalf("new scheduler metrics: %v", err)
	}

	m.IncJobRun("monthly_charges")
	m.IncJobRun("monthly_charges")
	m.ObserveJobDuration("monthly_charges", 120*time.Millisecond)
	m.IncJobError("monthly_charges", context.DeadlineExceeded)
	m.AddBatchProcessed("monthly_charges", "created", 3)

	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("monthly_charges")); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues("monthly_charges", SchedulerJobReasonDeadlineExceeded)); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(m.batchProcessed.WithLabelValues("monthly_charges", "created")); got != 3 {
		t.Fatalf("expected 3 processed, got %v", got)
	}

	if _, err := NewSchedulerMetrics(registry, Config{ServiceName: "rentledger", Environment: "test"}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

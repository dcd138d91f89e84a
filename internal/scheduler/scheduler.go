package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/smallbiznis/rentledger/internal/charge/domain"
	"github.com/smallbiznis/rentledger/internal/clock"
	"github.com/smallbiznis/rentledger/internal/config"
	invoicedomain "github.com/smallbiznis/rentledger/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/rentledger/internal/observability/metrics"
	"github.com/smallbiznis/rentledger/internal/scheduler/guard"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobMonthlyCharges = "monthly_charges"
	JobMarkOverdue    = "mark_overdue"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	ChargeSvc  chargedomain.Service
	InvoiceSvc invoicedomain.Service
	Billing    *config.BillingConfigHolder `optional:"true"`
	Metrics    *obsmetrics.SchedulerMetrics `optional:"true"`
	Config     Config                       `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	chargeSvc  chargedomain.Service
	invoiceSvc invoicedomain.Service
	billing    *config.BillingConfigHolder
	metrics    *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.ChargeSvc == nil || p.InvoiceSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		chargeSvc:  p.ChargeSvc,
		invoiceSvc: p.InvoiceSvc,
		billing:    p.Billing,
		metrics:    p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx)
	}
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.AddErrors(1)
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadline is a soft timeout; the next tick resumes the work.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		s.logger(ctx).Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Timeout time.Duration
		Run     func(context.Context) error
	}{
		{JobMarkOverdue, s.cfg.OverdueTimeout, s.MarkOverdueJob},
		{JobMonthlyCharges, s.cfg.ChargeTimeout, s.MonthlyChargesJob},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, s.runJob(parent, job.Name, job.Timeout, job.Run))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// MonthlyChargesJob bills the current month once the charge day is reached.
func (s *Scheduler) MonthlyChargesJob(ctx context.Context) error {
	now := s.clock.Now()
	if err := guard.EnsureChargeDay(now, s.billing.Get().ChargeDay); err != nil {
		s.logger(ctx).Debug("monthly charges not due yet", zap.Time("now", now))
		return nil
	}

	result, err := s.chargeSvc.GenerateMonthlyCharges(ctx, now)
	run := jobRunFromContext(ctx)
	run.AddProcessed(result.Created + result.Skipped)
	run.AddErrors(result.Failed)
	s.metrics.AddBatchProcessed(JobMonthlyCharges, "created", result.Created)
	s.metrics.AddBatchProcessed(JobMonthlyCharges, "skipped", result.Skipped)
	s.metrics.AddBatchProcessed(JobMonthlyCharges, "failed", result.Failed)

	if errors.Is(err, chargedomain.ErrBatchInProgress) {
		s.logger(ctx).Info("monthly charges already running elsewhere", zap.String("period", result.PeriodKey))
		return nil
	}
	return err
}

func (s *Scheduler) MarkOverdueJob(ctx context.Context) error {
	count, err := s.invoiceSvc.MarkOverdue(ctx, s.clock.Now())
	if err != nil {
		return err
	}
	jobRunFromContext(ctx).AddProcessed(int(count))
	s.metrics.AddBatchProcessed(JobMarkOverdue, "marked", int(count))
	return nil
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// No explicit list enables every job.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if enabled == jobName {
			return true
		}
	}
	return false
}

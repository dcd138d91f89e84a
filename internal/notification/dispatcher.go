package notification

import (
	"context"
	"sync"
	"time"

	obsmetrics "github.com/smallbiznis/rentledger/internal/observability/metrics"
	"go.uber.org/zap"
)

// Dispatcher delivers events off the caller's goroutine with a bounded
// timeout. Errors are logged and counted, never returned.
type Dispatcher struct {
	notifier Notifier
	log      *zap.Logger
	metrics  *obsmetrics.Metrics
	timeout  time.Duration

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(notifier Notifier, log *zap.Logger, metrics *obsmetrics.Metrics, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		notifier: notifier,
		log:      log.Named("notification.dispatcher"),
		metrics:  metrics,
		timeout:  timeout,
	}
}

// Dispatch is safe on a nil Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	if d == nil || d.notifier == nil {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("dispatcher closed, dropping notification", zap.String("type", string(event.Type)))
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := d.notifier.Notify(sendCtx, event); err != nil {
			d.metrics.RecordNotification(sendCtx, string(event.Type), "failed")
			d.log.Warn("notification delivery failed",
				zap.String("type", string(event.Type)),
				zap.String("tenant_id", event.TenantID.String()),
				zap.Error(err),
			)
			return
		}
		d.metrics.RecordNotification(sendCtx, string(event.Type), "delivered")
	}()
}

// Close stops accepting events and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

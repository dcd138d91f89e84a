package notification

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/rentledger/internal/config"
	obsmetrics "github.com/smallbiznis/rentledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const redisChannel = "rentledger.notifications"

var Module = fx.Module("notification",
	fx.Provide(NewNotifier),
	fx.Provide(provideDispatcher),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Redis     *redis.Client `optional:"true"`
}

// NewNotifier always logs and adds Kafka and Redis delivery when configured.
func NewNotifier(p Params) Notifier {
	notifiers := Composite{NewLogNotifier(p.Log)}

	if p.Config.Kafka.Enabled() {
		kafkaNotifier := NewKafkaNotifier(p.Config.Kafka.Brokers, p.Config.Kafka.Topic)
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return kafkaNotifier.Close()
			},
		})
		notifiers = append(notifiers, kafkaNotifier)
	}
	if p.Redis != nil {
		notifiers = append(notifiers, NewRedisNotifier(p.Redis, redisChannel))
	}

	p.Log.Info("notifiers configured", zap.Int("count", len(notifiers)))
	return notifiers
}

func provideDispatcher(lc fx.Lifecycle, notifier Notifier, log *zap.Logger, metrics *obsmetrics.Metrics, billing *config.BillingConfigHolder) *Dispatcher {
	d := NewDispatcher(notifier, log, metrics, billing.Get().NotifyTimeout)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			d.Close()
			return nil
		},
	})
	return d
}

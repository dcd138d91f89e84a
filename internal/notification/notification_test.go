package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	obsmetrics "github.com/smallbiznis/rentledger/internal/observability/metrics"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fakeWriter struct {
	messages []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakePublisher struct {
	channel string
	payload []byte
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	p.payload, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func testEvent() Event {
	return Event{
		Type:       EventInvoicePaid,
		TenantID:   snowflake.ID(42),
		InvoiceID:  snowflake.ID(7),
		Amount:     1000,
		OccurredAt: time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC),
	}
}

func TestCompositeJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("smtp down")}

	err := Composite{ok, nil, failing}.Notify(context.Background(), testEvent())
	require.ErrorContains(t, err, "smtp down")
	require.Equal(t, 1, ok.count())
	require.Equal(t, 1, failing.count())
}

func TestKafkaNotifierKeysByTenant(t *testing.T) {
	writer := &fakeWriter{}
	n := &KafkaNotifier{writer: writer}

	require.NoError(t, n.Notify(context.Background(), testEvent()))
	require.Len(t, writer.messages, 1)
	require.Equal(t, "42", string(writer.messages[0].Key))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &decoded))
	require.Equal(t, "invoice.paid", decoded["type"])
	require.Equal(t, "7", decoded["invoice_id"])
	require.NotContains(t, decoded, "payment_id")
}

func TestRedisNotifierPublishes(t *testing.T) {
	pub := &fakePublisher{}
	n := &RedisNotifier{client: pub, channel: "rentledger.notifications"}

	require.NoError(t, n.Notify(context.Background(), testEvent()))
	require.Equal(t, "rentledger.notifications", pub.channel)
	require.Contains(t, string(pub.payload), `"tenant_id":"42"`)
}

func TestDispatcherLogsFailuresAndDrainsOnClose(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	failing := &recordingNotifier{err: errors.New("broker unavailable")}
	d := NewDispatcher(failing, zap.New(core), obsmetrics.NewNop(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, testEvent())
	cancel()
	d.Close()

	require.Equal(t, 1, failing.count())
	require.Equal(t, 1, logs.FilterMessage("notification delivery failed").Len())

	d.Dispatch(context.Background(), testEvent())
	require.Equal(t, 1, failing.count())
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(context.Background(), testEvent())
	d.Close()
}

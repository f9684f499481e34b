package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/dinein/internal/notify"
)

// --- Mock implementations ---

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu     sync.Mutex
	err    error
	calls  int
	sent   []published
	closed bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, Config{}, zap.NewNop())

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), notify.Event{
		Kind:        notify.OrderCreated,
		OrderID:     "o1",
		OrderNumber: "260314-AB12CD",
		TableID:     "t1",
		Status:      "PENDING",
		OccurredAt:  at,
	})
	require.NoError(t, err)

	require.Len(t, ch.sent, 1)
	got := ch.sent[0]
	assert.Equal(t, "dinein.events", got.exchange)
	assert.Equal(t, "order.created", got.key)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, at, got.msg.Timestamp)
	assert.NotEmpty(t, got.msg.MessageId)
	assert.Contains(t, string(got.msg.Body), `"order_number":"260314-AB12CD"`)
}

func TestPublisher_BreakerOpens(t *testing.T) {
	ch := &fakeChannel{err: errors.New("connection reset")}
	p := newPublisher(ch, Config{
		FailureThreshold: 2,
		OpenTimeout:      time.Hour,
	}, zap.NewNop())
	ctx := context.Background()
	e := notify.Event{Kind: notify.PaymentConfirmed, OrderID: "o1"}

	require.Error(t, p.Publish(ctx, e))
	require.Error(t, p.Publish(ctx, e))

	err := p.Publish(ctx, e)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, ch.calls, "open breaker must not reach the channel")
}

func TestPublisher_Close(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, Config{}, zap.NewNop())

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

// Package notify defines the events the ordering core emits for staff and
// customer screens. Delivery is left to a Publisher implementation.
package notify

import (
	"context"
	"time"

	"github.com/go-faster/jx"
)

// Kind names an event and doubles as its routing key.
type Kind string

const (
	OrderCreated       Kind = "order.created"
	OrderStatusChanged Kind = "order.status_changed"
	PaymentConfirmed   Kind = "payment.confirmed"
)

// Event is a notification about an order. Fields that do not apply to the
// kind are left empty.
type Event struct {
	Kind          Kind
	OrderID       string
	OrderNumber   string
	TableID       string
	Status        string
	PaymentStatus string
	PaymentID     string
	Amount        string
	OccurredAt    time.Time
}

// Encode writes the event as a JSON object.
func (e Event) Encode(enc *jx.Encoder) {
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("kind", func(enc *jx.Encoder) { enc.Str(string(e.Kind)) })
		enc.Field("order_id", func(enc *jx.Encoder) { enc.Str(e.OrderID) })
		optStr(enc, "order_number", e.OrderNumber)
		optStr(enc, "table_id", e.TableID)
		optStr(enc, "status", e.Status)
		optStr(enc, "payment_status", e.PaymentStatus)
		optStr(enc, "payment_id", e.PaymentID)
		optStr(enc, "amount", e.Amount)
		enc.Field("occurred_at", func(enc *jx.Encoder) { enc.Str(e.OccurredAt.UTC().Format(time.RFC3339Nano)) })
	})
}

// Bytes returns the JSON encoding of the event.
func (e Event) Bytes() []byte {
	var enc jx.Encoder
	e.Encode(&enc)
	return enc.Bytes()
}

func optStr(enc *jx.Encoder, name, v string) {
	if v == "" {
		return
	}
	enc.Field(name, func(enc *jx.Encoder) { enc.Str(v) })
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

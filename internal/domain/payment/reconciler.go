package payment

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/dinein/internal/domain/order"
	"github.com/xenking/dinein/internal/notify"
	"github.com/xenking/dinein/internal/vnpay"
)

// Outcome is the result of reconciling one gateway notification.
type Outcome string

const (
	OutcomeConfirmed        Outcome = "confirmed"
	OutcomeAlreadyConfirmed Outcome = "already_confirmed"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeInvalidAmount    Outcome = "invalid_amount"
	OutcomeDeclined         Outcome = "declined"
)

// SettlementConverter converts an order amount into the gateway's
// vnp_Amount units.
type SettlementConverter interface {
	SettlementAmount(amount decimal.Decimal) int64
}

// Reconciler applies verified gateway notifications to payments and orders.
// Repeated notifications for the same transaction leave the data as the
// first one did.
type Reconciler struct {
	tx      Transactor
	amounts SettlementConverter
	events  notify.Publisher
	now     func() time.Time
	group   singleflight.Group

	tracer   trace.Tracer
	outcomes metric.Int64Counter
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*reconcilerOptions)

type reconcilerOptions struct {
	events notify.Publisher
	now    func() time.Time
	tp     trace.TracerProvider
	mp     metric.MeterProvider
}

// WithEvents sets where payment events are sent after commit.
func WithEvents(p notify.Publisher) ReconcilerOption {
	return func(o *reconcilerOptions) { o.events = p }
}

// WithReconcilerClock sets the clock used when the gateway omits a pay date.
func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(o *reconcilerOptions) { o.now = now }
}

// WithTelemetry sets the tracer and meter providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) ReconcilerOption {
	return func(o *reconcilerOptions) {
		o.tp = tp
		o.mp = mp
	}
}

// NewReconciler creates a Reconciler.
func NewReconciler(tx Transactor, amounts SettlementConverter, opts ...ReconcilerOption) (*Reconciler, error) {
	o := reconcilerOptions{
		events: notify.Nop{},
		now:    time.Now,
		tp:     tracenoop.NewTracerProvider(),
		mp:     metricnoop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	outcomes, err := o.mp.Meter("dinein/payment").Int64Counter("dinein.payments.reconciled",
		metric.WithDescription("Gateway notifications by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "reconciled counter")
	}

	return &Reconciler{
		tx:       tx,
		amounts:  amounts,
		events:   o.events,
		now:      o.now,
		tracer:   o.tp.Tracer("dinein/payment"),
		outcomes: outcomes,
	}, nil
}

// Confirm reconciles a verified callback. Concurrent deliveries of the same
// notification share one execution.
func (r *Reconciler) Confirm(ctx context.Context, cb *vnpay.Callback) (Outcome, error) {
	key := strings.Join([]string{cb.TxnRef, cb.TransactionNo, cb.ResponseCode, cb.TransactionStatus}, "|")
	v, err, shared := r.group.Do(key, func() (any, error) {
		// Shared by every collapsed caller, so no single request may cancel it.
		return r.confirm(context.WithoutCancel(ctx), cb)
	})
	if shared {
		zctx.From(ctx).Debug("Duplicate notification collapsed", zap.String("txn_ref", cb.TxnRef))
	}
	if err != nil {
		return "", err
	}
	return v.(Outcome), nil
}

func (r *Reconciler) confirm(ctx context.Context, cb *vnpay.Callback) (_ Outcome, rerr error) {
	ctx, span := r.tracer.Start(ctx, "payment.Confirm", trace.WithAttributes(
		attribute.String("order.id", cb.TxnRef),
		attribute.String("vnpay.transaction_no", cb.TransactionNo),
		attribute.String("vnpay.response_code", cb.ResponseCode),
	))
	var outcome Outcome
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		} else {
			span.SetAttributes(attribute.String("payment.outcome", string(outcome)))
			r.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
		}
		span.End()
	}()

	lg := zctx.From(ctx).With(
		zap.String("order_id", cb.TxnRef),
		zap.String("transaction_no", cb.TransactionNo),
	)

	tx, err := r.tx.Begin(ctx)
	if err != nil {
		return "", errors.Wrap(err, "begin")
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			lg.Warn("Rollback failed", zap.Error(err))
		}
	}()

	o, err := tx.Orders().GetForUpdate(ctx, cb.TxnRef)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			outcome = OutcomeNotFound
			return outcome, nil
		}
		return "", errors.Wrap(err, "lock order")
	}

	p, err := tx.Payments().LatestForOrder(ctx, o.ID, MethodVNPay)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			outcome = OutcomeNotFound
			return outcome, nil
		}
		return "", errors.Wrap(err, "latest payment")
	}

	switch {
	case p.Status == StatusPaid || o.PaymentStatus == order.PaymentPaid:
		outcome = OutcomeAlreadyConfirmed
		return outcome, nil
	case !cb.Success:
		lg.Info("Payment declined by gateway",
			zap.String("response_code", cb.ResponseCode),
			zap.String("reason", cb.Message),
		)
		outcome = OutcomeDeclined
		return outcome, nil
	}

	if expected := r.amounts.SettlementAmount(p.Amount); expected != cb.Amount {
		lg.Warn("Payment amount mismatch",
			zap.Int64("expected", expected),
			zap.Int64("received", cb.Amount),
		)
		outcome = OutcomeInvalidAmount
		return outcome, nil
	}

	paidAt := cb.PayDate
	if paidAt.IsZero() {
		paidAt = r.now()
	}
	paidAt = paidAt.UTC()

	ok, err := tx.Payments().MarkPaid(ctx, p.ID, cb.TransactionNo, paidAt)
	if err != nil {
		return "", errors.Wrap(err, "mark payment paid")
	}
	if !ok {
		outcome = OutcomeAlreadyConfirmed
		return outcome, nil
	}
	if _, err := tx.Orders().SetPaymentStatus(ctx, o.ID, order.PaymentPending, order.PaymentPaid); err != nil {
		return "", errors.Wrap(err, "mark order paid")
	}

	if err := tx.Commit(ctx); err != nil {
		return "", errors.Wrap(err, "commit")
	}
	outcome = OutcomeConfirmed

	lg.Info("Payment confirmed",
		zap.String("payment_id", p.ID),
		zap.String("amount", p.Amount.StringFixed(2)),
	)
	if err := r.events.Publish(ctx, notify.Event{
		Kind:          notify.PaymentConfirmed,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		TableID:       o.TableID,
		Status:        string(o.Status),
		PaymentStatus: string(order.PaymentPaid),
		PaymentID:     p.ID,
		Amount:        p.Amount.StringFixed(2),
		OccurredAt:    paidAt,
	}); err != nil {
		lg.Warn("Publish event failed", zap.Error(err))
	}
	return outcome, nil
}

// IPNResult is the body the IPN endpoint returns to the gateway.
type IPNResult struct {
	RspCode string
	Message string
}

// IPNResponse maps a verification or reconciliation result to the gateway's
// IPN response codes. Only internal failures use 99, which makes the gateway
// retry. A signed callback that fails field validation is rejected with 97,
// since redelivering it cannot succeed.
func IPNResponse(outcome Outcome, err error) IPNResult {
	switch {
	case errors.Is(err, vnpay.ErrInvalidSignature):
		return IPNResult{RspCode: "97", Message: "Invalid signature"}
	case errors.Is(err, vnpay.ErrMalformed):
		return IPNResult{RspCode: "97", Message: "Invalid request"}
	case err != nil:
		return IPNResult{RspCode: "99", Message: "Unknown error"}
	}

	switch outcome {
	case OutcomeConfirmed, OutcomeDeclined:
		return IPNResult{RspCode: "00", Message: "Confirm Success"}
	case OutcomeNotFound:
		return IPNResult{RspCode: "01", Message: "Order not found"}
	case OutcomeAlreadyConfirmed:
		return IPNResult{RspCode: "02", Message: "Order already confirmed"}
	case OutcomeInvalidAmount:
		return IPNResult{RspCode: "04", Message: "Invalid amount"}
	default:
		return IPNResult{RspCode: "99", Message: "Unknown error"}
	}
}

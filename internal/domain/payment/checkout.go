package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/dinein/internal/domain/order"
	"github.com/xenking/dinein/internal/vnpay"
)

// Signer builds gateway redirect URLs.
type Signer interface {
	Sign(req vnpay.PaymentRequest) (string, error)
}

// CheckoutRequest starts a payment for an order.
type CheckoutRequest struct {
	OrderID  string
	Method   Method
	ClientIP string
	BankCode string
	Locale   string
}

// CheckoutResult is the pending payment and, for gateway methods, the URL
// the customer is redirected to.
type CheckoutResult struct {
	Payment     *Payment
	RedirectURL string
}

// Service creates and lists payments.
type Service struct {
	tx       Transactor
	payments Repository
	signer   Signer
	now      func() time.Time
}

// NewService creates a payment Service. Signer may be nil when gateway
// payments are disabled.
func NewService(tx Transactor, payments Repository, signer Signer) *Service {
	return &Service{
		tx:       tx,
		payments: payments,
		signer:   signer,
		now:      time.Now,
	}
}

// Checkout creates a PENDING payment for the order total. A PENDING payment
// of the same method and amount is reused, so repeated checkouts do not pile
// up records.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if !req.Method.Valid() || (req.Method == MethodVNPay && s.signer == nil) {
		return nil, errors.Wrapf(ErrUnsupportedMethod, "method %q", req.Method)
	}

	tx, err := s.tx.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			zctx.From(ctx).Warn("Rollback failed", zap.Error(err))
		}
	}()

	o, err := tx.Orders().GetForUpdate(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	switch {
	case o.PaymentStatus == order.PaymentPaid:
		return nil, ErrOrderPaid
	case o.Status == order.StatusCancelled:
		return nil, ErrOrderCancelled
	}

	p, err := tx.Payments().LatestForOrder(ctx, o.ID, req.Method)
	switch {
	case err == nil && p.Status == StatusPending && p.Amount.Equal(o.Total):
		// Reuse.
	case err == nil || errors.Is(err, ErrNotFound):
		p = &Payment{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			Amount:    o.Total,
			Method:    req.Method,
			Status:    StatusPending,
			CreatedAt: s.now().UTC(),
		}
		if err := tx.Payments().Create(ctx, p); err != nil {
			return nil, errors.Wrap(err, "create payment")
		}
	default:
		return nil, errors.Wrap(err, "latest payment")
	}

	res := &CheckoutResult{Payment: p}
	if req.Method == MethodVNPay {
		res.RedirectURL, err = s.signer.Sign(vnpay.PaymentRequest{
			TxnRef:    o.ID,
			Amount:    p.Amount,
			OrderInfo: "Payment for order " + o.OrderNumber,
			IPAddr:    req.ClientIP,
			BankCode:  req.BankCode,
			Locale:    req.Locale,
		})
		if err != nil {
			return nil, errors.Wrap(err, "sign redirect")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit")
	}

	zctx.From(ctx).Info("Checkout started",
		zap.String("order_id", o.ID),
		zap.String("payment_id", p.ID),
		zap.String("method", string(p.Method)),
	)
	return res, nil
}

// List returns the order's payments, newest first.
func (s *Service) List(ctx context.Context, orderID string) ([]Payment, error) {
	payments, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "list payments for order %s", orderID)
	}
	return payments, nil
}

// Package handler exposes the ordering and payment services over HTTP.
package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/dinein/internal/domain/auth"
	"github.com/xenking/dinein/internal/domain/order"
	"github.com/xenking/dinein/internal/domain/payment"
	"github.com/xenking/dinein/internal/vnpay"
)

// OrderService is the order use-case surface the handler needs.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	Get(ctx context.Context, orderID string) (*order.Order, error)
	ActiveOrderForTable(ctx context.Context, tableID string) (*order.Order, error)
	Transition(ctx context.Context, orderID string, to order.Status) (*order.Order, error)
}

// PaymentService starts and lists payments.
type PaymentService interface {
	Checkout(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutResult, error)
	List(ctx context.Context, orderID string) ([]payment.Payment, error)
}

// Reconciler applies verified gateway callbacks.
type Reconciler interface {
	Confirm(ctx context.Context, cb *vnpay.Callback) (payment.Outcome, error)
}

// CallbackVerifier checks gateway signatures over the raw query string.
type CallbackVerifier interface {
	VerifyQuery(rawQuery string) (*vnpay.Callback, error)
}

// Authenticator resolves staff API keys.
type Authenticator interface {
	Authenticate(ctx context.Context, rawKey, scope string) (*auth.APIKeyInfo, error)
}

// APIKeyHeader carries the staff API key.
const APIKeyHeader = "X-API-Key"

// Handler serves the public and staff API.
type Handler struct {
	orders     OrderService
	payments   PaymentService
	reconciler Reconciler
	verifier   CallbackVerifier
	auth       Authenticator
	validate   *validator.Validate
}

// Deps groups the handler's collaborators. Verifier and Reconciler may be
// nil when the payment gateway is not configured; the gateway routes are
// then not mounted.
type Deps struct {
	Orders     OrderService
	Payments   PaymentService
	Reconciler Reconciler
	Verifier   CallbackVerifier
	Auth       Authenticator
}

// New creates a Handler.
func New(d Deps) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		orders:     d.Orders,
		payments:   d.Payments,
		reconciler: d.Reconciler,
		verifier:   d.Verifier,
		auth:       d.Auth,
		validate:   v,
	}
}

// Routes mounts the API under /api.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/orders", h.placeOrder)
		r.Get("/orders/{orderID}", h.getOrder)
		r.Post("/orders/{orderID}/checkout", h.checkout)
		r.Get("/tables/{tableID}/active-order", h.activeOrder)

		if h.verifier != nil && h.reconciler != nil {
			r.Get("/payments/vnpay/return", h.vnpayReturn)
			r.Get("/payments/vnpay/ipn", h.vnpayIPN)
		}

		r.Route("/staff", func(r chi.Router) {
			r.With(h.requireScope(auth.ScopeOrdersWrite)).Post("/orders/{orderID}/status", h.setStatus)
			r.With(h.requireScope(auth.ScopePaymentsRead)).Get("/orders/{orderID}/payments", h.listPayments)
		})
	})
}

type staffKey struct{}

// requireScope rejects requests without a staff key granting scope.
func (h *Handler) requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := h.auth.Authenticate(r.Context(), r.Header.Get(APIKeyHeader), scope)
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), staffKey{}, info)))
		})
	}
}

func staffFromContext(ctx context.Context) *auth.APIKeyInfo {
	info, _ := ctx.Value(staffKey{}).(*auth.APIKeyInfo)
	return info
}

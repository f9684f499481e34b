package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/dinein/internal/domain/auth"
	"github.com/xenking/dinein/internal/domain/modifier"
	"github.com/xenking/dinein/internal/domain/order"
	"github.com/xenking/dinein/internal/domain/payment"
	"github.com/xenking/dinein/internal/domain/table"
	"github.com/xenking/dinein/pkg/httpmiddleware"
)

// badRequestError reports malformed input.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// statusOf maps domain errors to an HTTP status and public message.
func statusOf(err error) (int, string) {
	var (
		bad       *badRequestError
		invalid   validator.ValidationErrors
		qty       *order.InvalidQuantityError
		missing   *order.MenuItemNotFoundError
		unorder   *order.ItemUnavailableError
		badChange *order.TransitionError
	)
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest, bad.msg
	case errors.As(err, &invalid):
		fe := invalid[0]
		return http.StatusBadRequest, fmt.Sprintf("field %s failed %q validation", fe.Namespace(), fe.Tag())
	case errors.Is(err, order.ErrEmptyItems):
		return http.StatusBadRequest, err.Error()

	case errors.As(err, &qty):
		return http.StatusUnprocessableEntity, qty.Error()
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity, missing.Error()
	case errors.As(err, &unorder):
		return http.StatusUnprocessableEntity, unorder.Error()
	case errors.Is(err, modifier.ErrInvalidSelection):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, payment.ErrUnsupportedMethod):
		return http.StatusUnprocessableEntity, payment.ErrUnsupportedMethod.Error()

	case errors.Is(err, table.ErrNotFound):
		return http.StatusNotFound, table.ErrNotFound.Error()
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, order.ErrNotFound.Error()
	case errors.Is(err, order.ErrNoActiveOrder):
		return http.StatusNotFound, order.ErrNoActiveOrder.Error()

	case errors.Is(err, order.ErrTableInactive):
		return http.StatusConflict, order.ErrTableInactive.Error()
	case errors.As(err, &badChange):
		return http.StatusConflict, badChange.Error()
	case errors.Is(err, order.ErrStatusConflict):
		return http.StatusConflict, order.ErrStatusConflict.Error()
	case errors.Is(err, payment.ErrOrderPaid):
		return http.StatusConflict, payment.ErrOrderPaid.Error()
	case errors.Is(err, payment.ErrOrderCancelled):
		return http.StatusConflict, payment.ErrOrderCancelled.Error()

	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	}
	return http.StatusInternalServerError, "internal error"
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusOf(err)
	if code == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	httpmiddleware.WriteError(w, code, msg)
}

package handler

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/dinein/internal/domain/payment"
	"github.com/xenking/dinein/internal/vnpay"
)

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeBody(w, r, req.decode); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.payments.Checkout(r.Context(), payment.CheckoutRequest{
		OrderID:  chi.URLParam(r, "orderID"),
		Method:   payment.Method(req.Method),
		ClientIP: clientIP(r),
		BankCode: req.BankCode,
		Locale:   req.Locale,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("payment", func(e *jx.Encoder) { encodePayment(e, res.Payment) })
			optField(e, "redirectUrl", res.RedirectURL)
		})
	})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	list, err := h.payments.List(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range list {
				encodePayment(e, &list[i])
			}
		})
	})
}

// vnpayReturn handles the browser redirect back from the gateway. The raw
// query is verified as sent, then reconciled like an IPN so the customer
// sees the result even when the IPN is late.
func (h *Handler) vnpayReturn(w http.ResponseWriter, r *http.Request) {
	cb, err := h.verifier.VerifyQuery(r.URL.RawQuery)
	if err != nil {
		if errors.Is(err, vnpay.ErrInvalidSignature) || errors.Is(err, vnpay.ErrMalformed) {
			h.writeError(w, r, badRequest("%v", err))
			return
		}
		h.writeError(w, r, err)
		return
	}

	outcome, err := h.reconciler.Confirm(r.Context(), cb)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			field(e, "orderId", cb.TxnRef)
			e.Field("success", func(e *jx.Encoder) { e.Bool(cb.Success) })
			field(e, "responseCode", cb.ResponseCode)
			field(e, "message", cb.Message)
			moneyField(e, "amount", cb.DisplayAmount)
			optField(e, "transactionNo", cb.TransactionNo)
			field(e, "outcome", string(outcome))
		})
	})
}

// vnpayIPN answers the gateway's server-to-server notification. The body is
// always 200 with the gateway's RspCode contract.
func (h *Handler) vnpayIPN(w http.ResponseWriter, r *http.Request) {
	lg := zctx.From(r.Context())

	var outcome payment.Outcome
	cb, err := h.verifier.VerifyQuery(r.URL.RawQuery)
	if err == nil {
		outcome, err = h.reconciler.Confirm(r.Context(), cb)
	}
	res := payment.IPNResponse(outcome, err)

	switch {
	case errors.Is(err, vnpay.ErrInvalidSignature), errors.Is(err, vnpay.ErrMalformed):
		lg.Warn("IPN rejected", zap.Error(err))
	case err != nil:
		lg.Error("IPN failed", zap.Error(err))
	default:
		lg.Info("IPN handled",
			zap.String("order_id", cb.TxnRef),
			zap.String("outcome", string(outcome)),
			zap.String("rsp_code", res.RspCode),
		)
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			field(e, "RspCode", res.RspCode)
			field(e, "Message", res.Message)
		})
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

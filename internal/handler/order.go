package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/dinein/internal/domain/order"
)

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeBody(w, r, req.decode); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.writeError(w, r, err)
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), req.domain())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) activeOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.ActiveOrderForTable(r.Context(), chi.URLParam(r, "tableID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(w, r, req.decode); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.writeError(w, r, err)
		return
	}

	orderID := chi.URLParam(r, "orderID")
	if _, err := h.orders.Transition(r.Context(), orderID, order.Status(req.Status)); err != nil {
		h.writeError(w, r, err)
		return
	}
	if staff := staffFromContext(r.Context()); staff != nil {
		zctx.From(r.Context()).Info("Status changed by staff",
			zap.String("order_id", orderID),
			zap.String("key", staff.Name),
		)
	}

	// The transition returns only the header; reload with items.
	o, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

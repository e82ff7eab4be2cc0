package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_storefront/internal/shop"
	"github.com/go-chi/chi/v5"
)

type OrdersHandler struct {
	orders  Orders
	timeout time.Duration
}

func NewOrdersHandler(orders Orders, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
	}
}

type CheckoutRequestDTO struct {
	ShippingAddress string `json:"shipping_address"`
	PaymentMethod   string `json:"payment_method"`
	Note            string `json:"note"`
}

// POST /checkout
func (h *OrdersHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if h.orders == nil {
		respondError(w, r, http.StatusServiceUnavailable, "orders_unavailable", "orders are not configured")
		return
	}

	order, err := h.orders.Create(ctx, shop.Checkout{
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Note:            req.Note,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusCreated, order)
}

// GET /checkout/draft
func (h *OrdersHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		respondError(w, r, http.StatusServiceUnavailable, "orders_unavailable", "orders are not configured")
		return
	}

	draft, ok := h.orders.Draft(r.Context())
	if !ok {
		respondError(w, r, http.StatusNotFound, "no_draft", "no checkout draft")
		return
	}
	respondJSON(w, r, http.StatusOK, CheckoutRequestDTO{
		ShippingAddress: draft.ShippingAddress,
		PaymentMethod:   draft.PaymentMethod,
		Note:            draft.Note,
	})
}

// GET /orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if h.orders == nil {
		respondError(w, r, http.StatusServiceUnavailable, "orders_unavailable", "orders are not configured")
		return
	}

	orders, err := h.orders.List(ctx)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, orders)
}

// GET /orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if h.orders == nil {
		respondError(w, r, http.StatusServiceUnavailable, "orders_unavailable", "orders are not configured")
		return
	}

	order, err := h.orders.Get(ctx, chi.URLParam(r, "order_id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, order)
}

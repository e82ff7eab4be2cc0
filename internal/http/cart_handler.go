package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	cart    Cart
	catalog Catalog
	timeout time.Duration
}

func NewCartHandler(cart Cart, catalog Catalog, timeout time.Duration) *CartHandler {
	return &CartHandler{
		cart:    cart,
		catalog: catalog,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponseDTO struct {
	Items []domain.CartLine `json:"items"`
	CartSummary
}

func newCartResponse(lines domain.CartState) CartResponseDTO {
	items := []domain.CartLine(lines)
	if items == nil {
		items = []domain.CartLine{}
	}
	return CartResponseDTO{Items: items, CartSummary: summarize(lines)}
}

// GET /cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, newCartResponse(h.cart.Lines()))
}

// POST /cart/items
//
// The line is priced from the catalog, so the caller only names the variant.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	// Validate request
	if strings.TrimSpace(req.ProductID) == "" || strings.TrimSpace(req.VariantID) == "" {
		respondError(w, r, http.StatusBadRequest, "invalid_item", "product_id and variant_id are required")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, r, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}
	if h.catalog == nil {
		respondError(w, r, http.StatusServiceUnavailable, "catalog_unavailable", "catalog is not configured")
		return
	}

	product, err := h.catalog.Get(ctx, req.ProductID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	line, err := product.CartLine(req.VariantID, req.Quantity)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusCreated, newCartResponse(h.cart.AddItem(ctx, line)))
}

// PUT /cart/items/{variant_id}
//
// A quantity below one removes the line; an unknown variant is ignored.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	lines := h.cart.UpdateQuantity(r.Context(), chi.URLParam(r, "variant_id"), req.Quantity)
	respondJSON(w, r, http.StatusOK, newCartResponse(lines))
}

// DELETE /cart/items/{variant_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	lines := h.cart.RemoveItem(r.Context(), chi.URLParam(r, "variant_id"))
	respondJSON(w, r, http.StatusOK, newCartResponse(lines))
}

// DELETE /cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, newCartResponse(h.cart.ClearCart(r.Context())))
}

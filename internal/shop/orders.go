package shop

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/go_storefront/internal/cart"
	"github.com/fjod/go_storefront/internal/httpclient"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderItem struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	Subtotal  int64  `json:"subtotal"`
}

type Order struct {
	ID              string      `json:"id"`
	Status          string      `json:"status"`
	Items           []OrderItem `json:"items"`
	TotalAmount     int64       `json:"totalAmount"`
	ShippingAddress string      `json:"shippingAddress"`
	PaymentMethod   string      `json:"paymentMethod"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// Checkout carries what the user enters at checkout; the items come from the cart.
type Checkout struct {
	ShippingAddress string
	PaymentMethod   string
	Note            string
}

type createOrderRequest struct {
	IdempotencyKey  string      `json:"idempotencyKey"`
	Items           []OrderItem `json:"items"`
	TotalAmount     int64       `json:"totalAmount"`
	ShippingAddress string      `json:"shippingAddress"`
	PaymentMethod   string      `json:"paymentMethod,omitempty"`
	Note            string      `json:"note,omitempty"`
}

type Orders struct {
	http   *httpclient.Client
	cart   *cart.Store
	drafts *Drafts
	logger *zap.Logger
}

// NewOrders creates the order client. drafts may be nil.
func NewOrders(c *httpclient.Client, store *cart.Store, drafts *Drafts, logger *zap.Logger) *Orders {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orders{http: c, cart: store, drafts: drafts, logger: logger}
}

// Draft returns the checkout form of the last order that did not go through.
func (o *Orders) Draft(ctx context.Context) (Checkout, bool) {
	return o.drafts.Load(ctx)
}

// Create places an order for the current cart contents, priced at the
// captured unit prices. Once the backend accepts the order, the ordered
// quantities are deducted from the cart; anything added meanwhile stays.
func (o *Orders) Create(ctx context.Context, c Checkout) (*Order, error) {
	if strings.TrimSpace(c.ShippingAddress) == "" {
		return nil, ErrMissingAddress
	}

	lines := o.cart.Lines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	req := createOrderRequest{
		IdempotencyKey:  uuid.NewString(),
		Items:           make([]OrderItem, 0, len(lines)),
		TotalAmount:     lines.TotalValue(),
		ShippingAddress: strings.TrimSpace(c.ShippingAddress),
		PaymentMethod:   c.PaymentMethod,
		Note:            c.Note,
	}
	for _, l := range lines {
		req.Items = append(req.Items, OrderItem{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
		})
	}

	o.drafts.Save(ctx, Checkout{
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Note:            req.Note,
	})

	var resp envelope[*Order]
	err := o.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   "/orders",
		Body:   req,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("create order: %w: empty data", httpclient.ErrMalformedResponse)
	}

	o.cart.Deduct(ctx, lines)
	o.drafts.Discard(ctx)
	o.logger.Info("order created",
		zap.String("order_id", resp.Data.ID),
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.Int("items", len(req.Items)))
	return resp.Data, nil
}

func (o *Orders) List(ctx context.Context) ([]Order, error) {
	var resp envelope[[]Order]
	if err := o.http.Do(ctx, httpclient.Request{Path: "/orders"}, &resp); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if resp.Data == nil {
		return []Order{}, nil
	}
	return resp.Data, nil
}

func (o *Orders) Get(ctx context.Context, id string) (*Order, error) {
	var resp envelope[*Order]
	if err := o.http.Do(ctx, httpclient.Request{Path: "/orders/" + url.PathEscape(id)}, &resp); err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("get order %s: %w: empty data", id, httpclient.ErrMalformedResponse)
	}
	return resp.Data, nil
}

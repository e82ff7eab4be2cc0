// Package http is the loopback HTTP listener of the storefront client. It
// receives the OAuth redirect, exposes the local cart and checkout intents,
// and serves metrics.
package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/session"
	"github.com/fjod/go_storefront/internal/shop"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Session is the part of session.Manager the handlers use.
type Session interface {
	HandleOAuthCallback(ctx context.Context, u *url.URL) (*url.URL, error)
	GoogleLoginURL() string
	Logout(ctx context.Context)
	State() domain.SessionState
	User() *domain.User
	IsAuthenticated() bool
	Modal() session.Modal
}

type Cart interface {
	Lines() domain.CartState
	AddItem(ctx context.Context, line domain.CartLine) domain.CartState
	RemoveItem(ctx context.Context, variantID string) domain.CartState
	UpdateQuantity(ctx context.Context, variantID string, quantity int) domain.CartState
	ClearCart(ctx context.Context) domain.CartState
}

type Catalog interface {
	Get(ctx context.Context, id string) (*shop.Product, error)
}

type Orders interface {
	Create(ctx context.Context, c shop.Checkout) (*shop.Order, error)
	Draft(ctx context.Context) (shop.Checkout, bool)
	List(ctx context.Context) ([]shop.Order, error)
	Get(ctx context.Context, id string) (*shop.Order, error)
}

type Config struct {
	Addr string
	// RedirectPath is where the browser lands after a successful callback.
	RedirectPath   string
	RequestTimeout time.Duration
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
}

type Deps struct {
	Session Session
	Cart    Cart
	Catalog Catalog
	Orders  Orders
}

type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(cfg Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewRouter(cfg, deps, logger),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// ListenAndServe blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info("local server starting", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func NewRouter(cfg Config, deps Deps, logger *zap.Logger) http.Handler {
	if cfg.RedirectPath == "" {
		cfg.RedirectPath = "/"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	authHandler := NewAuthHandler(deps.Session, cfg.RedirectPath)
	cartHandler := NewCartHandler(deps.Cart, deps.Catalog, cfg.RequestTimeout)
	ordersHandler := NewOrdersHandler(deps.Orders, cfg.RequestTimeout)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/", statusHandler(deps.Session, deps.Cart))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google", authHandler.Google)
		r.Get("/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
	})

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", cartHandler.GetCart)
		r.Delete("/", cartHandler.ClearCart)
		r.Post("/items", cartHandler.AddItem)
		r.Put("/items/{variant_id}", cartHandler.UpdateQuantity)
		r.Delete("/items/{variant_id}", cartHandler.RemoveItem)
	})

	// checkout and order history need a signed-in user
	r.Group(func(r chi.Router) {
		r.Use(RequireSession(deps.Session))
		r.Post("/checkout", ordersHandler.Checkout)
		r.Get("/checkout/draft", ordersHandler.GetDraft)
		r.Get("/orders", ordersHandler.ListOrders)
		r.Get("/orders/{order_id}", ordersHandler.GetOrder)
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	return r
}

type StatusResponse struct {
	State string       `json:"state"`
	User  *domain.User `json:"user"`
	Modal string       `json:"modal"`
	Cart  CartSummary  `json:"cart"`
}

type CartSummary struct {
	Lines    int   `json:"lines"`
	Quantity int   `json:"quantity"`
	Value    int64 `json:"value"`
}

func summarize(lines domain.CartState) CartSummary {
	return CartSummary{
		Lines:    lines.LineCount(),
		Quantity: lines.TotalQuantity(),
		Value:    lines.TotalValue(),
	}
}

// GET /
func statusHandler(sess Session, cart Cart) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, StatusResponse{
			State: sess.State().String(),
			User:  sess.User(),
			Modal: string(sess.Modal()),
			Cart:  summarize(cart.Lines()),
		})
	}
}

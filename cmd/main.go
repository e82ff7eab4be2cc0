package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fjod/go_storefront/internal/auth"
	"github.com/fjod/go_storefront/internal/cart"
	"github.com/fjod/go_storefront/internal/config"
	"github.com/fjod/go_storefront/internal/events"
	h "github.com/fjod/go_storefront/internal/http"
	"github.com/fjod/go_storefront/internal/httpclient"
	"github.com/fjod/go_storefront/internal/metrics"
	"github.com/fjod/go_storefront/internal/session"
	"github.com/fjod/go_storefront/internal/shop"
	"github.com/fjod/go_storefront/internal/storage"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.LogDevelopment {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zc.Level = level
	return zc.Build()
}

func main() {
	configPath := flag.String("config", "config/storefront.yml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("failed to open storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer store.Close()

	var recorder metrics.Recorder = metrics.NewNoopRecorder()
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = metrics.NewPrometheusRecorder(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	cartStore := cart.NewStore(ctx, store, logger.Named("cart"), recorder)
	logger.Info("cart restored",
		zap.Int("lines", cartStore.LineCount()),
		zap.Int("quantity", cartStore.TotalQuantity()))

	api, err := httpclient.New(httpclient.Options{
		BaseURL:            cfg.APIBaseURL,
		Timeout:            cfg.APITimeout,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
		Logger:             logger.Named("http"),
	})
	if err != nil {
		logger.Fatal("failed to create api client", zap.Error(err))
	}

	bus := events.NewBus()
	creds := storage.NewCredentials(store, logger.Named("credentials"))
	creds.RegisterEphemeral(storage.KeyCheckoutDraft)
	authClient := auth.NewClient(api)
	refresher := session.NewRefresher(authClient, creds, bus, logger.Named("refresh"), recorder)

	api.SetTokenSource(creds)
	api.SetRefresher(refresher)

	manager := session.NewManager(ctx, session.Options{
		Config:      cfg.Session,
		API:         authClient,
		Credentials: creds,
		Refresher:   refresher,
		Bus:         bus,
		Notifier:    session.NewLogNotifier(logger),
		Logger:      logger.Named("session"),
		Metrics:     recorder,
	})
	manager.Start(ctx)
	defer manager.Close()

	logger.Info("session restored", zap.String("state", manager.State().String()))

	srv := h.NewServer(h.Config{
		Addr:           cfg.CallbackAddr,
		RedirectPath:   cfg.CallbackRedirectPath,
		RequestTimeout: cfg.APITimeout * 3,
		Metrics:        metricsHandler,
	}, h.Deps{
		Session: manager,
		Cart:    cartStore,
		Catalog: shop.NewProducts(api),
		Orders:  shop.NewOrders(api, cartStore, shop.NewDrafts(store, logger.Named("drafts")), logger.Named("orders")),
	}, logger.Named("local"))

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Fatal("local server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("local server forced to shutdown", zap.Error(err))
	}

	logger.Info("exited")
}

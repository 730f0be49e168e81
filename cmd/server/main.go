package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-be/internal/checkout"
	"storefront-be/internal/config"
	"storefront-be/internal/customer"
	"storefront-be/internal/db"
	"storefront-be/internal/discount"
	"storefront-be/internal/graph"
	"storefront-be/internal/logger"
	"storefront-be/internal/metrics"
	"storefront-be/internal/middleware"
	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/payment/admin"
	"storefront-be/internal/payment/registry"
	"storefront-be/internal/payment/webhook"
	"storefront-be/internal/product"
	"storefront-be/internal/store"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	initDBFunc      = db.InitDB
	startServerFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := initDBFunc(cfg)
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go payment.RunExpirySweeper(ctx, payment.NewRepository(database), cfg.ExpirySweep)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           newServer(cfg, database),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("server listening", zap.String("addr", srv.Addr))
		errCh <- startServerFunc(srv)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type handlers struct {
	graphql      http.Handler
	webhook      *webhook.Handler
	adminSession func(http.Handler) http.Handler
	shopper      func(http.Handler) http.Handler
	health       http.HandlerFunc
	metrics      http.Handler
	rateLimit    func(http.Handler) http.Handler
}

// newServer builds every repository and service over database and returns
// the routed handler.
func newServer(cfg *config.Config, database *sql.DB) http.Handler {
	storeRepo := store.NewRepository(database)
	productSvc := product.NewService(product.NewRepository(database))
	customerSvc := customer.NewService(customer.NewRepository(database))
	discountSvc := discount.NewService(discount.NewRepository(database))
	orderRepo := order.NewRepository(database)
	orderSvc := order.NewService(orderRepo)
	paymentRepo := payment.NewRepository(database)

	providers := registry.New(paymentRepo, &http.Client{Timeout: cfg.GatewayTimeout})

	checkoutSvc := checkout.NewService(checkout.Deps{
		Stores:    storeRepo,
		Providers: providers,
		Catalog:   productSvc,
		Customers: customerSvc,
		Discounts: discountSvc,
		Orders:    orderRepo,
		Ledger:    paymentRepo,
	}, checkout.Options{
		PlatformBaseURL:   cfg.PlatformBaseURL,
		APIBaseURL:        cfg.APIBaseURL,
		PendingPaymentTTL: cfg.PendingPaymentTTL,
		DefaultLocale:     cfg.DefaultLocale,
	})

	finalizer := webhook.NewFinalizer(webhook.Deps{
		Providers: providers,
		Ledger:    paymentRepo,
		Orders:    orderSvc,
		OrderRead: orderRepo,
		Inventory: productSvc,
		Credit:    customerSvc,
	})

	adminSvc := admin.NewService(admin.Deps{
		Providers: providers,
		Ledger:    paymentRepo,
		Orders:    orderRepo,
		Refunds:   orderSvc,
		Finalizer: finalizer,
	})

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	resolver := &graph.Resolver{
		CheckoutSvc: checkoutSvc,
		Stores:      storeRepo,
		Methods:     providers,
		AdminSvc:    adminSvc,
	}

	return setupRouter(handlers{
		graphql:      graph.NewHandler(graph.NewSchema(resolver)),
		webhook:      webhook.NewHandler(finalizer),
		adminSession: middleware.AdminSession(cfg.JWTSecret),
		shopper:      middleware.CustomerSession(cfg.CustomerJWTSecret),
		health:       healthHandler(database),
		metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		rateLimit:    middleware.RateLimitMiddleware(cfg.InternalSecretKey),
	})
}

func setupRouter(h handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(logger.RequestIDMiddleware, logger.LoggingMiddleware, middleware.Metrics, h.rateLimit)

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", h.metrics).Methods(http.MethodGet)

	// Gateways call back over plain HTTP; everything else goes through /query.
	r.Handle("/query", h.adminSession(h.shopper(h.graphql))).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/{provider}/{storeID}", h.webhook.Webhook).Methods(http.MethodPost)
	r.HandleFunc("/payments/{provider}/return/{storeID}", h.webhook.Redirect).Methods(http.MethodGet, http.MethodPost)

	return r
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := database.PingContext(ctx); err != nil {
			logger.FromCtx(r.Context()).Error("health check failed", zap.Error(err))
			http.Error(w, "DB unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

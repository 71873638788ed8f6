package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ecomcore/orderflow/internal/cancel"
	"github.com/ecomcore/orderflow/internal/checkout"
	"github.com/ecomcore/orderflow/internal/config"
	"github.com/ecomcore/orderflow/internal/coupon"
	"github.com/ecomcore/orderflow/internal/events"
	"github.com/ecomcore/orderflow/internal/httpx"
	"github.com/ecomcore/orderflow/internal/inventory"
	kafkax "github.com/ecomcore/orderflow/internal/kafka"
	"github.com/ecomcore/orderflow/internal/orders"
	"github.com/ecomcore/orderflow/internal/payment"
	"github.com/ecomcore/orderflow/internal/postgres"
	"github.com/ecomcore/orderflow/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer for order lifecycle notifications
	prod := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderEvents, 1024, logger)
	prod.Start(ctx)
	publisher := &events.Publisher{Producer: prod, Service: cfg.ServiceName}

	// Core services
	orderSvc := &orders.Service{
		Store: &orders.Repo{DB: db},
		Log:   logger.Named("orders"),
	}
	reservations := &inventory.Manager{
		Counter: &inventory.Counter{Redis: rdb},
		Store:   &inventory.Repo{DB: db},
		Log:     logger.Named("inventory"),
	}
	gateway := payment.NewGateway(payment.GatewayConfig{
		BaseURL:       cfg.GatewayBaseURL,
		APIKey:        cfg.GatewayAPIKey,
		WebhookSecret: cfg.GatewayWebhookSecret,
		Timeout:       cfg.GatewayTimeout,
	}, logger.Named("gateway"))
	couponSvc := &coupon.Service{
		Coupons: &coupon.Repo{DB: db},
		Orders:  orderSvc,
		Log:     logger.Named("coupon"),
	}
	checkoutSvc := &checkout.Service{
		Orders:       orderSvc,
		Reservations: reservations,
		Coupons:      couponSvc,
		Gateway:      gateway,
		Events:       publisher,
		Log:          logger.Named("checkout"),
	}
	verifier := &payment.Verifier{
		Orders:   orderSvc,
		Payments: &payment.Store{DB: db},
		Gateway:  gateway,
		Events:   publisher,
		Log:      logger.Named("verify"),
	}
	canceller := &cancel.Orchestrator{
		Orders:       orderSvc,
		Reservations: reservations,
		Gateway:      gateway,
		Coupons:      couponSvc,
		Events:       publisher,
		Log:          logger.Named("cancel"),
	}

	router := httpx.NewRouter(logger.Named("http"))
	h := &httpx.OrdersHandler{
		Checkout:     checkoutSvc,
		Verifier:     verifier,
		Canceller:    canceller,
		Orders:       orderSvc,
		Reservations: &inventory.Repo{DB: db},
		Redis:        rdb,
		Log:          logger.Named("http"),
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelFn()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exit", zap.Error(err))
	}

	logger.Info("shutting down")
	prod.Close()
	stop()
	prod.WaitClosed()
}

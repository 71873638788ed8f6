package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ecomcore/orderflow/internal/config"
	"github.com/ecomcore/orderflow/internal/events"
	kafkax "github.com/ecomcore/orderflow/internal/kafka"
	"github.com/ecomcore/orderflow/internal/notify"
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

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notify.Service{
		Redis:  rdb,
		Mailer: &notify.LogMailer{Log: logger.Named("mailer")},
		Log:    logger.Named("notify"),
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifyGroup, events.TopicOrderEvents, cfg.NotifyWorkers, logger.Named("consumer"))

	logger.Info("notifier consumer started",
		zap.String("group", cfg.NotifyGroup),
		zap.String("topic", events.TopicOrderEvents),
		zap.Int("workers", cfg.NotifyWorkers))
	if err := cons.Start(ctx, svc.Handle); err != nil {
		logger.Error("consumer exit", zap.Error(err))
	}
	logger.Info("shutting down")
}

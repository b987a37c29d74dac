package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"shopcore-be/internal/catalog"
	"shopcore-be/internal/checkout"
	"shopcore-be/internal/config"
	"shopcore-be/internal/db"
	"shopcore-be/internal/idempotency"
	"shopcore-be/internal/inventory"
	"shopcore-be/internal/logger"
	"shopcore-be/internal/order"
	"shopcore-be/internal/payment"
	"shopcore-be/internal/payment/webhook"
	"shopcore-be/internal/promotion"
	"shopcore-be/internal/transport"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.L()

	database := db.InitDB(cfg)
	defer database.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	catalogRepo := catalog.NewRepository(database)
	promoLookup := promotion.NewCachedLookup(promotion.NewRepository(database), redisClient)
	ledger := inventory.NewLedger(database)
	orderRepo := order.NewRepository(database)
	idemStore := idempotency.NewStore(database, cfg.IdempotencyTTL)
	intentRepo := payment.NewRepository(database)

	registry := payment.NewRegistry(
		payment.NewPayOSProvider(cfg.PayOSClientID, cfg.PayOSAPIKey, cfg.PayOSChecksumKey),
		payment.NewVNPayProvider(cfg.VNPayTmnCode, cfg.VNPayHashSecret),
		payment.NewMomoProvider(cfg.MomoPartnerCode, cfg.MomoAccessKey, cfg.MomoSecretKey,
			cfg.WebhookBaseURL+"/payments/webhook/momo"),
	)

	coordinator := payment.NewCoordinator(intentRepo, orderRepo, ledger, registry, cfg.PaymentWindow)
	checkoutSvc := checkout.NewService(
		idemStore, catalogRepo, promoLookup, ledger, orderRepo, coordinator,
		cfg.DefaultProvider, cfg.ReturnURL,
	)

	router := transport.NewRouter(
		transport.NewCheckoutHandler(checkoutSvc),
		transport.NewPaymentHandler(orderRepo, coordinator, cfg.DefaultProvider, cfg.ReturnURL),
		webhook.NewHandler(registry, intentRepo, coordinator, nil),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := payment.NewSweeper(coordinator, idemStore, cfg.SweepInterval)
	go sweeper.Run(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info("checkout server listening", zap.String("port", cfg.AppPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}

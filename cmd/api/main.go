package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/voltcart/voltcart-backend/api/routes"
	"github.com/voltcart/voltcart-backend/internal/domains/filestore"
	"github.com/voltcart/voltcart-backend/internal/domains/lecture"
	"github.com/voltcart/voltcart-backend/internal/domains/meetup"
	"github.com/voltcart/voltcart-backend/internal/domains/retail"
	"github.com/voltcart/voltcart-backend/internal/payments"
	"github.com/voltcart/voltcart-backend/internal/pricing"
	lightningwebhook "github.com/voltcart/voltcart-backend/internal/webhooks/lightning"
	"github.com/voltcart/voltcart-backend/pkg/config"
	"github.com/voltcart/voltcart-backend/pkg/db"
	"github.com/voltcart/voltcart-backend/pkg/lightning"
	"github.com/voltcart/voltcart-backend/pkg/logger"
	"github.com/voltcart/voltcart-backend/pkg/metrics"
	"github.com/voltcart/voltcart-backend/pkg/migrate"
	"github.com/voltcart/voltcart-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gateway, err := lightning.NewClient(context.Background(), cfg.Lightning, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create lightning client", err)
		os.Exit(1)
	}

	rates, err := pricing.StaticRateSourceFromStrings(cfg.Pricing.StaticRates)
	if err != nil {
		logg.Error(context.Background(), "failed to parse rate table", err)
		os.Exit(1)
	}
	converter := pricing.NewConverter(rates)

	adapters, err := buildAdapters(converter, cfg.Checkout)
	if err != nil {
		logg.Error(context.Background(), "failed to create domain adapters", err)
		os.Exit(1)
	}

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	paymentService, err := payments.NewService(
		dbClient,
		payments.NewRepository(dbClient.DB()),
		adapters,
		gateway,
		cfg.Checkout,
		logg,
		paymentMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	webhookService, err := lightningwebhook.NewService(paymentService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := lightningwebhook.NewIdempotencyGuard(redisClient, cfg.Checkout.WebhookIdempotencyTTL(), "lightning")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:           cfg,
			Logger:           logg,
			DB:               dbClient,
			Redis:            redisClient,
			Payments:         paymentService,
			WebhookService:   webhookService,
			WebhookGuard:     webhookGuard,
			IdempotencyStore: redisClient,
		}),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutting down api server")
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(timeoutCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server stopped")
}

func buildAdapters(converter *pricing.Converter, checkout config.CheckoutConfig) ([]payments.DomainAdapter, error) {
	retailAdapter, err := retail.NewAdapter(converter)
	if err != nil {
		return nil, err
	}
	meetupAdapter, err := meetup.NewAdapter(converter, checkout)
	if err != nil {
		return nil, err
	}
	lectureAdapter, err := lecture.NewAdapter(converter, checkout)
	if err != nil {
		return nil, err
	}
	fileAdapter, err := filestore.NewAdapter(converter, checkout)
	if err != nil {
		return nil, err
	}
	return []payments.DomainAdapter{retailAdapter, meetupAdapter, lectureAdapter, fileAdapter}, nil
}

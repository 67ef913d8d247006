package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/voltcart/voltcart-backend/internal/cron"
	"github.com/voltcart/voltcart-backend/internal/domains/filestore"
	"github.com/voltcart/voltcart-backend/internal/domains/lecture"
	"github.com/voltcart/voltcart-backend/internal/domains/meetup"
	"github.com/voltcart/voltcart-backend/internal/domains/retail"
	"github.com/voltcart/voltcart-backend/internal/payments"
	"github.com/voltcart/voltcart-backend/internal/pricing"
	"github.com/voltcart/voltcart-backend/pkg/config"
	"github.com/voltcart/voltcart-backend/pkg/db"
	"github.com/voltcart/voltcart-backend/pkg/lightning"
	"github.com/voltcart/voltcart-backend/pkg/logger"
	"github.com/voltcart/voltcart-backend/pkg/metrics"
	"github.com/voltcart/voltcart-backend/pkg/migrate"
	"github.com/voltcart/voltcart-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	retailAdapter, err := retail.NewAdapter(converter)
	if err != nil {
		logg.Error(context.Background(), "failed to create retail adapter", err)
		os.Exit(1)
	}
	meetupAdapter, err := meetup.NewAdapter(converter, cfg.Checkout)
	if err != nil {
		logg.Error(context.Background(), "failed to create meetup adapter", err)
		os.Exit(1)
	}
	lectureAdapter, err := lecture.NewAdapter(converter, cfg.Checkout)
	if err != nil {
		logg.Error(context.Background(), "failed to create lecture adapter", err)
		os.Exit(1)
	}
	fileAdapter, err := filestore.NewAdapter(converter, cfg.Checkout)
	if err != nil {
		logg.Error(context.Background(), "failed to create filestore adapter", err)
		os.Exit(1)
	}

	repo := payments.NewRepository(dbClient.DB())
	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	paymentService, err := payments.NewService(
		dbClient,
		repo,
		[]payments.DomainAdapter{retailAdapter, meetupAdapter, lectureAdapter, fileAdapter},
		gateway,
		cfg.Checkout,
		logg,
		paymentMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewReservationSweepJob(cron.ReservationSweepJobParams{
		Logger:   logg,
		DB:       dbClient,
		Sweepers: []cron.DomainSweeper{meetupAdapter, lectureAdapter, fileAdapter},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep job", err)
		os.Exit(1)
	}
	expiryJob, err := cron.NewTransactionExpiryJob(cron.TransactionExpiryJobParams{
		Logger:   logg,
		Repo:     repo,
		Payments: paymentService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create expiry job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, cfg.Cron.LockKey, cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweepJob, expiryJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

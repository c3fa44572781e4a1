package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/bus-seat-booking/internal/config"
	"github.com/iliyamo/bus-seat-booking/internal/database"
	"github.com/iliyamo/bus-seat-booking/internal/fare"
	"github.com/iliyamo/bus-seat-booking/internal/handler"
	"github.com/iliyamo/bus-seat-booking/internal/inventory"
	"github.com/iliyamo/bus-seat-booking/internal/queue"
	"github.com/iliyamo/bus-seat-booking/internal/repository"
	"github.com/iliyamo/bus-seat-booking/internal/router"
	"github.com/iliyamo/bus-seat-booking/internal/service"
	"github.com/iliyamo/bus-seat-booking/internal/wallet"
)

func main() {
	_ = godotenv.Load() // .env is optional
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel, "booking-api")

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBOpTimeout)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := database.Migrate(ctx, db)
		cancel()
		if err != nil {
			logger.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
	}

	rdb := config.NewRedisClient(logger)
	if rdb != nil {
		defer rdb.Close()
	}

	trips := repository.NewTripRepo(db)
	bookings := repository.NewBookingRepo(db)
	walletRepo := repository.NewWalletRepo(db)

	guard := inventory.NewGuard(trips, inventory.Options{
		MaxAttempts: cfg.ClaimAttempts,
		Backoff:     cfg.ClaimBackoff,
		OpTimeout:   cfg.DBOpTimeout,
	}, logger)
	ledger := wallet.NewLedger(walletRepo, cfg.DBOpTimeout, logger)

	publisher := queue.NewPublisher(cfg.AMQPURL, logger)
	defer publisher.Close()
	notifier := service.NewAsyncNotifier(publisher, cfg.NotifyBuffer, logger)

	svc := service.NewBookingService(trips, guard, bookings, ledger, fare.NewCalculator(cfg.Fare), notifier,
		service.Options{OpTimeout: cfg.DBOpTimeout}, logger)

	e := router.New(router.Deps{
		Bookings:  handler.NewBookingHandler(svc, logger),
		Wallet:    handler.NewWalletHandler(ledger, logger),
		Trips:     handler.NewTripHandler(trips, guard, logger),
		DB:        db,
		Redis:     rdb,
		JWTSecret: cfg.JWTSecret,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		IdemTTL:   cfg.IdemTTL,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go notifier.Run(ctx)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("stopped")
}

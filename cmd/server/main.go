package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Freeeeeet/tutor_scheduler/internal/app"
	"github.com/Freeeeeet/tutor_scheduler/internal/auth"
	"github.com/Freeeeeet/tutor_scheduler/internal/cache"
	"github.com/Freeeeeet/tutor_scheduler/internal/clock"
	"github.com/Freeeeeet/tutor_scheduler/internal/config"
	"github.com/Freeeeeet/tutor_scheduler/internal/events"
	"github.com/Freeeeeet/tutor_scheduler/internal/handler"
	"github.com/Freeeeeet/tutor_scheduler/internal/notify"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository/postgres"
	"github.com/Freeeeeet/tutor_scheduler/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return err
	}

	migrator, err := app.NewMigrator(pool, cfg.MigrationsDir, logger)
	if err != nil {
		return err
	}
	if err := migrator.Run(ctx); err != nil {
		return err
	}
	_ = migrator.Close()

	db := postgres.NewDB(pool)
	var profiles repository.ProfileRepository = postgres.NewProfileRepository(pool)
	if cfg.RedisEnabled() {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warn("Redis unavailable, timezone cache disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			profiles = cache.NewTimezoneCache(profiles, rdb, cfg.TimezoneCacheTTL, logger)
		}
	}

	notifier, closeNotifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	clk := clock.System{}
	availability := service.NewAvailabilityService(db, profiles, clk, cfg.DefaultTimezone, logger)
	ledger := service.NewCreditLedger(db, clk, logger)
	bookings := service.NewBookingService(db, availability, ledger, clk, notifier, logger)

	scheduler := app.NewScheduler(bookings, cfg.CompletionBatch, logger)
	if err := scheduler.Start(ctx, cfg.CompletionCron); err != nil {
		return err
	}
	defer scheduler.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	handler.New(availability, ledger, bookings, auth.NewTokens(cfg.JWTSecret), logger).Register(e)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildNotifier собирает цепочку уведомлений из того, что настроено
func buildNotifier(cfg *config.Config, logger *zap.Logger) (notify.Notifier, func(), error) {
	sinks := notify.Multi{notify.Log{Logger: logger}}
	closers := []func(){}

	if cfg.RabbitEnabled() {
		publisher, err := events.NewPublisher(cfg.RabbitURL, cfg.BookingExchange, logger)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, publisher)
		closers = append(closers, func() { _ = publisher.Close() })
	}

	if cfg.TelegramEnabled() {
		b, err := notify.NewTelegramBot(cfg.TelegramToken)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, notify.NewTelegram(b, cfg.TelegramChatID))
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return notify.NewAsync(sinks, 5*time.Second, logger), closeAll, nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"storagebooking/internal/api"
	"storagebooking/internal/clock"
	"storagebooking/internal/config"
	"storagebooking/internal/database"
	"storagebooking/internal/domain"
	"storagebooking/internal/events"
	"storagebooking/internal/logging"
	"storagebooking/internal/metrics"
	"storagebooking/internal/payment"
	"storagebooking/internal/pricing"
	"storagebooking/internal/refund"
	"storagebooking/internal/repository"
	"storagebooking/internal/service"
	"storagebooking/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	clk := clock.NewRealClock()

	db, err := initDatabase(cfg, clk, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var background sync.WaitGroup

	bus := events.NewEventBus()
	bus.Subscribe(events.AllEvents, func(e *events.Event) error {
		metrics.IncBookingEvent(e.Type)
		return nil
	})

	bookings, payments, outbox, err := initServices(cfg, db, redisClient, bus, clk, logger)
	if err != nil {
		return err
	}
	if outbox != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			outbox.Start(ctx)
		}()
	}

	backup := database.NewBackupService(db, cfg.Database.Path, cfg.Backup, logging.Component(logger, "backup"))
	background.Add(1)
	go func() {
		defer background.Done()
		backup.Start(ctx)
	}()

	grpcServer, err := api.NewGRPCServer(&cfg.API, db, logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}
	go grpcServer.WatchHealth(ctx, 0)

	httpServer := api.NewHTTPServer(cfg.API, bookings, payments, db, cfg.Location(), logger)

	startMetrics(ctx, cfg, logger)

	err = startServers(ctx, grpcServer, httpServer, cfg, logger)
	background.Wait()
	return err
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func initDatabase(cfg *config.Config, clk clock.Clock, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger,
		database.WithBusyTimeout(cfg.Database.BusyTimeoutMs),
		database.WithMaxTxRetries(cfg.Database.MaxTxRetries),
		database.WithClock(clk),
	)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	if cfg.InventoryPath == "" {
		return db, nil
	}
	inv, err := config.LoadInventory(cfg.InventoryPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ImportInventory(ctx, inv); err != nil {
		db.Close()
		return nil, fmt.Errorf("import inventory: %w", err)
	}
	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = repository.Close(redisClient)
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initServices(
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	bus *events.EventBus,
	clk clock.Clock,
	logger *zerolog.Logger,
) (*service.BookingService, *service.PaymentService, *worker.OutboxWorker, error) {
	var guard domain.GuardStore = repository.NewMemoryGuardStore(clk)
	if redisClient != nil {
		guard = repository.NewFailoverGuardStore(repository.NewRedisGuardStore(redisClient), guard, logger)
	}

	taxRate := pricing.DefaultTaxRate
	if cfg.Pricing.TaxRate != nil {
		taxRate = decimal.NewFromFloat(*cfg.Pricing.TaxRate)
	}
	engine := pricing.NewEngine(db, db, clk, pricing.Options{TaxRate: taxRate, Location: cfg.Location()}, logger)

	bookings := service.NewBookingService(db, engine, nil, guard, bus, clk, service.BookingOptions{
		MinDuration:      cfg.Booking.MinDuration,
		MaxAdvanceDays:   cfg.Booking.MaxAdvanceDays,
		CheckInWindow:    cfg.Booking.CheckInWindow,
		CodeAttempts:     cfg.Booking.CodeAttempts,
		CreateRateLimit:  cfg.Booking.CreateRateLimit,
		CreateRateWindow: cfg.Booking.CreateRateWindow,
	}, logger)

	tiers := make([]refund.Tier, 0, len(cfg.Refund.Tiers))
	for _, t := range cfg.Refund.Tiers {
		tiers = append(tiers, refund.Tier{MinNotice: t.MinNotice, Percent: t.Percent})
	}
	policy, err := refund.NewPolicy(tiers)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("refund policy: %w", err)
	}

	var gateway payment.Gateway
	if cfg.Payment.Mode == "sandbox" {
		gateway = payment.NewSandboxGateway(logger)
	}

	var (
		outbox     *worker.OutboxWorker
		dispatcher domain.TaskDispatcher
	)
	if cfg.Worker.Enabled {
		outbox = worker.NewOutboxWorker(db, redisClient, clk, worker.Options{
			Retry: worker.RetryPolicy{
				MaxRetries:    cfg.Worker.MaxRetries,
				InitialDelay:  cfg.Worker.InitialDelay,
				MaxDelay:      cfg.Worker.MaxDelay,
				BackoffFactor: cfg.Worker.BackoffFactor,
			},
			PollInterval: cfg.Worker.PollInterval,
			BatchSize:    cfg.Worker.BatchSize,
		}, logger)
		dispatcher = outbox
	} else {
		logger.Warn().Msg("outbox worker disabled, refunds stay pending")
	}

	payments := service.NewPaymentService(bookings, policy, gateway, guard, dispatcher, service.PaymentOptions{
		Enabled:        cfg.Payment.Enabled,
		WebhookLockTTL: cfg.Booking.WebhookLockTTL,
	}, logger)
	if outbox != nil {
		outbox.Register(worker.TaskRefund, payments.HandleRefundTask)
	}

	return bookings, payments, outbox, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if err := grpcServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcServer.Addr()).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

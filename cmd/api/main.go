package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/vantutran2k1/haulbook/internal/adapter/events"
	"github.com/vantutran2k1/haulbook/internal/adapter/handler"
	"github.com/vantutran2k1/haulbook/internal/adapter/invoice"
	"github.com/vantutran2k1/haulbook/internal/adapter/logger"
	"github.com/vantutran2k1/haulbook/internal/adapter/storage/memory"
	"github.com/vantutran2k1/haulbook/internal/adapter/storage/postgres"
	redisstore "github.com/vantutran2k1/haulbook/internal/adapter/storage/redis"
	ws "github.com/vantutran2k1/haulbook/internal/adapter/websocket"
	"github.com/vantutran2k1/haulbook/internal/config"
	"github.com/vantutran2k1/haulbook/internal/core/port"
	"github.com/vantutran2k1/haulbook/internal/core/service"
	"github.com/vantutran2k1/haulbook/internal/core/service/pricing"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLogger, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg, appLogger)
	defer closeStore()

	geo, closeGeo := openGeo(ctx, cfg, appLogger)
	defer closeGeo()

	bus, closeBus := openBus(cfg, appLogger)
	defer closeBus()

	gate := service.NewGate()
	dispatchSvc := service.NewDispatchService(store, geo, gate, bus, service.DispatchConfig{
		RadiusKm:           cfg.MatchRadiusKm,
		LocationStaleAfter: cfg.LocationStaleAfter,
		StoreTimeout:       cfg.StoreTimeout,
	}, appLogger)

	hub := ws.NewHub(dispatchSvc, appLogger)
	go hub.Run(ctx)

	publisher := events.Multi{hub, bus}
	dispatchSvc.SetEvents(publisher)

	renderer := invoice.NewPDFRenderer(cfg.InvoiceCompany)
	if cfg.InvoiceFontPath != "" {
		if err := renderer.LoadFont(cfg.InvoiceFontPath); err != nil {
			appLogger.Fatal("cannot load invoice font", zap.Error(err))
		}
	}

	bookingSvc := service.NewBookingService(
		store,
		gate,
		pricing.NewStandardStrategy(cfg.BaseFare, cfg.PerKmRate),
		pricing.NewPercentCommission(cfg.CommissionPercent, cfg.MinCommission, cfg.MaxCommission),
		publisher,
		renderer,
		service.BookingConfig{CancellationFee: cfg.CancellationFee, StoreTimeout: cfg.StoreTimeout},
		appLogger,
	)
	reportSvc := service.NewReportService(store, gate, cfg.StoreTimeout, appLogger)
	authSvc := service.NewAuthService(store, gate, cfg.JWTSecret, cfg.JWTTTL, cfg.StoreTimeout, appLogger)

	if cfg.AdminPhone != "" {
		if err := authSvc.EnsureAdmin(ctx, cfg.AdminPhone, cfg.AdminPassword); err != nil {
			appLogger.Fatal("cannot bootstrap admin", zap.Error(err))
		}
	}

	origins := cfg.AllowedOrigins()
	r := handler.NewRouter(handler.RouterConfig{Env: cfg.Env, AllowedOrigins: origins}, handler.Handlers{
		Auth:    handler.NewAuthHandler(authSvc),
		Booking: handler.NewBookingHandler(bookingSvc, dispatchSvc),
		Driver:  handler.NewDriverHandler(dispatchSvc),
		Admin:   handler.NewAdminHandler(bookingSvc, dispatchSvc, reportSvc, authSvc),
		WS:      handler.NewWSHandler(authSvc, hub, handler.OriginChecker(origins), appLogger),
	}, handler.AuthMiddleware(authSvc), appLogger)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("server forced to shutdown", zap.Error(err))
	}

	appLogger.Info("server exiting")
}

func openStore(ctx context.Context, cfg config.Config, appLogger *zap.Logger) (port.Store, func()) {
	if cfg.Local() {
		appLogger.Warn("DB_URL not set, using in-memory store")
		return memory.NewStore(), func() {}
	}

	dbConfig, err := pgxpool.ParseConfig(cfg.DBUrl)
	if err != nil {
		appLogger.Fatal("unable to parse db config", zap.Error(err))
	}

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		appLogger.Fatal("unable to create db pool", zap.Error(err))
	}

	if err := pool.Ping(ctx); err != nil {
		appLogger.Fatal("cannot connect to db", zap.Error(err))
	}

	store := postgres.NewStore(pool)
	if err := store.Migrate(ctx); err != nil {
		appLogger.Fatal("cannot apply schema", zap.Error(err))
	}

	appLogger.Info("connected to database via pgxpool")
	return store, pool.Close
}

func openGeo(ctx context.Context, cfg config.Config, appLogger *zap.Logger) (port.LocationIndex, func()) {
	if cfg.RedisURL == "" {
		appLogger.Warn("REDIS_URL not set, using in-memory location index")
		return memory.NewGeoIndex(), func() {}
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		appLogger.Fatal("unable to parse redis url", zap.Error(err))
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		appLogger.Fatal("cannot connect to redis", zap.Error(err))
	}

	appLogger.Info("connected to redis")
	return redisstore.NewGeoStore(client), func() { client.Close() }
}

func openBus(cfg config.Config, appLogger *zap.Logger) (port.EventPublisher, func()) {
	var (
		bus    port.EventPublisher
		closer io.Closer
	)
	switch cfg.EventBus {
	case "kafka":
		p := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		bus, closer = p, p
	case "rabbitmq":
		p, err := events.DialRabbit(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			appLogger.Fatal("cannot connect to rabbitmq", zap.Error(err))
		}
		bus, closer = p, p
	default:
		return events.Nop{}, func() {}
	}

	appLogger.Info("publishing booking events", zap.String("bus", cfg.EventBus))
	return bus, func() {
		if err := closer.Close(); err != nil {
			appLogger.Warn("closing event bus", zap.Error(err))
		}
	}
}

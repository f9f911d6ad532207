package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"campspots/internal/api"
	"campspots/internal/broker"
	"campspots/internal/config"
	"campspots/internal/database"
	"campspots/internal/domain"
	"campspots/internal/events"
	"campspots/internal/gateway"
	"campspots/internal/google"
	"campspots/internal/logging"
	"campspots/internal/metrics"
	"campspots/internal/models"
	"campspots/internal/notify"
	"campspots/internal/repository"
	"campspots/internal/service"
	"campspots/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

const healthProbeInterval = 15 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Args[2:]); err != nil {
			log.Fatalf("hash-password: %v", err)
		}
		return
	}
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

// hashPassword prints the bcrypt hash to paste into admin.password_hash.
func hashPassword(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: api hash-password <password>")
	}
	hash, err := api.HashPassword(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	catalog := service.NewCatalogService(db, &logger)
	if err := seedCatalog(ctx, catalog, &logger); err != nil {
		return err
	}

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	idempotency := initIdempotency(redisClient, &logger)

	gw := initGateway(cfg, &logger)

	var syncWorker domain.SyncWorker
	if sheetsService := initGoogleSheets(ctx, cfg, &logger); sheetsService != nil {
		go sheetsService.StartCacheRefresh(ctx, 30*time.Minute)
		retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
		sheetsWorker := worker.NewSheetsWorker(db, sheetsService, redisClient, retryPolicy, &logger)
		go sheetsWorker.Start(ctx)
		syncWorker = sheetsWorker
	}

	eventBus := events.NewEventBus()
	eventBus.OnError(func(ev *events.Event, err error) {
		logger.Warn().Err(err).Str("event", ev.Type).Msg("event handler failed")
	})
	startEventSinks(ctx, cfg, eventBus, &logger)

	booking := service.NewBookingService(db, gw, eventBus, syncWorker, service.BookingOptionsFromConfig(cfg), &logger)
	go worker.NewExpirySweeper(booking, cfg.Booking.SweepInterval, &logger).Start(ctx)

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg, api.Deps{
		Booking:     booking,
		Catalog:     catalog,
		Idempotency: idempotency,
		Store:       db,
	}, &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		checks := map[string]api.HealthCheck{"store": db.PingContext}
		if redisClient != nil {
			checks["redis"] = func(ctx context.Context) error { return repository.Ping(ctx, redisClient) }
		}
		grpcServer, err = api.NewGRPCServer(&cfg.API, checks, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go grpcServer.WatchHealth(ctx, healthProbeInterval)
	}

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg.Database.Path != ":memory:" {
		dir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error().Err(err).Str("dir", dir).Msg("create database directory")
			return err
		}
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Str("dir", cfg.Exports.Path).Msg("create exports directory")
		return err
	}
	return nil
}

// seedCatalog loads CAMPGROUNDS_PATH into an empty catalog. A missing file is
// not an error; campgrounds can be created through the operator API.
func seedCatalog(ctx context.Context, catalog *service.CatalogService, logger *zerolog.Logger) error {
	path := os.Getenv("CAMPGROUNDS_PATH")
	if path == "" {
		path = "configs/campgrounds.yaml"
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info().Str("campgrounds_path", path).Msg("no seed catalog found")
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Str("campgrounds_path", path).Msg("read campgrounds")
		return err
	}

	var seedFile struct {
		Campgrounds []models.CampgroundSeed `yaml:"campgrounds"`
	}
	if err := yaml.Unmarshal(data, &seedFile); err != nil {
		logger.Error().Err(err).Str("campgrounds_path", path).Msg("parse campgrounds")
		return err
	}

	if _, err := catalog.SeedCatalog(ctx, seedFile.Campgrounds); err != nil {
		logger.Error().Err(err).Msg("seed catalog")
		return err
	}
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, idempotency keys fall back to memory until it recovers")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return client
}

func initIdempotency(client *redis.Client, logger *zerolog.Logger) domain.IdempotencyStore {
	fallback := repository.NewMemoryIdempotencyStore()
	if client == nil {
		return fallback
	}
	return repository.NewFailoverIdempotencyStore(repository.NewRedisIdempotencyStore(client), fallback, logger)
}

func initGateway(cfg *config.Config, logger *zerolog.Logger) domain.PaymentGateway {
	gwLogger := logging.Component(logger, "gateway")

	var gw domain.PaymentGateway
	switch cfg.Payment.Provider {
	case config.PaymentProviderStripe:
		gw = gateway.NewStripe(cfg.Payment, nil)
	default:
		logger.Warn().Msg("sandbox payment provider in use, no real payments are taken")
		gw = gateway.NewSandbox(false)
	}
	return gateway.NewInstrumented(gw, gwLogger)
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.ReservationSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.ReservationSpreadSheetID, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		email, _ := google.ServiceAccountEmail(cfg.Google.GoogleCredentialsFile)
		logger.Warn().Err(err).Str("share_with", email).Msg("google sheets connection test failed, continuing without sheets")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

// startEventSinks attaches the optional Telegram and RabbitMQ consumers to the bus.
func startEventSinks(ctx context.Context, cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) {
	if cfg.Telegram.BotToken != "" && len(cfg.Telegram.ChatIDs) > 0 {
		botAPI, err := notify.NewBotAPI(cfg.Telegram.BotToken, cfg.Telegram.Debug)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, staff notifications disabled")
		} else {
			notifier := notify.NewTelegramNotifier(botAPI, cfg.Telegram.ChatIDs, logger)
			notifier.Subscribe(bus)
			go notifier.Start(ctx)
		}
	}

	if cfg.RabbitMQ.URL != "" {
		publisher := broker.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, logger)
		publisher.Subscribe(bus)
		go publisher.Start(ctx)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			errCh <- err
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return runErr
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
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

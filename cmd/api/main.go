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
	"syscall"
	"time"

	"smarterdog/internal/api"
	"smarterdog/internal/config"
	"smarterdog/internal/database"
	"smarterdog/internal/domain"
	"smarterdog/internal/events"
	"smarterdog/internal/google"
	"smarterdog/internal/logging"
	"smarterdog/internal/metrics"
	"smarterdog/internal/models"
	"smarterdog/internal/notify"
	"smarterdog/internal/repository"
	"smarterdog/internal/service"
	"smarterdog/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("init database")
		return err
	}
	defer db.Close()

	catalog := service.NewCatalogService(db, cfg.Business.DepositPercentage, logging.Component(logger, "catalog"))
	if err := seedCatalog(ctx, cfg, catalog, logger); err != nil {
		return err
	}

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	sessions := initSessions(cfg, redisClient, logger)

	startMetrics(ctx, cfg, logger)

	eventBus := events.NewEventBus()
	eventBus.OnError(func(event *events.Event, err error) {
		logger.Error().Err(err).Str("event", event.Type).Msg("event handler failed")
	})
	startNotifier(ctx, cfg, eventBus, logger)

	sheetsWorker := startSheetsWorker(ctx, cfg, db, redisClient, logger)

	go database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup")).Start(ctx)

	availability, err := service.NewAvailabilityService(db, cfg.Business, logging.Component(logger, "availability"))
	if err != nil {
		return fmt.Errorf("availability: %w", err)
	}
	appointments, err := service.NewAppointmentService(db, eventBus, sheetsWorker, cfg.Business, logging.Component(logger, "appointments"))
	if err != nil {
		return fmt.Errorf("appointments: %w", err)
	}
	bookings := service.NewBookingService(
		sessions, sessions, db, catalog, availability, eventBus, sheetsWorker,
		service.BookingOptionsFromConfig(cfg), logging.Component(logger, "booking"),
	)

	readiness := map[string]api.ReadinessCheck{"database": db.Ping}
	if redisClient != nil {
		readiness["redis"] = func(ctx context.Context) error { return repository.Ping(ctx, redisClient) }
	}

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Catalog:      catalog,
		Availability: availability,
		Bookings:     bookings,
		Appointments: appointments,
		Readiness:    readiness,
	}, logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
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

	baseLogger, closer, err := logging.New(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

type catalogFile struct {
	Services []models.Service `yaml:"services"`
	Groomers []models.Groomer `yaml:"groomers"`
}

// seedCatalog upserts services and groomers from the seed file. A missing
// file leaves the catalog as it is in the datastore.
func seedCatalog(ctx context.Context, cfg *config.Config, catalog *service.CatalogService, logger *zerolog.Logger) error {
	path := os.Getenv("CATALOG_PATH")
	if path == "" {
		path = cfg.Catalog.SeedFile
	}
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("catalog_path", path).Msg("catalog seed file not found, using datastore catalog")
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Str("catalog_path", path).Msg("read catalog")
		return err
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		logger.Error().Err(err).Str("catalog_path", path).Msg("parse catalog")
		return err
	}

	if err := catalog.Seed(ctx, file.Services, file.Groomers); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	logger.Info().Int("services", len(file.Services)).Int("groomers", len(file.Groomers)).Msg("catalog seeded")
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		// Клиент остается: failover вернется к Redis, когда он поднимется.
		logger.Warn().Err(err).Msg("redis connection failed, sessions start in memory")
		return redisClient
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initSessions(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) repository.SessionStore {
	memory := repository.NewMemoryStateRepository(cfg.Wizard.SessionTTL())
	if redisClient == nil {
		logger.Warn().Msg("redis is not configured, wizard sessions are kept in memory")
		return memory
	}
	return repository.NewFailoverStateRepository(
		repository.NewRedisStateRepository(redisClient, cfg.Wizard.SessionTTL()),
		memory,
		logging.Component(logger, "sessions"),
	)
}

func startNotifier(ctx context.Context, cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) {
	if !cfg.Telegram.Enabled {
		return
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without staff notifications")
		return
	}
	bot.Debug = cfg.Telegram.Debug

	notifier := notify.NewStaffNotifier(bot, cfg.Telegram.StaffChatIDs, logging.Component(logger, "notify"))
	notifier.Subscribe(bus)
	go notifier.Start(ctx)
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram staff notifications enabled")
}

// startSheetsWorker returns nil when the ledger sheet is not configured.
func startSheetsWorker(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) domain.SyncWorker {
	if !cfg.Google.Enabled() {
		return nil
	}

	sheet, err := google.NewAppointmentsSheet(ctx, cfg.Google.CredentialsFile, cfg.Google.AppointmentsSpreadsheetID,
		cfg.Google.SheetName, logging.Component(logger, "sheets"))
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheet.TestConnection(ctx); err != nil {
		ev := logger.Warn().Err(err)
		if email, eerr := google.ServiceAccountEmail(cfg.Google.CredentialsFile); eerr == nil && email != "" {
			ev = ev.Str("share_with", email)
		}
		ev.Msg("google sheets connection test failed")
	}
	if cfg.Google.ResyncOnStart {
		resyncSheet(ctx, cfg, db, sheet, logger)
	} else if err := sheet.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
	}
	if failed, err := db.GetFailedSyncTasks(ctx); err != nil {
		logger.Warn().Err(err).Msg("list failed sync tasks")
	} else if len(failed) > 0 {
		logger.Warn().Int("count", len(failed)).Msg("sheet sync tasks failed permanently, run a resync")
	}

	w := worker.NewSheetsWorker(db, sheet, redisClient, worker.RetryPolicy{}, logging.Component(logger, "sheets-worker"))
	go w.Start(ctx)
	logger.Info().Str("sheet", cfg.Google.SheetName).Msg("google sheets sync enabled")
	return w
}

// resyncSheet rewrites the ledger with appointments from the last 30 days
// through the end of the booking horizon.
func resyncSheet(ctx context.Context, cfg *config.Config, db *database.DB, sheet *google.AppointmentsSheet, logger *zerolog.Logger) {
	now := time.Now()
	from := now.AddDate(0, 0, -30).Format(models.DateLayout)
	to := now.AddDate(0, 0, cfg.Business.BookingHorizonDays).Format(models.DateLayout)

	appts, err := db.ListAppointmentsInRange(ctx, from, to)
	if err != nil {
		logger.Warn().Err(err).Msg("load appointments for sheet resync")
		return
	}
	if err := sheet.ReplaceAppointments(ctx, appts); err != nil {
		logger.Warn().Err(err).Msg("google sheets resync failed")
		return
	}
	logger.Info().Int("appointments", len(appts)).Str("from", from).Str("to", to).Msg("google sheet resynced")
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
	errCh := make(chan error, 2)

	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.SetServing(false)
		grpcServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

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

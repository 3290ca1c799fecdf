package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/mnbf9rca/family-foqos-sub001/internal/adapters/cache"
	eventadapter "github.com/mnbf9rca/family-foqos-sub001/internal/adapters/events"
	grpcadapter "github.com/mnbf9rca/family-foqos-sub001/internal/adapters/grpc"
	httpadapter "github.com/mnbf9rca/family-foqos-sub001/internal/adapters/http"
	"github.com/mnbf9rca/family-foqos-sub001/internal/adapters/memory"
	"github.com/mnbf9rca/family-foqos-sub001/internal/adapters/postgres"
	"github.com/mnbf9rca/family-foqos-sub001/internal/application"
	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
	"github.com/mnbf9rca/family-foqos-sub001/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	worker     *eventadapter.ConsumerWorker
	consumer   ports.EventConsumer
	closers    []io.Closer
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)

	rt := &Runtime{cfg: cfg, logger: logger}

	recordStore, legacyStore, deviceState, err := rt.buildStores(ctx)
	if err != nil {
		rt.closeAll()
		return nil, err
	}

	deviceID, err := deviceState.DeviceID(ctx)
	if err != nil {
		rt.closeAll()
		return nil, fmt.Errorf("device identity: %w", err)
	}
	logger = logger.With("device_id", deviceID)

	publisher := ports.EventPublisher(eventadapter.NewLoggingPublisher(logger))
	consumer := ports.EventConsumer(eventadapter.NewNoopConsumer())
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, pubErr := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if pubErr != nil {
			logger.WarnContext(ctx, "kafka publisher disabled, using logging publisher", "error", pubErr)
		} else {
			publisher = kafkaPublisher
			rt.closers = append(rt.closers, kafkaPublisher)
		}
		kafkaConsumer, conErr := eventadapter.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup+"-"+deviceID, cfg.KafkaTopic, logger)
		if conErr != nil {
			logger.WarnContext(ctx, "kafka consumer disabled, relying on pull sweep", "error", conErr)
		} else {
			consumer = kafkaConsumer
			rt.closers = append(rt.closers, kafkaConsumer)
		}
	}
	rt.consumer = consumer

	syncService := application.NewSyncService(application.Dependencies{
		Config: application.Config{
			ServiceName:        cfg.ServiceID,
			MaxStartRetries:    cfg.MaxStartRetries,
			MigrationBatchSize: cfg.MigrationBatchSize,
		},
		DeviceID:  deviceID,
		Store:     recordStore,
		Publisher: publisher,
		Logger:    logger,
	})
	coordinator := application.NewCoordinator(syncService, newLoggingListener(logger), logger)
	migration := application.NewMigrationRunner(legacyStore, recordStore, deviceState, logger, cfg.MigrationBatchSize)

	report, ran, err := migration.RunIfNeeded(ctx, cfg.AccountID)
	if err != nil {
		rt.closeAll()
		return nil, fmt.Errorf("legacy migration: %w", err)
	}
	if ran {
		logger.InfoContext(ctx, "legacy migration ran",
			"profiles", report.ProfilesSeen, "created", report.RecordsCreated,
			"skipped", report.RecordsSkipped, "deleted", report.LegacyDeleted, "errors", report.Errors)
	}

	handler := httpadapter.NewHandler(syncService, coordinator, migration)
	rt.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	rt.grpcServer = grpc.NewServer()
	grpcadapter.Register(rt.grpcServer, grpcadapter.NewSessionSyncInternalServer(syncService))
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		rt.closeAll()
		return nil, err
	}
	rt.grpcLis = lis

	rt.worker = eventadapter.NewConsumerWorker(consumer, recordStore, coordinator, logger, cfg.ConsumerPollInterval, cfg.ReconcileSweepInterval)
	rt.logger = logger
	return rt, nil
}

func (r *Runtime) buildStores(ctx context.Context) (ports.RecordStore, ports.LegacyStore, ports.DeviceStateStore, error) {
	var deviceState ports.DeviceStateStore
	if r.cfg.RedisURL != "" {
		redisClient, err := cache.Connect(ctx, r.cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		r.closers = append(r.closers, redisClient)
		deviceState = cache.NewRedisDeviceStateStore(redisClient)

		if r.cfg.RecordBackend == "redis" {
			// Legacy rows never lived in redis, so there is nothing to page.
			return cache.NewRedisRecordStore(redisClient), memory.NewLegacyStore(), deviceState, nil
		}
	} else {
		deviceState = memory.NewDeviceStateStore()
	}

	switch r.cfg.RecordBackend {
	case "postgres":
		db, err := postgres.Connect(ctx, r.cfg.DatabaseURL, r.cfg.MaxDBConns)
		if err != nil {
			return nil, nil, nil, err
		}
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			r.closers = append(r.closers, sqlDB)
		}
		if err := postgres.RunMigrations(ctx, db); err != nil {
			return nil, nil, nil, err
		}
		return postgres.NewRecordStore(db), postgres.NewLegacyStore(db), deviceState, nil
	case "memory":
		return memory.NewRecordStore(), memory.NewLegacyStore(), deviceState, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown record backend %q", r.cfg.RecordBackend)
	}
}

// RunAPI serves until the context is cancelled or a termination signal
// arrives, then shuts everything down in dependency order.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	go r.worker.Run(workerCtx)

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server listening", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server listening", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("http shutdown", "error", err)
	}
	r.grpcServer.GracefulStop()
	cancelWorker()
	r.closeAll()
	return runErr
}

func (r *Runtime) closeAll() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i].Close()
	}
	r.closers = nil
}

// loggingListener is the default enforcement callback; real deployments swap
// in the restriction engine here.
type loggingListener struct {
	logger *slog.Logger
}

func newLoggingListener(logger *slog.Logger) *loggingListener {
	return &loggingListener{logger: logger}
}

func (l *loggingListener) SessionStarted(profileID string, rec domain.SessionRecord) {
	l.logger.Info("local session started", "profile_id", profileID,
		"origin_device", rec.SessionOriginDevice, "sequence", rec.SequenceNumber)
}

func (l *loggingListener) SessionStopped(profileID string, rec domain.SessionRecord) {
	l.logger.Info("local session stopped", "profile_id", profileID, "sequence", rec.SequenceNumber)
}

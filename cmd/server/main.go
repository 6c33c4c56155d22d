package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/storeflow/internal/adapter/filesystem"
	"github.com/rl1809/storeflow/internal/adapter/handler"
	"github.com/rl1809/storeflow/internal/adapter/imagegen"
	"github.com/rl1809/storeflow/internal/adapter/messaging"
	"github.com/rl1809/storeflow/internal/adapter/spreadsheet"
	"github.com/rl1809/storeflow/internal/adapter/storage"
	"github.com/rl1809/storeflow/internal/config"
	"github.com/rl1809/storeflow/internal/core/domain"
	"github.com/rl1809/storeflow/internal/core/service"
	"github.com/rl1809/storeflow/internal/logger"
	"github.com/rl1809/storeflow/internal/port"
)

const publishTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.ServiceName, cfg.IsDevelopment())
	logger.SetLevel(cfg.LogLevel)

	logger.Logger.Info().
		Str("environment", cfg.Environment).
		Str("slot_backend", cfg.SlotBackend).
		Str("log_level", cfg.LogLevel).
		Msg("Starting storeflow")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durable slots
	slots, closeSlots, err := openSlots(ctx, cfg)
	if err != nil {
		logger.Logger.Fatal().Err(err).Str("backend", cfg.SlotBackend).Msg("Failed to open slot storage")
	}
	defer closeSlots()

	store := service.NewStateStore(slots)
	inventory := service.NewInventory(store, service.InventoryConfig{
		QueueSize: cfg.QueueSize,
		Retention: cfg.Retention,
	})
	if err := inventory.Load(ctx); err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to load inventory state")
	}

	// Services
	files := filesystem.NewLocalFileAccess(cfg.WorkbookDir, cfg.FileSyncEnabled)
	syncService := service.NewSyncService(inventory, spreadsheet.NewExcelCodec(), files, nil)
	authService := service.NewAuthService(store, service.AuthConfig{
		EmailDomain:    cfg.AuthEmailDomain,
		Code:           cfg.AuthCode,
		ResendCooldown: cfg.ResendCooldown,
		SessionSecret:  cfg.SessionSecret,
		SessionTTL:     cfg.SessionTTL,
	}, nil)

	var editor port.ImageEditor
	if cfg.GeminiAPIKey != "" {
		gemini, err := imagegen.NewGeminiEditor(ctx, imagegen.GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to create image editor")
		}
		editor = gemini
	} else {
		logger.Logger.Warn().Msg("GEMINI_API_KEY not set, image editing disabled")
	}
	imageStudio := service.NewImageStudio(editor)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := handler.NewMetrics(registry)
	st := inventory.Stats(0)
	metrics.SetInventory(st.TotalProducts, st.LowStockCount)

	// Movement publisher
	var publisher port.MovementPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logger.Logger.Fatal().Err(err).Strs("brokers", cfg.KafkaBrokers).Msg("Failed to create Kafka publisher")
		}
		publisher = kafka
	} else {
		logger.Logger.Info().Msg("KAFKA_BROKERS not set, movement events are only logged")
	}

	// Start worker pool
	var wg sync.WaitGroup
	if queue := inventory.Movements(); queue != nil {
		for i := 0; i < cfg.WorkerCount; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				workerLoop(id, queue, publisher, metrics)
			}(i)
		}
		logger.Logger.Info().Int("workers", cfg.WorkerCount).Int("queue_size", cfg.QueueSize).Msg("Movement workers started")
	}

	// gRPC server
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		metrics.MetricsInterceptor,
		handler.AuthInterceptor(authService),
	))
	handler.RegisterInventoryServiceServer(grpcServer, handler.NewGRPCHandler(inventory, metrics))

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Logger.Fatal().Err(err).Str("port", cfg.GRPCPort).Msg("Failed to listen")
	}

	// HTTP server
	router := mux.NewRouter()
	handler.NewHTTPHandler(inventory, syncService, authService, imageStudio, metrics).RegisterRoutes(router)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: true,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Logger.Info().Str("port", cfg.GRPCPort).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Logger.Info().Str("port", cfg.HTTPPort).Str("metrics_endpoint", "/metrics").Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Logger.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error().Err(err).Msg("HTTP shutdown failed")
		}
		logger.Logger.Info().Msg("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Logger.Info().Msg("gRPC server stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Logger.Error().Err(err).Msg("Server error")
	}

	// Close movement queue and wait for workers
	inventory.Close()
	wg.Wait()
	logger.Logger.Info().Msg("Workers stopped")

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Logger.Error().Err(err).Msg("Failed to close Kafka publisher")
		}
	}
}

// openSlots connects the configured slot backend and returns a closer for it.
func openSlots(ctx context.Context, cfg config.Config) (port.SlotRepository, func(), error) {
	switch cfg.SlotBackend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 20,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to redis")
		return storage.NewRedisAdapter(rdb), func() { rdb.Close() }, nil

	case config.BackendMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping mysql: %w", err)
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Logger.Info().Msg("Connected to mysql")
		return adapter, func() { db.Close() }, nil

	default:
		adapter, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Logger.Info().Str("path", cfg.SQLitePath).Msg("Opened sqlite slot store")
		return adapter, func() {
			if err := adapter.Close(); err != nil {
				logger.Logger.Error().Err(err).Msg("Failed to close sqlite")
			}
		}, nil
	}
}

// workerLoop publishes movement events until the queue is closed.
func workerLoop(id int, queue <-chan domain.Transaction, publisher port.MovementPublisher, metrics *handler.Metrics) {
	for tx := range queue {
		if publisher == nil {
			logger.Logger.Debug().
				Int("worker", id).
				Str("transaction_id", tx.ID).
				Str("type", string(tx.Type)).
				Int("quantity", tx.Quantity).
				Msg("Movement recorded")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := publisher.PublishMovement(ctx, tx)
		cancel()

		metrics.RecordPublish(err)
		if err != nil {
			logger.Logger.Error().Err(err).Int("worker", id).Str("transaction_id", tx.ID).Msg("Failed to publish movement")
			continue
		}
		logger.Logger.Debug().Int("worker", id).Str("transaction_id", tx.ID).Msg("Movement published")
	}
}

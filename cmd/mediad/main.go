package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/fieldmedia/internal/common"
	"github.com/joseph-ayodele/fieldmedia/internal/events"
	"github.com/joseph-ayodele/fieldmedia/internal/objstore"
	"github.com/joseph-ayodele/fieldmedia/internal/processor"
	"github.com/joseph-ayodele/fieldmedia/internal/report"
	repo "github.com/joseph-ayodele/fieldmedia/internal/repository"
	"github.com/joseph-ayodele/fieldmedia/internal/sanitize"
	"github.com/joseph-ayodele/fieldmedia/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.ValidateServer(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if cfg.Database.MigrateOnStart {
		if err := db.Migrate(ctx, logger); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	store, err := openStore(ctx, cfg.ObjectStore, logger)
	if err != nil {
		logger.Error("failed to open object store", "backend", cfg.ObjectStore.Backend, "error", err)
		os.Exit(1)
	}

	mediaRepo := repo.NewMediaRepository(db.SQL, logger)

	procOpts := []processor.Option{processor.WithThumbnailURLTTL(cfg.Processor.ThumbnailURLTTL)}
	if cfg.Processor.Resample {
		procOpts = append(procOpts, processor.WithResampler(processor.ImagingResampler{}))
	}
	proc := processor.New(store, mediaRepo, logger, procOpts...)

	sanOpts := []sanitize.Option{sanitize.WithURLTTLs(cfg.Sanitizer.VariantURLTTL, cfg.Sanitizer.DownloadURLTTL)}
	if cfg.Redis.URL != "" {
		rdb, err := sanitize.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Warn("redis unavailable, variant index disabled", "error", err)
		} else {
			defer rdb.Close()
			sanOpts = append(sanOpts, sanitize.WithIndex(sanitize.NewRedisIndex(rdb, cfg.Sanitizer.VariantURLTTL)))
		}
	}
	san := sanitize.New(store, mediaRepo, logger, sanOpts...)

	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka, logger)
		consumer := events.NewKafkaConsumer(cfg.Kafka, proc, cfg.Processor.Timeout, logger)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("process consumer exited", "error", err)
			}
		}()
		logger.Info("process requests go through kafka", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	} else {
		publisher = events.NewWorkerPublisher(proc, logger,
			events.WithWorkers(cfg.Processor.Workers),
			events.WithProcessTimeout(cfg.Processor.Timeout))
		logger.Info("no kafka brokers configured, processing in-process", "workers", cfg.Processor.Workers)
	}

	httpServer := server.New(server.Deps{
		Media:     mediaRepo,
		Store:     store,
		Bucket:    cfg.ObjectStore.Bucket,
		Publisher: publisher,
		Processor: proc,
		Sanitizer: san,
		Reports:   report.NewService(mediaRepo, logger),
		Health: func(ctx context.Context) error {
			return db.HealthCheck(ctx, 0)
		},
	}, cfg.Server, logger)

	// gRPC health service for orchestrators that check health over gRPC
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC serve error", "error", err)
		}
	}()

	go func() {
		if err := httpServer.Listen(cfg.Server.HTTPAddr); err != nil {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := publisher.Close(); err != nil {
		logger.Error("publisher close failed", "error", err)
	}
	grpcServer.GracefulStop()
}

func openStore(ctx context.Context, cfg common.ObjectStoreConfig, logger *slog.Logger) (objstore.Store, error) {
	switch cfg.Backend {
	case "gcs":
		return objstore.NewGCSStore(ctx)
	default:
		return objstore.NewMinIOStore(ctx, cfg, logger)
	}
}

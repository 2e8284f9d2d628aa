package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	verificationv1 "github.com/PaulBabatuyi/lizexpress-verify/api/verification/v1"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/config"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/database"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/httpapi"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/middleware"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/observability"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/service"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/storage"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.InitLogger("verification-server", cfg.IsDev())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.ServerConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting verification server", cfg.LogFields()...)

	tp, err := observability.InitTracerProvider(ctx, os.Stdout, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		observability.ShutdownTracerProvider(shutdownCtx, tp, logger)
	}()

	metrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	db, err := database.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	store, err := storage.NewFilesystemStorage(cfg.StorageDir)
	if err != nil {
		return err
	}
	urls, err := storage.NewPublicURLs(cfg.PublicBaseURL)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// The limiter fails open, so uploads keep working without Redis.
		logger.Warn("redis unavailable, upload rate limiting disabled", zap.Error(err))
	}

	auth := middleware.NewAPIKeyAuth(cfg.APIKeys)
	limiter := middleware.NewRateLimiter(rdb, cfg.UploadRateLimit, cfg.UploadRateWindow, "verify:uploads", logger)
	serverMetrics := metrics.GetServerMetrics()

	stack := (&middleware.Stack{}).
		Unary(
			serverMetrics.UnaryServerInterceptor(),
			middleware.UnaryLoggingInterceptor(logger),
			auth.Unary(),
		).
		Stream(
			serverMetrics.StreamServerInterceptor(),
			middleware.StreamLoggingInterceptor(logger),
			auth.Stream(),
			limiter.StreamInterceptor(verificationv1.VerificationService_UploadEvidence_FullMethodName),
		)

	opts := append(stack.ServerOptions(),
		observability.ServerTracingOption(tp),
		grpc.MaxRecvMsgSize(4*1024*1024),
	)
	grpcServer := grpc.NewServer(opts...)

	svc := service.NewVerificationServer(store, db, urls, metrics, service.Options{
		MaxConcurrentUploads: cfg.MaxConcurrentUploads,
		Logger:               logger,
	})
	verificationv1.RegisterVerificationServiceServer(grpcServer, svc)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("verification.v1.VerificationService", healthpb.HealthCheckResponse_SERVING)
	serverMetrics.InitializeMetrics(grpcServer)

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Config{
			Files:   store,
			DB:      db,
			Metrics: metrics.GetHandler(),
			Logger:  logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	processor := worker.NewProcessingWorker(&worker.WorkerConfig{
		DB:           db,
		Store:        store,
		URLs:         urls,
		Metrics:      metrics,
		Logger:       logger,
		PollInterval: cfg.WorkerPollInterval,
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return processor.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down servers")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown error", zap.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}

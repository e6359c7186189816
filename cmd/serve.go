package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"filecollector/internal/auth"
	"filecollector/internal/behavior"
	"filecollector/internal/config"
	"filecollector/internal/handler"
	"filecollector/internal/lock"
	"filecollector/internal/metrics"
	"filecollector/internal/repository"
	"filecollector/internal/service"
	"filecollector/internal/service/s3"
	"filecollector/internal/zipjob"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, gRPC health service and background workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func newLocker(cfg config.LockConfig) (lock.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		log.Info().Msg("redis not configured, using in-process delete lock")
		return lock.NewLocalLocker(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().Str("addr", cfg.RedisAddr).Msg("using redis delete lock")
	return lock.NewRedisLocker(client, cfg.TTL), func() { client.Close() }, nil
}

func serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connectWithRetry(&cfg.Database, 5, 5*time.Second)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := runMigrations(&cfg.Database); err != nil {
		return err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	storage, err := s3.NewClient(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	locker, closeLocker, err := newLocker(cfg.Lock)
	if err != nil {
		return err
	}
	defer closeLocker()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Репозитории
	files := repository.NewSubmissionRepository(db)
	tasks := repository.NewTaskRepository(db)
	people := repository.NewPersonRepository(db)
	zipJobs := repository.NewZipJobRepository(db)
	behaviors := repository.NewBehaviorRepository(db)

	// Фоновые исполнители
	recorder := behavior.NewRecorder(behaviors, cfg.BehaviorBuffer, m)
	compressor := zipjob.NewService(zipJobs, storage, m, zipjob.Config{
		Workers:   cfg.Archive.Workers,
		QueueSize: cfg.Archive.QueueSize,
	})

	// Сервисы
	prefix := cfg.Storage.ObjectPrefix()
	tempPrefix := cfg.TempPrefix()
	resolver := service.NewResolver(storage, prefix)
	guard := service.NewDeletionGuard(files, storage, locker, resolver, m)
	archive := service.NewArchiveBuilder(storage, compressor, m, cfg.Archive.LinkTTL, tempPrefix, cfg.Archive.Encoding)
	fileService := service.NewFileService(
		files,
		tasks,
		people,
		storage,
		resolver,
		guard,
		archive,
		service.NewArchiveTracker(compressor),
		recorder,
		service.FileServiceConfig{
			ObjectPrefix:   prefix,
			TempPrefix:     tempPrefix,
			LinkTTL:        cfg.Archive.LinkTTL,
			DefaultTaskKey: cfg.DefaultTaskKey,
		},
	)
	peopleService := service.NewPeopleService(people, tasks)
	cleanup := service.NewCleanupService(storage, zipJobs, tempPrefix, cfg.Archive.Retention)

	// Хендлеры
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	router := handler.NewRouter(
		handler.NewFileHandler(fileService, verifier),
		handler.NewPeopleHandler(peopleService, verifier),
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC: %w", err)
	}

	var wg sync.WaitGroup
	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			log.Debug().Str("component", name).Msg("stopped")
		}()
	}

	run("behavior recorder", func() { recorder.Run(ctx) })
	run("zip workers", func() { compressor.Run(ctx) })
	run("temp cleanup", func() { runCleanup(ctx, cleanup, cfg.Archive.CleanupInterval) })

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("port", cfg.Server.GRPCPort).Msg("starting gRPC server")
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down servers")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("server failed, shutting down")
		stop()
	}

	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}
	grpcServer.GracefulStop()

	wg.Wait()
	log.Info().Msg("server exited properly")
	return serveErr
}

func runCleanup(ctx context.Context, cleanup *service.CleanupService, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := cleanup.AutoCleanup(ctx); err != nil {
				log.Error().Err(err).Msg("temp package cleanup failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"foreman/internal/adapters/database"
	"foreman/internal/adapters/events"
	httpAdapter "foreman/internal/adapters/http"
	"foreman/internal/adapters/memory"
	"foreman/internal/adapters/schema"
	"foreman/internal/app"
	"foreman/internal/config"
	"foreman/internal/ports"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("api server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher, err := openPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	dispatch := app.NewDispatchService(store, schema.NewValidator(),
		app.WithLogger(logger),
		app.WithEventPublisher(publisher),
		app.WithDefaultHeartbeatTimeout(cfg.HeartbeatTimeout),
	)

	gin.SetMode(gin.ReleaseMode)
	router := httpAdapter.NewRouter(dispatch,
		httpAdapter.WithLogger(logger),
		httpAdapter.WithHealthCheck(store.Ping),
		httpAdapter.WithMetadata(httpAdapter.Metadata{Name: "foreman", Version: version}),
	)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpAdapter.MethodOverride(router),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting api server",
			slog.String("port", cfg.Port),
			slog.String("storage", cfg.StorageBackend),
			slog.String("events", cfg.EventsBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", slog.Any("error", err))
	}
	logger.Info("server exited")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.Store, error) {
	if cfg.StorageBackend == config.StorageMemory {
		logger.Warn("using in-memory storage; state is lost on restart")
		return memory.NewStore(), nil
	}

	connStr := cfg.Database.ConnString()
	if err := database.Migrate(ctx, connStr); err != nil {
		return nil, err
	}
	pool, err := database.NewPostgresPool(ctx, connStr, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	return database.NewPostgresStore(pool), nil
}

func openPublisher(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.EventPublisher, error) {
	var publishers events.Multi

	if cfg.EventsBackend == config.EventsRedis || cfg.EventsBackend == config.EventsBoth {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis: ping %s: %w", cfg.Redis.Addr, err)
		}
		var opts []events.RedisOption
		if cfg.Redis.Prefix != "" {
			opts = append(opts, events.WithPrefix(cfg.Redis.Prefix))
		}
		publishers = append(publishers, events.NewRedisPublisher(client, opts...))
	}

	if cfg.EventsBackend == config.EventsSQS || cfg.EventsBackend == config.EventsBoth {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.SQS.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.SQS.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			publishers.Close()
			return nil, fmt.Errorf("aws: load config: %w", err)
		}
		publishers = append(publishers, events.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.SQS.QueueURL))
	}

	switch len(publishers) {
	case 0:
		return events.Noop{}, nil
	case 1:
		return publishers[0], nil
	}
	logger.Debug("fanning events out", slog.Int("publishers", len(publishers)))
	return publishers, nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"foreman/internal/app"
	"foreman/internal/client"
	"foreman/internal/config"
	"foreman/internal/domain"
)

// The worker heartbeats the configured services and runs their jobs. Its
// built-in handler echoes a job's parameters back as results, which is
// enough to drive a service whose result schema accepts its parameters.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker exited")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if len(cfg.Worker.ServiceIDs) == 0 {
		return fmt.Errorf("no services configured; set WORKER_SERVICE_IDS")
	}

	api := client.New(cfg.Worker.APIURL)
	g, gctx := errgroup.WithContext(ctx)

	worker := app.NewWorkerService(gctx, api,
		app.WithLogger(logger),
		app.WithPollInterval(cfg.Worker.PollInterval),
		app.WithJobTimeout(cfg.Worker.JobTimeout),
	)
	for _, id := range cfg.Worker.ServiceIDs {
		if err := worker.RegisterHandler(id, echo); err != nil {
			return err
		}
	}

	heartbeats := app.NewHeartbeatRunner(api, cfg.Worker.ServiceIDs, cfg.Worker.HeartbeatInterval, app.WithLogger(logger))

	g.Go(func() error { return heartbeats.Start(gctx) })
	g.Go(func() error {
		err := worker.ProcessJobs(cfg.Worker.ServiceIDs)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return g.Wait()
}

func echo(_ context.Context, job *domain.Job) (json.RawMessage, error) {
	return job.Parameters, nil
}

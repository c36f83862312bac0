package app

import (
	"context"
	"log/slog"
	"time"

	"foreman/internal/ports"
)

// HeartbeatRunner keeps a set of services available by sending heartbeats
// at a fixed interval.
type HeartbeatRunner struct {
	client     ports.DispatchClient
	serviceIDs []string
	interval   time.Duration
	logger     *slog.Logger
}

func NewHeartbeatRunner(client ports.DispatchClient, serviceIDs []string, interval time.Duration, opts ...Option) *HeartbeatRunner {
	o := buildOptions(opts)
	return &HeartbeatRunner{
		client:     client,
		serviceIDs: serviceIDs,
		interval:   interval,
		logger:     o.logger,
	}
}

// Start beats once immediately and then on every tick until ctx is done.
func (r *HeartbeatRunner) Start(ctx context.Context) error {
	r.logger.Info("starting heartbeats",
		slog.Any("service_ids", r.serviceIDs),
		slog.Duration("interval", r.interval),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("heartbeats stopped")
			return nil
		case <-ticker.C:
			r.beat(ctx)
		}
	}
}

func (r *HeartbeatRunner) beat(ctx context.Context) {
	for _, id := range r.serviceIDs {
		availability, err := r.client.Heartbeat(ctx, id)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Error("send heartbeat", slog.String("service_id", id), slog.Any("error", err))
			}
			continue
		}
		r.logger.Debug("heartbeat sent",
			slog.String("service_id", id),
			slog.Time("expires_at", availability.ExpiresAt),
		)
	}
}

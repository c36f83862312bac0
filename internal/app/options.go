package app

import (
	"log/slog"
	"time"

	"foreman/internal/domain"
	"foreman/internal/ports"
)

// Clock returns the current time.
type Clock func() time.Time

// SystemClock returns UTC now at microsecond precision, the resolution every
// store keeps, so job keys compare identically everywhere.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

type options struct {
	clock            Clock
	logger           *slog.Logger
	publisher        ports.EventPublisher
	heartbeatTimeout time.Duration
	pollInterval     time.Duration
	jobTimeout       time.Duration
}

type Option func(*options)

func WithClock(clock Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithEventPublisher(publisher ports.EventPublisher) Option {
	return func(o *options) {
		o.publisher = publisher
	}
}

// WithDefaultHeartbeatTimeout applies to services registered without one.
func WithDefaultHeartbeatTimeout(d time.Duration) Option {
	return func(o *options) {
		o.heartbeatTimeout = d
	}
}

// WithPollInterval bounds how often a worker asks for new jobs.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(o *options) {
		o.jobTimeout = d
	}
}

func buildOptions(opts []Option) options {
	o := options{
		clock:            SystemClock,
		logger:           slog.Default(),
		heartbeatTimeout: domain.DefaultHeartbeatTimeout,
		pollInterval:     time.Second,
		jobTimeout:       2 * time.Minute,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Package events publishes job lifecycle notifications. Delivery is best
// effort; nothing in the dispatch core reads events back.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"foreman/internal/domain"
	"foreman/internal/ports"
)

const (
	DefaultRedisPrefix = "foreman:events"
	DefaultRecentLimit = 1000
)

var _ ports.EventPublisher = (*RedisPublisher)(nil)

// RedisPublisher PUBLISHes each event on a per-service channel and keeps a
// capped list of the most recent events per service.
type RedisPublisher struct {
	client      *redis.Client
	prefix      string
	recentLimit int64
}

type RedisOption func(*RedisPublisher)

func WithPrefix(prefix string) RedisOption {
	return func(p *RedisPublisher) { p.prefix = prefix }
}

func WithRecentLimit(n int64) RedisOption {
	return func(p *RedisPublisher) { p.recentLimit = n }
}

func NewRedisPublisher(client *redis.Client, opts ...RedisOption) *RedisPublisher {
	p := &RedisPublisher{
		client:      client,
		prefix:      DefaultRedisPrefix,
		recentLimit: DefaultRecentLimit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RedisPublisher) Channel(serviceID string) string {
	return p.prefix + ":" + serviceID
}

func (p *RedisPublisher) recentKey(serviceID string) string {
	return p.prefix + ":recent:" + serviceID
}

func (p *RedisPublisher) Publish(ctx context.Context, event domain.JobEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: encode event: %w", err)
	}

	key := p.recentKey(event.ServiceID)
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, p.Channel(event.ServiceID), payload)
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, p.recentLimit-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("events: publish to redis: %w", err)
	}
	return nil
}

// Recent returns up to limit of a service's latest events, newest first.
func (p *RedisPublisher) Recent(ctx context.Context, serviceID string, limit int64) ([]domain.JobEvent, error) {
	if limit <= 0 {
		limit = p.recentLimit
	}
	raw, err := p.client.LRange(ctx, p.recentKey(serviceID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("events: read recent events: %w", err)
	}

	events := make([]domain.JobEvent, 0, len(raw))
	for _, item := range raw {
		var event domain.JobEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("events: decode event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}

// Subscribe returns a subscription to a service's event channel. The caller
// closes it.
func (p *RedisPublisher) Subscribe(ctx context.Context, serviceID string) *redis.PubSub {
	return p.client.Subscribe(ctx, p.Channel(serviceID))
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

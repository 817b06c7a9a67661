// Package redis records webhook deliveries so redeliveries are dispatched once.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DeliveryDeduper = (*Deduper)(nil)

// Deduper implements driven.DeliveryDeduper with SET NX and a TTL.
type Deduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewDeduper connects to redisURL and keeps delivery ids for ttl.
func NewDeduper(redisURL string, ttl time.Duration) (*Deduper, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewDeduperWithClient(client, ttl), nil
}

// NewDeduperWithClient creates a Deduper from an existing Redis client.
func NewDeduperWithClient(client *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{client: client, prefix: "delivery:", ttl: ttl}
}

// FirstDelivery reports whether id is recorded for the first time.
// An empty id cannot be deduplicated and always counts as first.
func (d *Deduper) FirstDelivery(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return true, nil
	}

	ok, err := d.client.SetNX(ctx, d.prefix+id, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("record delivery %s: %w", id, err)
	}
	return ok, nil
}

// Forget deletes the record of id.
func (d *Deduper) Forget(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := d.client.Del(ctx, d.prefix+id).Err(); err != nil {
		return fmt.Errorf("forget delivery %s: %w", id, err)
	}
	return nil
}

// Ping checks the connection.
func (d *Deduper) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

// Close closes the client.
func (d *Deduper) Close() error {
	return d.client.Close()
}

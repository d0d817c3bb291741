// Package cache publishes the game action log to a redis list.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/piloto-life/Gomoku/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the redis list used when none is configured.
const DefaultQueueName = "gomoku:actions"

// Connect opens a client and verifies it answers a ping.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Publisher appends action records to the tail of a list. The historian pops
// them from the head.
type Publisher struct {
	rdb   *redis.Client
	queue string
}

func NewPublisher(rdb *redis.Client, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Publisher{rdb: rdb, queue: queue}
}

// Queue is the list name records are pushed to.
func (p *Publisher) Queue() string { return p.queue }

// Publish serializes rec to JSON and pushes it to the list.
func (p *Publisher) Publish(ctx context.Context, rec models.GameActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal GameActionRecord: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}

// internal/cache/redis.go

// Package cache holds the Redis event journal. Every committed lobby event
// is pushed onto a list that out-of-process consumers (history, analytics)
// drain at their own pace.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/blue-orion/pongservice/internal/lobby"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list the journal pushes onto. Override with
// LOBBY_EVENT_QUEUE_NAME.
const DefaultQueueName = "pong_lobby_events"

// Journal is a Redis-backed event journal.
type Journal struct {
	rdb   *redis.Client
	queue string
}

// Connect initializes a journal from the environment:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
//   - LOBBY_EVENT_QUEUE_NAME (optional)
func Connect(ctx context.Context) (*Journal, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Journal{rdb: rdb, queue: getEnv("LOBBY_EVENT_QUEUE_NAME", DefaultQueueName)}, nil
}

// PublishEvent serializes the event and RPUSHes it. A quick network send;
// consumers never block the publisher.
func (j *Journal) PublishEvent(ctx context.Context, ev lobby.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal lobby event: %w", err)
	}
	if err := j.rdb.RPush(ctx, j.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", j.queue, err)
	}
	return nil
}

// Close releases the underlying client.
func (j *Journal) Close() error {
	return j.rdb.Close()
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

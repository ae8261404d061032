// Package output provides sinks that receive task results
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SyedDaiam9101/headpose-service/internal/task"
)

const (
	DefaultChannel = "headpose:results"
	DefaultTTL     = 5 * time.Minute
)

// Message is what the Redis sink stores and publishes
type Message struct {
	Stream    string          `json:"stream"`
	Task      string          `json:"task"`
	Timestamp time.Time       `json:"timestamp"`
	Results   json.RawMessage `json:"results"`
}

// RedisSink caches the latest results per stream and task and publishes
// each batch on a channel
type RedisSink struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
	now     func() time.Time
}

// RedisOptions configures the sink
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	TTL      time.Duration
}

// NewRedisSink connects to Redis. If Addr is empty, defaults to localhost:6379
func NewRedisSink(ctx context.Context, opts RedisOptions) (*RedisSink, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	return &RedisSink{client: client, channel: opts.Channel, ttl: opts.TTL, now: time.Now}, nil
}

// Key is the cache key of the latest results for stream and task name
func Key(stream, taskName string) string {
	return fmt.Sprintf("headpose:%s:%s", stream, slug(taskName))
}

func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// Publish stores the results under Key and publishes them on the channel
func (s *RedisSink) Publish(ctx context.Context, taskName string, results []task.Result) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	body, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	stream := StreamFrom(ctx)
	msg, err := json.Marshal(Message{Stream: stream, Task: taskName, Timestamp: s.now().UTC(), Results: body})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, Key(stream, taskName), msg, s.ttl)
	pipe.Publish(ctx, s.channel, msg)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish results for %s: %w", stream, err)
	}
	return nil
}

// Latest returns the last message stored for stream and task, or nil if
// none is cached
func (s *RedisSink) Latest(ctx context.Context, stream, taskName string) (*Message, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	data, err := s.client.Get(ctx, Key(stream, taskName)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get results for %s: %w", stream, err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode cached results: %w", err)
	}
	return &msg, nil
}

// Ping checks the connection
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisSink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

var _ task.Sink = (*RedisSink)(nil)

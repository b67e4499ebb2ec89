// Package ratelimit provides a sliding-window rate limiter backed by Redis so
// that several service instances share one budget per client.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
)

// Counter records a hit for key and returns the number of hits inside the
// window ending at now, the new hit included.
type Counter interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error)
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisCounter keeps one sorted set per key, scored by hit time.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisCounter connects to Redis and verifies the connection.
func NewRedisCounter(cfg RedisConfig) (*RedisCounter, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "leadpulse:ratelimit"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis rate limiter: %w", err)
	}

	return &RedisCounter{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

// Hit implements Counter. Expired hits are trimmed in the same transaction.
func (c *RedisCounter) Hit(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	redisKey := c.prefix + ":" + key
	windowStart := now.Add(-window).UnixNano()

	pipe := c.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: ulid.Make().String()})
	card := pipe.ZCard(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("update rate limit window: %w", err)
	}
	return card.Val(), nil
}

// Ping checks that Redis is reachable.
func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (c *RedisCounter) Close() error {
	return c.client.Close()
}

// Options configures the middleware.
type Options struct {
	Max    int
	Window time.Duration
	// KeyFunc identifies the client; defaults to the request IP.
	KeyFunc func(c *fiber.Ctx) string
	// Timeout bounds a single counter round trip.
	Timeout time.Duration
}

// New returns a fiber middleware enforcing opts.Max requests per opts.Window.
// When the counter fails the request is let through.
func New(counter Counter, opts Options, logger *slog.Logger) fiber.Handler {
	if opts.KeyFunc == nil {
		opts.KeyFunc = func(c *fiber.Ctx) string { return c.IP() }
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 250 * time.Millisecond
	}

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), opts.Timeout)
		defer cancel()

		count, err := counter.Hit(ctx, opts.KeyFunc(c), time.Now(), opts.Window)
		if err != nil {
			logger.Warn("Rate limiter unavailable, allowing request",
				slog.String("path", c.Path()),
				slog.Any("error", err))
			return c.Next()
		}

		remaining := int64(opts.Max) - count
		c.Set("X-RateLimit-Limit", strconv.Itoa(opts.Max))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(max(remaining, 0), 10))

		if remaining < 0 {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(opts.Window.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "Too many requests",
				"code":    "RATE_LIMITED",
			})
		}
		return c.Next()
	}
}

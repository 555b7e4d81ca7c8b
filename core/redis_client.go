package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Logical databases used by cartshare. Everything else is left to the
// operator.
const (
	RedisDBSessions = 2
	RedisDBCache    = 3
)

var redisDBNames = map[int]string{
	RedisDBSessions: "Sessions",
	RedisDBCache:    "Cache",
}

// GetRedisDBName names a logical database for logs.
func GetRedisDBName(db int) string {
	if name, ok := redisDBNames[db]; ok {
		return name
	}
	return fmt.Sprintf("DB %d", db)
}

// RedisClientOptions configures NewRedisClient.
type RedisClientOptions struct {
	RedisURL    string
	DB          int    // 0-15; out of range keeps the DB from the URL
	Namespace   string // prefixed to every key as "namespace:key"
	Logger      Logger
	PingTimeout time.Duration // 5s when zero
}

// RedisClient is a namespaced view of one Redis database. Sessions shared
// between machines are kept here, one hash per profile.
type RedisClient struct {
	rdb       *redis.Client
	db        int
	namespace string
	logger    Logger
}

// NewRedisClient connects and pings. A missing or malformed URL yields
// ErrInvalidConfiguration, an unreachable server ErrConnectionFailed.
func NewRedisClient(opts RedisClientOptions) (*RedisClient, error) {
	logger := ComponentLogger(opts.Logger, "redis")
	if strings.TrimSpace(opts.RedisURL) == "" {
		return nil, fmt.Errorf("redis URL is required: %w", ErrInvalidConfiguration)
	}
	parsed, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", ErrInvalidConfiguration)
	}
	if opts.DB >= 0 && opts.DB <= 15 {
		parsed.DB = opts.DB
	}

	c := &RedisClient{
		rdb:       redis.NewClient(parsed),
		db:        parsed.DB,
		namespace: opts.Namespace,
		logger:    logger,
	}

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.HealthCheck(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, fmt.Errorf("redis %s (db %d): %w", GetRedisDBName(c.db), c.db, ErrConnectionFailed)
	}

	logger.Debug("Redis connected", c.fields(nil))
	return c, nil
}

func (c *RedisClient) fields(err error) map[string]interface{} {
	f := map[string]interface{}{
		"db":        c.db,
		"db_name":   GetRedisDBName(c.db),
		"namespace": c.namespace,
	}
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (c *RedisClient) key(k string) string {
	if c.namespace == "" {
		return k
	}
	return c.namespace + ":" + k
}

func (c *RedisClient) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = c.key(k)
	}
	return out
}

// GetDB returns the selected database.
func (c *RedisClient) GetDB() int { return c.db }

// GetNamespace returns the key prefix.
func (c *RedisClient) GetNamespace() string { return c.namespace }

// Get reads a string. A missing key yields ErrNotFound.
func (c *RedisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

// Set writes a string; ttl 0 means no expiry.
func (c *RedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.key(key), value, ttl).Err()
}

// Del removes keys.
func (c *RedisClient) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, c.keys(keys)...).Err()
}

// HSetWithTTL writes hash fields and, when ttl > 0, moves the expiry forward
// in the same transaction.
func (c *RedisClient) HSetWithTTL(ctx context.Context, key string, fields map[string]interface{}, ttl time.Duration) error {
	k := c.key(key)
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, fields)
		if ttl > 0 {
			p.Expire(ctx, k, ttl)
		}
		return nil
	})
	return err
}

// HGetAll reads a hash; a missing key is an empty map.
func (c *RedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, c.key(key)).Result()
}

// HDel removes hash fields.
func (c *RedisClient) HDel(ctx context.Context, key string, fields ...string) error {
	return c.rdb.HDel(ctx, c.key(key), fields...).Err()
}

// HealthCheck pings the server.
func (c *RedisClient) HealthCheck(ctx context.Context) error {
	err := c.rdb.Ping(ctx).Err()
	if err != nil {
		c.logger.WarnWithContext(ctx, "Redis ping failed", c.fields(err))
	}
	return err
}

// Close releases the connection pool.
func (c *RedisClient) Close() error {
	err := c.rdb.Close()
	if err != nil {
		c.logger.Warn("Redis close failed", c.fields(err))
	}
	return err
}

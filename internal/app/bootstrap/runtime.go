package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/bearound/booking-funnel/internal/config"
	"github.com/bearound/booking-funnel/internal/funnel"
	"github.com/bearound/booking-funnel/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionStore returns the Redis session store when a client is available,
// otherwise an in-process store.
func BuildSessionStore(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) funnel.Store {
	if logger == nil {
		logger = logging.Default()
	}
	ttl := cfg.SessionTTL
	if redisClient != nil {
		logger.Info("funnel sessions stored in redis", "ttl", ttl.String())
		return funnel.NewRedisStore(redisClient, ttl)
	}
	logger.Warn("REDIS_ADDR not set; funnel sessions kept in memory")
	return funnel.NewMemoryStore(ttl)
}

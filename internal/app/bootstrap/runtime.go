package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/practice-scheduler/internal/config"
	"github.com/wolfman30/practice-scheduler/internal/scheduling"
	"github.com/wolfman30/practice-scheduler/internal/voice"
	"github.com/wolfman30/practice-scheduler/pkg/logging"
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

// BuildPool opens a pgx pool when DATABASE_URL is set. A nil pool with a nil
// error means the API runs on the in-memory repository.
func BuildPool(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}

// BuildRepository picks Postgres when a pool is available.
func BuildRepository(pool *pgxpool.Pool, logger *logging.Logger) scheduling.Repository {
	if logger == nil {
		logger = logging.Default()
	}
	if pool == nil {
		logger.Warn("DATABASE_URL not set; using in-memory scheduling repository")
		return scheduling.NewInMemoryRepository()
	}
	return scheduling.NewPostgresRepository(pool)
}

// BuildPendingStore keeps staged voice commands in Redis when it is reachable.
func BuildPendingStore(redisClient *redis.Client, logger *logging.Logger) voice.PendingStore {
	if redisClient == nil {
		if logger != nil {
			logger.Warn("redis not configured; voice confirmations are held in memory")
		}
		return voice.NewMemoryPendingStore(nil)
	}
	return voice.NewRedisPendingStore(redisClient)
}

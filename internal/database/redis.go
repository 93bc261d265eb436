package database

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/ruralpay/ledger/internal/config"
	"go.uber.org/zap"
)

// InitRedis initializes the Redis client from config. It returns nil when Redis
// is unreachable; callers treat Redis-backed features as optional.
func InitRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	addr := cfg.Addr()
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis connection failed, continuing without redis",
			zap.String("addr", addr), zap.Error(err))
		rdb.Close()
		return nil
	}

	logger.Info("redis connection established", zap.String("addr", addr))
	return rdb
}

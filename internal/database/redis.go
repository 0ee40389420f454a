package database

import (
	"context"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/servicehub/backend/internal/config"
)

// InitRedis connects to Redis. Without it the server still runs: POSTs are
// not deduplicated by Idempotency-Key and revoked tokens are not checked, so
// a failed ping returns nil.
func InitRedis(cfg *config.RedisConfig) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[REDIS] %s unreachable, idempotency cache and token blacklist disabled: %v", cfg.Addr(), err)
		rdb.Close()
		return nil
	}

	log.Printf("[REDIS] Connected to %s (db %d)", cfg.Addr(), cfg.DB)
	return rdb
}

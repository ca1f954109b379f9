package db

import (
	"github.com/Codeur974/sentiers-974-sub000/internal/config"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis builds the client backing the daily-stats cache and the
// websocket fan-out. Redis is optional: with no address configured the
// services run uncached.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

package redis

import (
	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/realtime-gateway/config"
)

func NewClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		// Pub/sub receivers block on reads; a read timeout would tear them down.
		ReadTimeout: -1,
	})

	return client, nil
}

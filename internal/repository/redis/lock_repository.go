package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

// LockRepository hands out fleet-wide tick leases. A lease is never
// released; it simply expires, so a crashed holder cannot wedge a job.
type LockRepository interface {
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
}

type redisLockRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewRedisLockRepository(cli *redis.Client, l logger.Logger) LockRepository {
	return &redisLockRepository{
		cli: cli,
		l:   l,
	}
}

func (r *redisLockRepository) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	ok, err := r.cli.SetNX(ctx, r.lockKey(name), owner, ttl).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisLockRepository.AcquireLock: %v", err)
		return false, err
	}
	return ok, nil
}

func (r *redisLockRepository) lockKey(name string) string {
	return fmt.Sprintf("%s:sweep:lock", name)
}

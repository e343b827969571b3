package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/realtime-gateway/internal/models"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

type SessionRepository interface {
	Save(ctx context.Context, ss *models.GatewaySession, ttl time.Duration) error
	Get(ctx context.Context, ssID string) (*models.GatewaySession, error)
}

type redisSessionRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewRedisSessionRepository(cli *redis.Client, l logger.Logger) SessionRepository {
	return &redisSessionRepository{
		cli: cli,
		l:   l,
	}
}

func (r *redisSessionRepository) Save(ctx context.Context, ss *models.GatewaySession, ttl time.Duration) error {
	data, err := json.Marshal(ss)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.cli.Set(ctx, r.sessionKey(ss.ID), data, ttl).Err(); err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.Save: %v", err)
		return err
	}

	return nil
}

// Get returns redis.Nil when the session is unknown or expired.
func (r *redisSessionRepository) Get(ctx context.Context, ssID string) (*models.GatewaySession, error) {
	data, err := r.cli.Get(ctx, r.sessionKey(ssID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.l.Errorf(ctx, "redisSessionRepository.Get: %v", err)
		}
		return nil, err
	}

	var ss models.GatewaySession
	if err := json.Unmarshal(data, &ss); err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.Get: %v", err)
		return nil, err
	}

	return &ss, nil
}

func (r *redisSessionRepository) sessionKey(ssID string) string {
	return fmt.Sprintf("gateway:session:%s", ssID)
}

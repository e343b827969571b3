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

const presenceChannel = "presence:updates"

type PresenceRepository interface {
	Get(ctx context.Context, uID string) (*models.Presence, error)
	GetMany(ctx context.Context, uIDs []string) (map[string]*models.Presence, error)
	Set(ctx context.Context, p *models.Presence, ttl time.Duration) error
	Refresh(ctx context.Context, uIDs []string, ttl time.Duration) error

	GetOverride(ctx context.Context, uID string) (models.PresenceStatus, error)
	SetOverride(ctx context.Context, uID string, status models.PresenceStatus) error
	DeleteOverride(ctx context.Context, uID string) error

	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context) *redis.PubSub
}

type redisPresenceRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewRedisPresenceRepository(cli *redis.Client, l logger.Logger) PresenceRepository {
	return &redisPresenceRepository{
		cli: cli,
		l:   l,
	}
}

// Get returns redis.Nil when the user has no live presence.
func (r *redisPresenceRepository) Get(ctx context.Context, uID string) (*models.Presence, error) {
	data, err := r.cli.Get(ctx, r.presenceKey(uID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.l.Errorf(ctx, "redisPresenceRepository.Get: %v", err)
		}
		return nil, err
	}

	var p models.Presence
	if err := json.Unmarshal(data, &p); err != nil {
		r.l.Errorf(ctx, "redisPresenceRepository.Get: %v", err)
		return nil, err
	}

	return &p, nil
}

// GetMany omits users without a live presence from the result.
func (r *redisPresenceRepository) GetMany(ctx context.Context, uIDs []string) (map[string]*models.Presence, error) {
	out := make(map[string]*models.Presence, len(uIDs))
	if len(uIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(uIDs))
	for i, id := range uIDs {
		keys[i] = r.presenceKey(id)
	}

	vals, err := r.cli.MGet(ctx, keys...).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisPresenceRepository.GetMany: %v", err)
		return nil, err
	}

	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var p models.Presence
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			r.l.Warnf(ctx, "redisPresenceRepository.GetMany: skip %s: %v", uIDs[i], err)
			continue
		}
		out[uIDs[i]] = &p
	}

	return out, nil
}

func (r *redisPresenceRepository) Set(ctx context.Context, p *models.Presence, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	if err := r.cli.Set(ctx, r.presenceKey(p.UserID), data, ttl).Err(); err != nil {
		r.l.Errorf(ctx, "redisPresenceRepository.Set: %v", err)
		return err
	}

	return nil
}

func (r *redisPresenceRepository) Refresh(ctx context.Context, uIDs []string, ttl time.Duration) error {
	if len(uIDs) == 0 {
		return nil
	}

	pipe := r.cli.Pipeline()
	for _, id := range uIDs {
		pipe.Expire(ctx, r.presenceKey(id), ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisPresenceRepository.Refresh: %v", err)
		return err
	}

	return nil
}

// GetOverride returns "" when no manual status is stored.
func (r *redisPresenceRepository) GetOverride(ctx context.Context, uID string) (models.PresenceStatus, error) {
	s, err := r.cli.Get(ctx, r.overrideKey(uID)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		r.l.Errorf(ctx, "redisPresenceRepository.GetOverride: %v", err)
		return "", err
	}
	return models.PresenceStatus(s), nil
}

func (r *redisPresenceRepository) SetOverride(ctx context.Context, uID string, status models.PresenceStatus) error {
	if status == models.StatusOffline {
		return fmt.Errorf("redisPresenceRepository.SetOverride: offline cannot be persisted")
	}

	if err := r.cli.Set(ctx, r.overrideKey(uID), string(status), 0).Err(); err != nil {
		r.l.Errorf(ctx, "redisPresenceRepository.SetOverride: %v", err)
		return err
	}
	return nil
}

func (r *redisPresenceRepository) DeleteOverride(ctx context.Context, uID string) error {
	if err := r.cli.Del(ctx, r.overrideKey(uID)).Err(); err != nil {
		r.l.Errorf(ctx, "redisPresenceRepository.DeleteOverride: %v", err)
		return err
	}
	return nil
}

func (r *redisPresenceRepository) Publish(ctx context.Context, payload []byte) error {
	if err := r.cli.Publish(ctx, presenceChannel, payload).Err(); err != nil {
		r.l.Errorf(ctx, "redisPresenceRepository.Publish: %v", err)
		return err
	}
	return nil
}

func (r *redisPresenceRepository) Subscribe(ctx context.Context) *redis.PubSub {
	return r.cli.Subscribe(ctx, presenceChannel)
}

func (r *redisPresenceRepository) presenceKey(uID string) string {
	return fmt.Sprintf("presence:user:%s", uID)
}

func (r *redisPresenceRepository) overrideKey(uID string) string {
	return fmt.Sprintf("presence:override:%s", uID)
}

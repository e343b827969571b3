package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/realtime-gateway/internal/models"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

const scheduleIndexKey = "presence:schedules"

type ScheduleRepository interface {
	Get(ctx context.Context, uID string) (*models.PresenceSchedule, error)
	Set(ctx context.Context, uID string, s *models.PresenceSchedule, ttl time.Duration) error
	Delete(ctx context.Context, uID string) error
	// PopDue atomically removes and returns up to limit users whose
	// schedule ends at or before nowMs.
	PopDue(ctx context.Context, nowMs int64, limit int) ([]string, error)
}

type redisScheduleRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewRedisScheduleRepository(cli *redis.Client, l logger.Logger) ScheduleRepository {
	return &redisScheduleRepository{
		cli: cli,
		l:   l,
	}
}

// Get returns redis.Nil when no schedule is stored.
func (r *redisScheduleRepository) Get(ctx context.Context, uID string) (*models.PresenceSchedule, error) {
	data, err := r.cli.Get(ctx, r.scheduleKey(uID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.l.Errorf(ctx, "redisScheduleRepository.Get: %v", err)
		}
		return nil, err
	}

	var s models.PresenceSchedule
	if err := json.Unmarshal(data, &s); err != nil {
		r.l.Errorf(ctx, "redisScheduleRepository.Get: %v", err)
		return nil, err
	}

	return &s, nil
}

func (r *redisScheduleRepository) Set(ctx context.Context, uID string, s *models.PresenceSchedule, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}

	pipe := r.cli.TxPipeline()
	pipe.Set(ctx, r.scheduleKey(uID), data, ttl)
	pipe.ZAdd(ctx, scheduleIndexKey, redis.Z{Score: float64(s.Until), Member: uID})

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisScheduleRepository.Set: %v", err)
		return err
	}

	return nil
}

func (r *redisScheduleRepository) Delete(ctx context.Context, uID string) error {
	pipe := r.cli.TxPipeline()
	pipe.Del(ctx, r.scheduleKey(uID))
	pipe.ZRem(ctx, scheduleIndexKey, uID)

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisScheduleRepository.Delete: %v", err)
		return err
	}

	return nil
}

var popDueScript = redis.NewScript(`
	local key = KEYS[1]
	local now = ARGV[1]
	local limit = tonumber(ARGV[2])

	local members = redis.call('ZRANGEBYSCORE', key, '-inf', now, 'LIMIT', 0, limit)
	if #members > 0 then
		redis.call('ZREM', key, unpack(members))
	end

	return members
`)

func (r *redisScheduleRepository) PopDue(ctx context.Context, nowMs int64, limit int) ([]string, error) {
	res, err := popDueScript.Run(ctx, r.cli, []string{scheduleIndexKey}, strconv.FormatInt(nowMs, 10), limit).StringSlice()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		r.l.Errorf(ctx, "redisScheduleRepository.PopDue: %v", err)
		return nil, err
	}

	return res, nil
}

func (r *redisScheduleRepository) scheduleKey(uID string) string {
	return fmt.Sprintf("presence:schedule:%s", uID)
}

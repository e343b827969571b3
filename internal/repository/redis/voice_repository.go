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

const voiceExpiryKey = "voice:expiry"

type VoiceRepository interface {
	GetState(ctx context.Context, uID string) (*models.VoiceState, error)
	StateExists(ctx context.Context, uID string) (bool, error)
	// SaveState writes the state, moves the user between channel sets,
	// records the last known room and indexes the expiry.
	SaveState(ctx context.Context, st *models.VoiceState, prevRoomID string, ttl, roomTTL time.Duration, expiresAtMs int64) error
	// RemoveState drops the state, its channel-set entry, the last-room
	// record and the index entry.
	RemoveState(ctx context.Context, uID, roomID string) error
	ChannelStates(ctx context.Context, roomID string) ([]*models.VoiceState, error)
	RemoveFromChannel(ctx context.Context, uID, roomID string) error

	GetLastRoom(ctx context.Context, uID string) (string, error)

	DueExpiries(ctx context.Context, nowMs int64, limit int) ([]string, error)
	IndexExpiry(ctx context.Context, uID string, atMs int64) error
	ClearExpiry(ctx context.Context, uID string) error

	SaveSession(ctx context.Context, vs *models.VoiceSession, ttl time.Duration) error
	GetSession(ctx context.Context, uID string) (*models.VoiceSession, error)
	DeleteSession(ctx context.Context, uID string) error
}

type redisVoiceRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewRedisVoiceRepository(cli *redis.Client, l logger.Logger) VoiceRepository {
	return &redisVoiceRepository{
		cli: cli,
		l:   l,
	}
}

// GetState returns redis.Nil when the user is not in voice.
func (r *redisVoiceRepository) GetState(ctx context.Context, uID string) (*models.VoiceState, error) {
	data, err := r.cli.Get(ctx, r.stateKey(uID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.l.Errorf(ctx, "redisVoiceRepository.GetState: %v", err)
		}
		return nil, err
	}

	var st models.VoiceState
	if err := json.Unmarshal(data, &st); err != nil {
		r.l.Errorf(ctx, "redisVoiceRepository.GetState: %v", err)
		return nil, err
	}

	return &st, nil
}

func (r *redisVoiceRepository) StateExists(ctx context.Context, uID string) (bool, error) {
	n, err := r.cli.Exists(ctx, r.stateKey(uID)).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisVoiceRepository.StateExists: %v", err)
		return false, err
	}
	return n > 0, nil
}

func (r *redisVoiceRepository) SaveState(ctx context.Context, st *models.VoiceState, prevRoomID string, ttl, roomTTL time.Duration, expiresAtMs int64) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal voice state: %w", err)
	}

	roomID := st.RoomID()

	pipe := r.cli.TxPipeline()
	pipe.Set(ctx, r.stateKey(st.UserID), data, ttl)
	if prevRoomID != "" && prevRoomID != roomID {
		pipe.SRem(ctx, r.channelKey(prevRoomID), st.UserID)
	}
	if roomID != "" {
		pipe.SAdd(ctx, r.channelKey(roomID), st.UserID)
		pipe.Set(ctx, r.roomKey(st.UserID), roomID, roomTTL)
	}
	pipe.ZAdd(ctx, voiceExpiryKey, redis.Z{Score: float64(expiresAtMs), Member: st.UserID})

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisVoiceRepository.SaveState: %v", err)
		return err
	}

	return nil
}

func (r *redisVoiceRepository) RemoveState(ctx context.Context, uID, roomID string) error {
	pipe := r.cli.TxPipeline()
	pipe.Del(ctx, r.stateKey(uID), r.roomKey(uID))
	if roomID != "" {
		pipe.SRem(ctx, r.channelKey(roomID), uID)
	}
	pipe.ZRem(ctx, voiceExpiryKey, uID)

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisVoiceRepository.RemoveState: %v", err)
		return err
	}

	return nil
}

// ChannelStates returns the live states of a channel's members. Members
// whose state already expired are skipped.
func (r *redisVoiceRepository) ChannelStates(ctx context.Context, roomID string) ([]*models.VoiceState, error) {
	uIDs, err := r.cli.SMembers(ctx, r.channelKey(roomID)).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisVoiceRepository.ChannelStates: %v", err)
		return nil, err
	}
	if len(uIDs) == 0 {
		return []*models.VoiceState{}, nil
	}

	keys := make([]string, len(uIDs))
	for i, id := range uIDs {
		keys[i] = r.stateKey(id)
	}

	vals, err := r.cli.MGet(ctx, keys...).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisVoiceRepository.ChannelStates: %v", err)
		return nil, err
	}

	states := make([]*models.VoiceState, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var st models.VoiceState
		if err := json.Unmarshal([]byte(s), &st); err != nil {
			continue
		}
		states = append(states, &st)
	}

	return states, nil
}

func (r *redisVoiceRepository) RemoveFromChannel(ctx context.Context, uID, roomID string) error {
	if err := r.cli.SRem(ctx, r.channelKey(roomID), uID).Err(); err != nil {
		r.l.Errorf(ctx, "redisVoiceRepository.RemoveFromChannel: %v", err)
		return err
	}
	return nil
}

// GetLastRoom returns "" when no room was recorded.
func (r *redisVoiceRepository) GetLastRoom(ctx context.Context, uID string) (string, error) {
	roomID, err := r.cli.Get(ctx, r.roomKey(uID)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		r.l.Errorf(ctx, "redisVoiceRepository.GetLastRoom: %v", err)
		return "", err
	}
	return roomID, nil
}

func (r *redisVoiceRepository) DueExpiries(ctx context.Context, nowMs int64, limit int) ([]string, error) {
	uIDs, err := r.cli.ZRangeByScore(ctx, voiceExpiryKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(nowMs, 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisVoiceRepository.DueExpiries: %v", err)
		return nil, err
	}
	return uIDs, nil
}

func (r *redisVoiceRepository) IndexExpiry(ctx context.Context, uID string, atMs int64) error {
	if err := r.cli.ZAdd(ctx, voiceExpiryKey, redis.Z{Score: float64(atMs), Member: uID}).Err(); err != nil {
		r.l.Errorf(ctx, "redisVoiceRepository.IndexExpiry: %v", err)
		return err
	}
	return nil
}

func (r *redisVoiceRepository) ClearExpiry(ctx context.Context, uID string) error {
	if err := r.cli.ZRem(ctx, voiceExpiryKey, uID).Err(); err != nil {
		r.l.Errorf(ctx, "redisVoiceRepository.ClearExpiry: %v", err)
		return err
	}
	return nil
}

func (r *redisVoiceRepository) SaveSession(ctx context.Context, vs *models.VoiceSession, ttl time.Duration) error {
	data, err := json.Marshal(vs)
	if err != nil {
		return fmt.Errorf("failed to marshal voice session: %w", err)
	}

	if err := r.cli.Set(ctx, r.sessionKey(vs.UserID), data, ttl).Err(); err != nil {
		r.l.Errorf(ctx, "redisVoiceRepository.SaveSession: %v", err)
		return err
	}
	return nil
}

// GetSession returns redis.Nil when no voice session is registered.
func (r *redisVoiceRepository) GetSession(ctx context.Context, uID string) (*models.VoiceSession, error) {
	data, err := r.cli.Get(ctx, r.sessionKey(uID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.l.Errorf(ctx, "redisVoiceRepository.GetSession: %v", err)
		}
		return nil, err
	}

	var vs models.VoiceSession
	if err := json.Unmarshal(data, &vs); err != nil {
		r.l.Errorf(ctx, "redisVoiceRepository.GetSession: %v", err)
		return nil, err
	}
	return &vs, nil
}

func (r *redisVoiceRepository) DeleteSession(ctx context.Context, uID string) error {
	if err := r.cli.Del(ctx, r.sessionKey(uID)).Err(); err != nil {
		r.l.Errorf(ctx, "redisVoiceRepository.DeleteSession: %v", err)
		return err
	}
	return nil
}

func (r *redisVoiceRepository) stateKey(uID string) string {
	return fmt.Sprintf("voice:state:%s", uID)
}

func (r *redisVoiceRepository) channelKey(roomID string) string {
	return fmt.Sprintf("voice:channel:%s", roomID)
}

func (r *redisVoiceRepository) roomKey(uID string) string {
	return fmt.Sprintf("voice:room:%s", uID)
}

func (r *redisVoiceRepository) sessionKey(uID string) string {
	return fmt.Sprintf("voice:session:%s", uID)
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/realtime-gateway/config"
	"github.com/vogiaan1904/realtime-gateway/internal/models"
	repository "github.com/vogiaan1904/realtime-gateway/internal/repository/redis"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

// PresenceStore fronts the authoritative Redis presence with a small
// expiring local cache.
type PresenceStore struct {
	repo  repository.PresenceRepository
	cache *expirable.LRU[string, models.Presence]
	ttl   time.Duration
	l     logger.Logger
}

func NewPresenceStore(repo repository.PresenceRepository, cfg config.PresenceConfig, l logger.Logger) *PresenceStore {
	return &PresenceStore{
		repo:  repo,
		cache: expirable.NewLRU[string, models.Presence](cfg.CacheSize, nil, cfg.CacheTTL),
		ttl:   cfg.TTL,
		l:     l,
	}
}

// Get returns ErrPresenceNotFound when the user has no live presence.
func (s *PresenceStore) Get(ctx context.Context, uID string) (models.Presence, error) {
	if p, ok := s.cache.Get(uID); ok {
		return p, nil
	}
	return s.Fetch(ctx, uID)
}

// Fetch reads Redis, bypassing the cache.
func (s *PresenceStore) Fetch(ctx context.Context, uID string) (models.Presence, error) {
	p, err := s.repo.Get(ctx, uID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Presence{}, ErrPresenceNotFound
		}
		return models.Presence{}, err
	}
	s.cache.Add(uID, *p)
	return *p, nil
}

// GetMany resolves every id. Users without a live presence, or whose
// presence could not be read, come back offline.
func (s *PresenceStore) GetMany(ctx context.Context, uIDs []string) map[string]models.Presence {
	out := make(map[string]models.Presence, len(uIDs))
	var misses []string
	for _, id := range uIDs {
		if p, ok := s.cache.Get(id); ok {
			out[id] = p
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) > 0 {
		found, err := s.repo.GetMany(ctx, misses)
		if err != nil {
			s.l.Warnf(ctx, "service.PresenceStore.GetMany: %v", err)
		}
		for _, id := range misses {
			if p, ok := found[id]; ok {
				s.cache.Add(id, *p)
				out[id] = *p
				continue
			}
			out[id] = offlinePresence(id, 0)
		}
	}

	return out
}

// Put writes Redis first, then the cache.
func (s *PresenceStore) Put(ctx context.Context, p models.Presence) error {
	if err := s.repo.Set(ctx, &p, s.ttl); err != nil {
		return err
	}
	s.cache.Add(p.UserID, p)
	return nil
}

// Remember caches a presence written by another instance.
func (s *PresenceStore) Remember(p models.Presence) {
	s.cache.Add(p.UserID, p)
}

func (s *PresenceStore) Refresh(ctx context.Context, uIDs []string) error {
	if len(uIDs) == 0 {
		return nil
	}
	return s.repo.Refresh(ctx, uIDs, s.ttl)
}

func offlinePresence(uID string, at int64) models.Presence {
	return models.Presence{
		UserID:     uID,
		Status:     models.StatusOffline,
		Activities: []models.Activity{},
		UpdatedAt:  at,
	}
}

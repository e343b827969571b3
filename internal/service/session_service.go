package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/realtime-gateway/internal/models"
	repository "github.com/vogiaan1904/realtime-gateway/internal/repository/redis"
	"github.com/vogiaan1904/realtime-gateway/pkg/clock"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

type sessionService struct {
	repo   repository.SessionRepository
	tokens TokenVerifier
	clk    clock.Clock
	l      logger.Logger
	ttl    time.Duration
}

func NewSessionService(repo repository.SessionRepository, tokens TokenVerifier, clk clock.Clock, l logger.Logger, ttl time.Duration) SessionService {
	return &sessionService{
		repo:   repo,
		tokens: tokens,
		clk:    clk,
		l:      l,
		ttl:    ttl,
	}
}

// Identify verifies the token and persists a fresh session pointer with
// sequence 0.
func (s *sessionService) Identify(ctx context.Context, token string) (*models.GatewaySession, error) {
	id, err := s.tokens.VerifyIdentify(token)
	if err != nil {
		s.l.Warnf(ctx, "service.sessionService.Identify: %v", err)
		return nil, ErrInvalidToken
	}

	ss := &models.GatewaySession{
		ID:        id.SessionID,
		UserID:    id.UserID,
		Sequence:  0,
		UpdatedAt: s.clk.Now().UnixMilli(),
	}
	if err := s.repo.Save(ctx, ss, s.ttl); err != nil {
		s.l.Errorf(ctx, "service.sessionService.Identify: %v", err)
		return nil, err
	}

	return ss, nil
}

// Resume restores a persisted session and refreshes its TTL.
func (s *sessionService) Resume(ctx context.Context, ssID string) (*models.GatewaySession, error) {
	if ssID == "" {
		return nil, ErrSessionNotFound
	}

	ss, err := s.repo.Get(ctx, ssID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		s.l.Errorf(ctx, "service.sessionService.Resume: %v", err)
		return nil, err
	}

	ss.UpdatedAt = s.clk.Now().UnixMilli()
	if err := s.repo.Save(ctx, ss, s.ttl); err != nil {
		s.l.Errorf(ctx, "service.sessionService.Resume: %v", err)
		return nil, err
	}

	return ss, nil
}

func (s *sessionService) Persist(ctx context.Context, ss *models.GatewaySession) error {
	ss.UpdatedAt = s.clk.Now().UnixMilli()
	if err := s.repo.Save(ctx, ss, s.ttl); err != nil {
		s.l.Errorf(ctx, "service.sessionService.Persist: %v", err)
		return err
	}
	return nil
}

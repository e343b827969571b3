package service

import (
	"context"
	"time"

	"github.com/vogiaan1904/realtime-gateway/internal/delivery/kafka"
)

const voiceLockName = "voice"

func (s *voiceService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return ErrAlreadyRunning
	}

	s.l.Info(ctx, "Starting voice sweeper", "interval", s.cfg.SweepInterval)

	s.isRunning = true
	s.stopCh = make(chan struct{})
	s.ticker = s.clk.NewTicker(s.cfg.SweepInterval)

	s.wg.Add(1)
	go s.sweepLoop(ctx, s.stopCh)

	return nil
}

func (s *voiceService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return ErrNotRunning
	}

	close(s.stopCh)
	s.ticker.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.l.Info(context.Background(), "Voice sweeper stopped gracefully")
	case <-time.After(stopTimeout):
		s.l.Warn(context.Background(), "Voice sweeper shutdown timeout exceeded")
	}

	s.isRunning = false
	return nil
}

func (s *voiceService) sweepLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-s.ticker.C():
			if n, err := s.Sweep(ctx); err == nil {
				s.m.VoiceSwept(n)
			}
		}
	}
}

// Sweep removes users whose voice state expired from their last room.
// States still alive are re-armed for another grace period.
func (s *voiceService) Sweep(ctx context.Context) (int, error) {
	ok, err := s.locks.AcquireLock(ctx, voiceLockName, s.instanceID, s.cfg.SweepInterval*9/10)
	if err != nil || !ok {
		return 0, err
	}

	now := s.clk.Now()
	due, err := s.repo.DueExpiries(ctx, now.UnixMilli(), s.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, uID := range due {
		alive, err := s.repo.StateExists(ctx, uID)
		if err != nil {
			s.l.Warnf(ctx, "service.voiceService.Sweep: %v", err)
			continue
		}
		if alive {
			if err := s.repo.IndexExpiry(ctx, uID, now.Add(s.cfg.Grace).UnixMilli()); err != nil {
				s.l.Warnf(ctx, "service.voiceService.Sweep: %v", err)
			}
			continue
		}

		room, err := s.repo.GetLastRoom(ctx, uID)
		if err != nil {
			s.l.Warnf(ctx, "service.voiceService.Sweep: %v", err)
		}
		if room != "" {
			if err := s.repo.RemoveFromChannel(ctx, uID, room); err != nil {
				s.l.Warnf(ctx, "service.voiceService.Sweep: %v", err)
				continue
			}
			s.publishLeft(ctx, kafka.VoiceLeftEvent{
				UserID: uID,
				RoomID: room,
				Reason: leftReasonExpired,
			})
			if s.peers != nil {
				s.peers.ClosePeer(room, uID)
			}
		}
		if err := s.repo.ClearExpiry(ctx, uID); err != nil {
			s.l.Warnf(ctx, "service.voiceService.Sweep: %v", err)
		}
		if err := s.repo.DeleteSession(ctx, uID); err != nil {
			s.l.Warnf(ctx, "service.voiceService.Sweep: %v", err)
		}
		removed++
	}

	return removed, nil
}

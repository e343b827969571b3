package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/realtime-gateway/internal/models"
	"github.com/vogiaan1904/realtime-gateway/pkg/clock"
)

const (
	presenceLockName = "presence"
	stopTimeout      = 10 * time.Second
)

func (s *presenceService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return ErrAlreadyRunning
	}

	s.l.Info(ctx, "Starting presence jobs",
		"sweep_interval", s.cfg.SweepInterval,
		"gc_interval", s.cfg.GCInterval,
	)

	s.isRunning = true
	s.stopCh = make(chan struct{})
	sweepT := s.clk.NewTicker(s.cfg.SweepInterval)
	gcT := s.clk.NewTicker(s.cfg.GCInterval)
	s.tickers = []clock.Ticker{sweepT, gcT}

	s.wg.Add(3)
	go s.runLoop(ctx, sweepT, s.stopCh, func(ctx context.Context) {
		if n, err := s.Sweep(ctx); err == nil {
			s.m.Reverted(n)
		}
	})
	go s.runLoop(ctx, gcT, s.stopCh, func(ctx context.Context) {
		_ = s.GC(ctx)
	})
	go s.listen(ctx, s.stopCh)

	return nil
}

func (s *presenceService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return ErrNotRunning
	}

	close(s.stopCh)
	for _, t := range s.tickers {
		t.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.l.Info(context.Background(), "Presence jobs stopped gracefully")
	case <-time.After(stopTimeout):
		s.l.Warn(context.Background(), "Presence jobs shutdown timeout exceeded")
	}

	s.isRunning = false
	return nil
}

func (s *presenceService) runLoop(ctx context.Context, t clock.Ticker, stopCh <-chan struct{}, job func(ctx context.Context)) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-t.C():
			job(ctx)
		}
	}
}

func (s *presenceService) listen(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	sub := s.repo.Subscribe(ctx)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handleMessage(ctx, []byte(msg.Payload))
		}
	}
}

// Sweep reverts due scheduled statuses. Only the instance holding the
// tick lease does any work; the lease expires before the next tick.
func (s *presenceService) Sweep(ctx context.Context) (int, error) {
	ok, err := s.locks.AcquireLock(ctx, presenceLockName, s.instanceID, s.cfg.SweepInterval*9/10)
	if err != nil || !ok {
		return 0, err
	}

	nowMs := s.clk.Now().UnixMilli()
	due, err := s.schedules.PopDue(ctx, nowMs, s.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}

	reverted := 0
	for _, uID := range due {
		sched, err := s.schedules.Get(ctx, uID)
		if err != nil && !errors.Is(err, redis.Nil) {
			s.l.Warnf(ctx, "service.presenceService.Sweep: %v", err)
			continue
		}
		// Replaced after the pop: put it back in the index.
		if sched != nil && sched.Until > nowMs {
			ttl := time.Duration(sched.Until-nowMs)*time.Millisecond + s.cfg.ScheduleGrace
			if err := s.schedules.Set(ctx, uID, sched, ttl); err != nil {
				s.l.Warnf(ctx, "service.presenceService.Sweep: %v", err)
			}
			continue
		}
		if err := s.schedules.Delete(ctx, uID); err != nil {
			s.l.Warnf(ctx, "service.presenceService.Sweep: %v", err)
		}

		if sched != nil {
			cur, err := s.store.Fetch(ctx, uID)
			// Offline users keep their offline presence.
			if err == nil && cur.Status != models.StatusOffline {
				s.revert(ctx, uID, sched, cur)
				reverted++
			}
		}
		s.notifySchedule(ctx, uID, nil)
	}

	if len(due) > 0 {
		s.l.Debugf(ctx, "service.presenceService.Sweep: due=%d reverted=%d", len(due), reverted)
	}
	return reverted, nil
}

// GC refreshes the presence TTL of every user authenticated here.
func (s *presenceService) GC(ctx context.Context) error {
	if err := s.store.Refresh(ctx, s.hub.Users()); err != nil {
		s.l.Warnf(ctx, "service.presenceService.GC: %v", err)
		return err
	}
	return nil
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/realtime-gateway/config"
	"github.com/vogiaan1904/realtime-gateway/internal/metrics"
	"github.com/vogiaan1904/realtime-gateway/internal/models"
	"github.com/vogiaan1904/realtime-gateway/internal/protocol"
	repository "github.com/vogiaan1904/realtime-gateway/internal/repository/redis"
	"github.com/vogiaan1904/realtime-gateway/pkg/clock"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

const maxScheduleDuration = 7 * 24 * time.Hour

// listResyncer is the part of the member list engine presence needs.
type listResyncer interface {
	ScheduleResync(conn Conn, key string)
}

// presenceMessage travels on the presence pub/sub channel.
type presenceMessage struct {
	Origin   string           `json:"origin"`
	Presence *models.Presence `json:"presence,omitempty"`
	Schedule *scheduleNotice  `json:"schedule,omitempty"`
}

type presenceService struct {
	store      *PresenceStore
	repo       repository.PresenceRepository
	schedules  repository.ScheduleRepository
	locks      repository.LockRepository
	hub        Hub
	lists      listResyncer
	debounce   *Debouncer
	clk        clock.Clock
	m          *metrics.Metrics
	l          logger.Logger
	cfg        config.PresenceConfig
	instanceID string

	// Background jobs
	mu        sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	tickers   []clock.Ticker
	wg        sync.WaitGroup
}

func NewPresenceService(
	store *PresenceStore,
	repo repository.PresenceRepository,
	schedules repository.ScheduleRepository,
	locks repository.LockRepository,
	hub Hub,
	lists listResyncer,
	debounce *Debouncer,
	clk clock.Clock,
	m *metrics.Metrics,
	l logger.Logger,
	cfg config.PresenceConfig,
	instanceID string,
) PresenceService {
	return &presenceService{
		store:      store,
		repo:       repo,
		schedules:  schedules,
		locks:      locks,
		hub:        hub,
		lists:      lists,
		debounce:   debounce,
		clk:        clk,
		m:          m,
		l:          l,
		cfg:        cfg,
		instanceID: instanceID,
	}
}

func (s *presenceService) OnAuthenticated(ctx context.Context, conn Conn) error {
	uID := conn.UserID()
	s.debounce.Cancel(offlineKey(uID))

	p, err := s.store.Get(ctx, uID)
	if err != nil && !errors.Is(err, ErrPresenceNotFound) {
		s.l.Warnf(ctx, "service.presenceService.OnAuthenticated: %v", err)
	}
	if err != nil || p.Status == models.StatusOffline {
		p = models.Presence{UserID: uID, Status: models.StatusOnline, Activities: []models.Activity{}}
	}

	now := s.clk.Now().UnixMilli()
	sched, err := s.schedules.Get(ctx, uID)
	switch {
	case err == nil && sched.Until > now:
		p.Status = sched.Status
	default:
		if err == nil {
			// Stale schedule the sweeper has not reached yet.
			if err := s.schedules.Delete(ctx, uID); err != nil {
				s.l.Warnf(ctx, "service.presenceService.OnAuthenticated: %v", err)
			}
		} else if !errors.Is(err, redis.Nil) {
			s.l.Warnf(ctx, "service.presenceService.OnAuthenticated: %v", err)
		}
		sched = nil

		override, err := s.repo.GetOverride(ctx, uID)
		if err != nil {
			s.l.Warnf(ctx, "service.presenceService.OnAuthenticated: %v", err)
		}
		if override != "" {
			p.Status = override
		}
	}

	p.UpdatedAt = now
	if err := s.store.Put(ctx, p); err != nil {
		s.l.Errorf(ctx, "service.presenceService.OnAuthenticated: %v", err)
	}
	s.broadcast(ctx, p)
	s.notifySchedule(ctx, uID, sched)
	return nil
}

func (s *presenceService) HandleUpdate(ctx context.Context, conn Conn, in PresenceUpdateInput) error {
	upd, err := ValidatePresenceUpdate(in)
	if err != nil {
		return err
	}

	uID := conn.UserID()
	now := s.clk.Now().UnixMilli()
	status := upd.Status

	sched, err := s.schedules.Get(ctx, uID)
	if err == nil && sched.Until > now {
		status = sched.Status
	} else if upd.Persist {
		// Persisting online resets to the default.
		var err error
		if upd.Status == models.StatusOnline {
			err = s.repo.DeleteOverride(ctx, uID)
		} else {
			err = s.repo.SetOverride(ctx, uID, upd.Status)
		}
		if err != nil {
			s.l.Warnf(ctx, "service.presenceService.HandleUpdate: %v", err)
		}
	}

	p := models.Presence{
		UserID:     uID,
		Status:     status,
		Activities: upd.Activities,
		Device:     upd.Device,
		Since:      upd.Since,
		AFK:        upd.AFK,
		UpdatedAt:  now,
	}
	if err := s.store.Put(ctx, p); err != nil {
		s.l.Errorf(ctx, "service.presenceService.HandleUpdate: %v", err)
		return err
	}
	s.broadcast(ctx, p)
	return nil
}

// OnDisconnect marks the user offline after the offline delay unless
// another authenticated socket for the user shows up first.
func (s *presenceService) OnDisconnect(ctx context.Context, uID string) {
	if s.hub.HasUser(uID) {
		return
	}
	s.debounce.Schedule(offlineKey(uID), s.cfg.OfflineDelay, func() {
		if s.hub.HasUser(uID) {
			return
		}
		ctx := context.Background()
		p := offlinePresence(uID, s.clk.Now().UnixMilli())
		if err := s.store.Put(ctx, p); err != nil {
			s.l.Errorf(ctx, "service.presenceService.OnDisconnect: %v", err)
		}
		s.broadcast(ctx, p)
	})
}

func (s *presenceService) SetScheduledStatus(ctx context.Context, uID string, status models.PresenceStatus, durationMs int64) error {
	if !status.Valid() || status == models.StatusOffline {
		return ErrInvalidScheduleStatus
	}
	duration := time.Duration(durationMs) * time.Millisecond
	if durationMs < 0 || duration > maxScheduleDuration {
		return ErrInvalidScheduleDuration
	}

	now := s.clk.Now()
	cur := s.current(ctx, uID)

	revertTo := cur.Status
	if prev, err := s.schedules.Get(ctx, uID); err == nil && prev.Until > now.UnixMilli() {
		revertTo = prev.RevertTo
	}
	if revertTo == models.StatusOffline {
		revertTo = models.StatusOnline
	}

	sched := &models.PresenceSchedule{
		Status:   status,
		RevertTo: revertTo,
		Until:    now.Add(duration).UnixMilli(),
	}
	if err := s.schedules.Set(ctx, uID, sched, duration+s.cfg.ScheduleGrace); err != nil {
		s.l.Errorf(ctx, "service.presenceService.SetScheduledStatus: %v", err)
		return err
	}

	cur.Status = status
	cur.UpdatedAt = now.UnixMilli()
	if err := s.store.Put(ctx, cur); err != nil {
		s.l.Errorf(ctx, "service.presenceService.SetScheduledStatus: %v", err)
		return err
	}
	s.broadcast(ctx, cur)
	s.notifySchedule(ctx, uID, sched)
	return nil
}

func (s *presenceService) ClearScheduledStatus(ctx context.Context, uID string) error {
	sched, err := s.schedules.Get(ctx, uID)
	if err != nil && !errors.Is(err, redis.Nil) {
		s.l.Errorf(ctx, "service.presenceService.ClearScheduledStatus: %v", err)
		return err
	}
	if err := s.schedules.Delete(ctx, uID); err != nil {
		s.l.Errorf(ctx, "service.presenceService.ClearScheduledStatus: %v", err)
		return err
	}

	if sched != nil {
		s.revert(ctx, uID, sched, s.current(ctx, uID))
	}
	s.notifySchedule(ctx, uID, nil)
	return nil
}

// Get returns the stored presence, or offline when there is none.
func (s *presenceService) Get(ctx context.Context, uID string) (models.Presence, error) {
	p, err := s.store.Get(ctx, uID)
	if err != nil {
		if errors.Is(err, ErrPresenceNotFound) {
			return offlinePresence(uID, 0), nil
		}
		return models.Presence{}, err
	}
	return p, nil
}

// current is the user's presence with a missing or offline entry read
// as a bare online presence.
func (s *presenceService) current(ctx context.Context, uID string) models.Presence {
	p, err := s.store.Get(ctx, uID)
	if err != nil || p.Status == models.StatusOffline {
		return models.Presence{UserID: uID, Status: models.StatusOnline, Activities: []models.Activity{}}
	}
	return p
}

func (s *presenceService) revert(ctx context.Context, uID string, sched *models.PresenceSchedule, cur models.Presence) {
	status := sched.RevertTo
	if status == "" || status == models.StatusOffline {
		status = models.StatusOnline
	}
	cur.Status = status
	cur.UpdatedAt = s.clk.Now().UnixMilli()
	if err := s.store.Put(ctx, cur); err != nil {
		s.l.Errorf(ctx, "service.presenceService.revert: %v", err)
		return
	}
	s.broadcast(ctx, cur)
}

// broadcast fans p out locally and to every other instance.
func (s *presenceService) broadcast(ctx context.Context, p models.Presence) {
	s.fanOut(ctx, p)
	s.publish(ctx, presenceMessage{Origin: s.instanceID, Presence: &p})
}

// fanOut sends the full presence to the owner's sockets and the public
// view to every socket whose member list shows the user. Each affected
// list is resynced after the debounce delay.
func (s *presenceService) fanOut(ctx context.Context, p models.Presence) {
	public := p.Public()
	for _, c := range s.hub.Conns() {
		keys := c.Lists().VisibleKeys(p.UserID)
		switch {
		case c.UserID() == p.UserID:
			s.dispatch(ctx, c, protocol.EventPresenceUpdate, p)
		case len(keys) > 0:
			s.dispatch(ctx, c, protocol.EventPresenceUpdate, public)
		}
		for _, key := range keys {
			s.lists.ScheduleResync(c, key)
		}
	}
}

func (s *presenceService) notifySchedule(ctx context.Context, uID string, sched *models.PresenceSchedule) {
	n := scheduleNotice{UserID: uID, Schedule: sched}
	s.deliverSchedule(ctx, n)
	s.publish(ctx, presenceMessage{Origin: s.instanceID, Schedule: &n})
}

func (s *presenceService) deliverSchedule(ctx context.Context, n scheduleNotice) {
	for _, c := range s.hub.UserConns(n.UserID) {
		s.dispatch(ctx, c, protocol.EventPresenceScheduleUpdate, n)
	}
}

func (s *presenceService) publish(ctx context.Context, msg presenceMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.l.Errorf(ctx, "service.presenceService.publish: %v", err)
		return
	}
	if err := s.repo.Publish(ctx, data); err != nil {
		s.l.Warnf(ctx, "service.presenceService.publish: %v", err)
	}
}

// handleMessage applies a pub/sub message from another instance.
func (s *presenceService) handleMessage(ctx context.Context, payload []byte) {
	var msg presenceMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.l.Warnf(ctx, "service.presenceService.handleMessage: %v", err)
		return
	}
	if msg.Origin == s.instanceID {
		return
	}
	if msg.Presence != nil {
		s.store.Remember(*msg.Presence)
		s.fanOut(ctx, *msg.Presence)
	}
	if msg.Schedule != nil {
		s.deliverSchedule(ctx, *msg.Schedule)
	}
}

func (s *presenceService) dispatch(ctx context.Context, c Conn, event string, d any) {
	if err := c.Dispatch(event, d); err != nil {
		s.l.Debugf(ctx, "service.presenceService.dispatch: conn=%s event=%s: %v", c.ID(), event, err)
	}
}

func offlineKey(uID string) string {
	return "offline:" + uID
}

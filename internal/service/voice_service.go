package service

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/realtime-gateway/config"
	"github.com/vogiaan1904/realtime-gateway/internal/delivery/kafka"
	"github.com/vogiaan1904/realtime-gateway/internal/metrics"
	"github.com/vogiaan1904/realtime-gateway/internal/models"
	"github.com/vogiaan1904/realtime-gateway/internal/permission"
	"github.com/vogiaan1904/realtime-gateway/internal/protocol"
	"github.com/vogiaan1904/realtime-gateway/internal/repository/postgres"
	repository "github.com/vogiaan1904/realtime-gateway/internal/repository/redis"
	"github.com/vogiaan1904/realtime-gateway/pkg/clock"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

const (
	leftReasonExpired = "expired"
)

type voiceService struct {
	repo       repository.VoiceRepository
	store      SpaceStore
	locks      repository.LockRepository
	tokens     TokenService
	bus        EventBus
	peers      PeerCloser
	hub        Hub
	clk        clock.Clock
	m          *metrics.Metrics
	l          logger.Logger
	cfg        config.VoiceConfig
	instanceID string

	// Background jobs
	mu        sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	ticker    clock.Ticker
	wg        sync.WaitGroup
}

func NewVoiceService(
	repo repository.VoiceRepository,
	store SpaceStore,
	locks repository.LockRepository,
	tokens TokenService,
	bus EventBus,
	peers PeerCloser,
	hub Hub,
	clk clock.Clock,
	m *metrics.Metrics,
	l logger.Logger,
	cfg config.VoiceConfig,
	instanceID string,
) VoiceService {
	return &voiceService{
		repo:       repo,
		store:      store,
		locks:      locks,
		tokens:     tokens,
		bus:        bus,
		peers:      peers,
		hub:        hub,
		clk:        clk,
		m:          m,
		l:          l,
		cfg:        cfg,
		instanceID: instanceID,
	}
}

func (s *voiceService) HandleStateUpdate(ctx context.Context, conn Conn, in protocol.VoiceStateUpdate) error {
	uID := conn.UserID()

	prev, err := s.repo.GetState(ctx, uID)
	if err != nil && !errors.Is(err, redis.Nil) {
		s.l.Errorf(ctx, "service.voiceService.HandleStateUpdate: %v", err)
		return err
	}
	prevRoom := ""
	if prev != nil {
		prevRoom = prev.RoomID()
	} else {
		// The state may have expired before the sweeper ran; the last-room
		// record still names the channel set the user sits in.
		if prevRoom, err = s.repo.GetLastRoom(ctx, uID); err != nil {
			s.l.Warnf(ctx, "service.voiceService.HandleStateUpdate: %v", err)
		}
	}

	if in.ChannelID == nil {
		return s.leave(ctx, conn, in.SpaceID, prevRoom)
	}
	return s.join(ctx, conn, in, prev, prevRoom)
}

func (s *voiceService) leave(ctx context.Context, conn Conn, spaceID, prevRoom string) error {
	uID := conn.UserID()
	if err := s.repo.RemoveState(ctx, uID, prevRoom); err != nil {
		return err
	}
	if err := s.repo.DeleteSession(ctx, uID); err != nil {
		s.l.Warnf(ctx, "service.voiceService.leave: %v", err)
	}
	if prevRoom != "" && s.peers != nil {
		s.peers.ClosePeer(prevRoom, uID)
	}

	s.publishState(ctx, kafka.VoiceStateEvent{
		State: models.VoiceState{
			UserID:    uID,
			SpaceID:   spaceID,
			SessionID: conn.SessionID(),
			UpdatedAt: s.clk.Now().UnixMilli(),
		},
		PrevRoomID: prevRoom,
	})
	return nil
}

func (s *voiceService) join(ctx context.Context, conn Conn, in protocol.VoiceStateUpdate, prev *models.VoiceState, prevRoom string) error {
	uID := conn.UserID()

	view, err := loadSpaceView(ctx, s.store, in.SpaceID, *in.ChannelID)
	if err != nil {
		return err
	}
	if view.channel.Type != models.ChannelVoice {
		return ErrNotVoiceChannel
	}

	member, err := s.store.GetMember(ctx, in.SpaceID, uID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrNotMember
		}
		return err
	}

	perms := view.permissions(member)
	if !perms.Has(permission.Connect) {
		return ErrVoicePermission
	}

	now := s.clk.Now()
	st := &models.VoiceState{
		UserID:    uID,
		SpaceID:   in.SpaceID,
		ChannelID: in.ChannelID,
		SelfMute:  in.SelfMute || !perms.Has(permission.Speak),
		SelfDeaf:  in.SelfDeaf,
		SpaceMute: member.SpaceMute,
		SpaceDeaf: member.SpaceDeaf,
		SessionID: conn.SessionID(),
		UpdatedAt: now.UnixMilli(),
	}
	if err := s.save(ctx, st, prevRoom); err != nil {
		return err
	}

	room := st.RoomID()
	if prev == nil || prevRoom != room {
		if prevRoom != "" && s.peers != nil {
			s.peers.ClosePeer(prevRoom, uID)
		}
		if err := s.handOff(ctx, conn, st); err != nil {
			return err
		}
	}

	ev := kafka.VoiceStateEvent{State: *st}
	if prevRoom != room {
		ev.PrevRoomID = prevRoom
	}
	s.publishState(ctx, ev)
	return nil
}

// handOff issues the SFU token for the caller's new room and sends the
// room's current states.
func (s *voiceService) handOff(ctx context.Context, conn Conn, st *models.VoiceState) error {
	room := st.RoomID()
	token, err := s.tokens.MintVoice(st.UserID, st.SessionID, room)
	if err != nil {
		s.l.Errorf(ctx, "service.voiceService.handOff: %v", err)
		return err
	}

	vs := &models.VoiceSession{
		UserID:    st.UserID,
		SessionID: st.SessionID,
		RoomID:    room,
		IssuedAt:  s.clk.Now().UnixMilli(),
	}
	if err := s.repo.SaveSession(ctx, vs, s.cfg.SessionTTL); err != nil {
		return err
	}

	if err := conn.Dispatch(protocol.EventVoiceServerUpdate, VoiceServerUpdate{
		RoomID:   room,
		Endpoint: s.cfg.Endpoint,
		Token:    token,
	}); err != nil {
		return err
	}

	states, err := s.repo.ChannelStates(ctx, room)
	if err != nil {
		s.l.Warnf(ctx, "service.voiceService.handOff: %v", err)
	}
	if states == nil {
		states = []*models.VoiceState{}
	}
	return conn.Dispatch(protocol.EventVoiceStateSync, VoiceStateSync{
		ChannelID: *st.ChannelID,
		States:    states,
	})
}

func (s *voiceService) save(ctx context.Context, st *models.VoiceState, prevRoom string) error {
	expiresAt := s.clk.Now().Add(s.cfg.StateTTL + s.cfg.Grace).UnixMilli()
	return s.repo.SaveState(ctx, st, prevRoom, s.cfg.StateTTL, s.cfg.RoomTTL, expiresAt)
}

// ApplyModeration patches a live voice state in the given space. Only the
// instance holding the user's socket applies it.
func (s *voiceService) ApplyModeration(ctx context.Context, in kafka.VoiceModerationEvent) error {
	if !s.hub.HasUser(in.UserID) {
		return nil
	}

	st, err := s.repo.GetState(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	if st.SpaceID != in.SpaceID || st.ChannelID == nil {
		return nil
	}

	if in.Mute != nil {
		st.SpaceMute = *in.Mute
	}
	if in.Deaf != nil {
		st.SpaceDeaf = *in.Deaf
	}
	st.UpdatedAt = s.clk.Now().UnixMilli()

	room := st.RoomID()
	if err := s.save(ctx, st, room); err != nil {
		return err
	}
	s.publishState(ctx, kafka.VoiceStateEvent{State: *st})
	return nil
}

// Touch keeps a connected user's voice state alive.
func (s *voiceService) Touch(ctx context.Context, uID string) {
	st, err := s.repo.GetState(ctx, uID)
	if err != nil || st.ChannelID == nil {
		return
	}
	if err := s.save(ctx, st, st.RoomID()); err != nil {
		s.l.Warnf(ctx, "service.voiceService.Touch: %v", err)
	}
}

// VerifySession authenticates an SFU signaling request: the token must
// match the live voice session record.
func (s *voiceService) VerifySession(ctx context.Context, token string) (*models.VoiceSession, error) {
	claims, err := s.tokens.VerifyVoice(token)
	if err != nil {
		return nil, err
	}

	vs, err := s.repo.GetSession(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrVoiceSessionNotFound
		}
		return nil, err
	}
	if vs.SessionID != claims.SessionID || vs.RoomID != claims.RoomID {
		return nil, ErrVoiceSessionMismatch
	}
	return vs, nil
}

// DeliverStateEvent sends a state change to the local sockets of every
// user in the affected rooms.
func (s *voiceService) DeliverStateEvent(ctx context.Context, event kafka.VoiceStateEvent) {
	if event.Origin == s.instanceID {
		return
	}
	s.deliverState(ctx, event)
}

func (s *voiceService) DeliverLeftEvent(ctx context.Context, event kafka.VoiceLeftEvent) {
	if event.Origin == s.instanceID {
		return
	}
	s.deliverLeft(ctx, event)
}

func (s *voiceService) deliverState(ctx context.Context, event kafka.VoiceStateEvent) {
	rooms := []string{event.State.RoomID(), event.PrevRoomID}
	s.fanOut(ctx, rooms, event.State.UserID, event.State)
}

func (s *voiceService) deliverLeft(ctx context.Context, event kafka.VoiceLeftEvent) {
	spaceID, _ := splitRoomID(event.RoomID)
	s.fanOut(ctx, []string{event.RoomID}, event.UserID, models.VoiceState{
		UserID:    event.UserID,
		SpaceID:   spaceID,
		UpdatedAt: event.Timestamp.UnixMilli(),
	})
}

func (s *voiceService) fanOut(ctx context.Context, rooms []string, subject string, st models.VoiceState) {
	recipients := map[string]struct{}{subject: {}}
	for _, room := range rooms {
		if room == "" {
			continue
		}
		states, err := s.repo.ChannelStates(ctx, room)
		if err != nil {
			s.l.Warnf(ctx, "service.voiceService.fanOut: %v", err)
			continue
		}
		for _, other := range states {
			recipients[other.UserID] = struct{}{}
		}
	}

	for uID := range recipients {
		for _, c := range s.hub.UserConns(uID) {
			if err := c.Dispatch(protocol.EventVoiceStateUpdate, st); err != nil {
				s.l.Debugf(ctx, "service.voiceService.fanOut: conn=%s: %v", c.ID(), err)
			}
		}
	}
}

func (s *voiceService) publishState(ctx context.Context, event kafka.VoiceStateEvent) {
	event.Origin = s.instanceID
	s.deliverState(ctx, event)
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishVoiceState(ctx, event); err != nil {
		s.l.Warnf(ctx, "service.voiceService.publishState: %v", err)
	}
}

func (s *voiceService) publishLeft(ctx context.Context, event kafka.VoiceLeftEvent) {
	event.Origin = s.instanceID
	event.Timestamp = s.clk.Now()
	s.deliverLeft(ctx, event)
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishVoiceLeft(ctx, event); err != nil {
		s.l.Warnf(ctx, "service.voiceService.publishLeft: %v", err)
	}
}

func splitRoomID(roomID string) (spaceID, channelID string) {
	for i := 0; i < len(roomID); i++ {
		if roomID[i] == ':' {
			return roomID[:i], roomID[i+1:]
		}
	}
	return roomID, ""
}

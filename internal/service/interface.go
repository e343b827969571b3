package service

import (
	"context"

	"github.com/vogiaan1904/realtime-gateway/internal/delivery/kafka"
	"github.com/vogiaan1904/realtime-gateway/internal/models"
	"github.com/vogiaan1904/realtime-gateway/internal/protocol"
)

// Conn is the service-side view of an authenticated socket.
type Conn interface {
	ID() string
	UserID() string
	SessionID() string
	// Dispatch sends an event with the next sequence number.
	Dispatch(event string, d any) error
	Lists() *ListState
}

// Hub indexes the sockets authenticated on this instance.
type Hub interface {
	Conns() []Conn
	UserConns(uID string) []Conn
	HasUser(uID string) bool
	Users() []string
}

// SpaceStore reads the persistent space schema.
type SpaceStore interface {
	GetSpace(ctx context.Context, spaceID string) (*models.Space, error)
	GetChannel(ctx context.Context, channelID string) (*models.Channel, error)
	ListRoles(ctx context.Context, spaceID string) ([]models.Role, error)
	GetMember(ctx context.Context, spaceID, userID string) (*models.Member, error)
	ListMembers(ctx context.Context, spaceID string, offset, limit int) ([]models.Member, error)
	CountMembers(ctx context.Context, spaceID string) (int, error)
}

// EventBus carries voice state changes to the rest of the fleet.
type EventBus interface {
	PublishVoiceState(ctx context.Context, event kafka.VoiceStateEvent) error
	PublishVoiceLeft(ctx context.Context, event kafka.VoiceLeftEvent) error
}

// ChangeStream delivers per-user change notifications.
type ChangeStream interface {
	Subscribe(subject string, fn func(data []byte)) (unsubscribe func(), err error)
}

// PeerCloser tears down a user's SFU peer in a room.
type PeerCloser interface {
	ClosePeer(roomID, uID string)
}

type TokenVerifier interface {
	VerifyIdentify(token string) (*Identity, error)
}

type SessionService interface {
	Identify(ctx context.Context, token string) (*models.GatewaySession, error)
	Resume(ctx context.Context, ssID string) (*models.GatewaySession, error)
	Persist(ctx context.Context, ss *models.GatewaySession) error
}

type PresenceService interface {
	OnAuthenticated(ctx context.Context, conn Conn) error
	HandleUpdate(ctx context.Context, conn Conn, in PresenceUpdateInput) error
	OnDisconnect(ctx context.Context, uID string)
	SetScheduledStatus(ctx context.Context, uID string, status models.PresenceStatus, durationMs int64) error
	ClearScheduledStatus(ctx context.Context, uID string) error
	Get(ctx context.Context, uID string) (models.Presence, error)

	// Background jobs
	Sweep(ctx context.Context) (int, error)
	GC(ctx context.Context) error
	Start(ctx context.Context) error
	Stop() error
}

type MemberListService interface {
	HandleLazyRequest(ctx context.Context, conn Conn, in protocol.LazyRequest) error
	Resync(ctx context.Context, conn Conn, key string) error
	ScheduleResync(conn Conn, key string)
	ResyncSpace(spaceID string)
	OnUserChanged(conn Conn, uID string)
	Release(conn Conn)
}

type VoiceService interface {
	HandleStateUpdate(ctx context.Context, conn Conn, in protocol.VoiceStateUpdate) error
	ApplyModeration(ctx context.Context, in kafka.VoiceModerationEvent) error
	DeliverStateEvent(ctx context.Context, event kafka.VoiceStateEvent)
	DeliverLeftEvent(ctx context.Context, event kafka.VoiceLeftEvent)
	Touch(ctx context.Context, uID string)
	VerifySession(ctx context.Context, token string) (*models.VoiceSession, error)

	// Background jobs
	Sweep(ctx context.Context) (int, error)
	Start(ctx context.Context) error
	Stop() error
}

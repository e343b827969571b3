package service

import (
	"github.com/vogiaan1904/realtime-gateway/internal/models"
	"github.com/vogiaan1904/realtime-gateway/internal/protocol"
)

// Identity is what a verified Identify token grants.
type Identity struct {
	UserID    string
	SessionID string
}

type ActivityInput struct {
	Type       string                     `json:"type"`
	Name       string                     `json:"name"`
	Details    string                     `json:"details,omitempty"`
	State      string                     `json:"state,omitempty"`
	Timestamps *models.ActivityTimestamps `json:"timestamps,omitempty"`
}

// PresenceUpdateInput is the raw PresenceUpdate payload as sent by a
// client.
type PresenceUpdateInput struct {
	Status     string          `json:"status"`
	Activities []ActivityInput `json:"activities"`
	Device     string          `json:"device,omitempty"`
	Since      int64           `json:"since,omitempty"`
	AFK        bool            `json:"afk"`
	Persist    bool            `json:"persist,omitempty"`
}

// PresenceUpdate is a sanitized PresenceUpdateInput.
type PresenceUpdate struct {
	Status     models.PresenceStatus
	Activities []models.Activity
	Device     models.Device
	Since      int64
	AFK        bool
	Persist    bool
}

type scheduleNotice struct {
	UserID   string                   `json:"user_id"`
	Schedule *models.PresenceSchedule `json:"schedule"`
}

// Member list dispatch

type MemberListUpdate struct {
	SpaceID     string             `json:"space_id"`
	ChannelID   string             `json:"channel_id"`
	ID          string             `json:"id"`
	MemberCount int                `json:"member_count"`
	OnlineCount int                `json:"online_count"`
	Groups      []MemberListGroup  `json:"groups"`
	Ops         []MemberListSyncOp `json:"ops"`
}

type MemberListGroup struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Count int    `json:"count"`
}

type MemberListSyncOp struct {
	Op    string           `json:"op"`
	Range protocol.Range   `json:"range"`
	Items []MemberListItem `json:"items"`
}

// MemberListItem holds exactly one of Group or Member.
type MemberListItem struct {
	Group  *MemberListGroup `json:"group,omitempty"`
	Member *MemberListEntry `json:"member,omitempty"`
}

type MemberListEntry struct {
	models.Member
	Presence models.Presence `json:"presence"`
}

// Voice dispatches

type VoiceServerUpdate struct {
	RoomID   string `json:"room_id"`
	Endpoint string `json:"endpoint"`
	Token    string `json:"token"`
}

type VoiceStateSync struct {
	ChannelID string               `json:"channel_id"`
	States    []*models.VoiceState `json:"states"`
}

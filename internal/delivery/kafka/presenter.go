package kafka

import (
	"time"

	"github.com/vogiaan1904/realtime-gateway/internal/models"
)

// Events published by the gateway

type VoiceStateEvent struct {
	State models.VoiceState `json:"state"`
	// PrevRoomID is the room the user left, if any.
	PrevRoomID string    `json:"prev_room_id,omitempty"`
	Origin     string    `json:"origin"`
	Timestamp  time.Time `json:"timestamp"`
}

type VoiceLeftEvent struct {
	UserID    string    `json:"user_id"`
	RoomID    string    `json:"room_id"`
	Reason    string    `json:"reason"` // left, expired
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// Events consumed by the gateway

type VoiceModerationEvent struct {
	SpaceID   string    `json:"space_id"`
	UserID    string    `json:"user_id"`
	Mute      *bool     `json:"mute,omitempty"`
	Deaf      *bool     `json:"deaf,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type SpacePermissionsUpdatedEvent struct {
	SpaceID   string    `json:"space_id"`
	ChannelID string    `json:"channel_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type SpaceMemberUpdatedEvent struct {
	SpaceID   string    `json:"space_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

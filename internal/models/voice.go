package models

type VoiceState struct {
	UserID    string  `json:"user_id"`
	SpaceID   string  `json:"space_id"`
	ChannelID *string `json:"channel_id"`
	SelfMute  bool    `json:"self_mute"`
	SelfDeaf  bool    `json:"self_deaf"`
	SpaceMute bool    `json:"space_mute"`
	SpaceDeaf bool    `json:"space_deaf"`
	SessionID string  `json:"session_id"`
	UpdatedAt int64   `json:"updated_at"`
}

// RoomID returns the SFU room key for the state's channel, or "" when
// the user is not in a channel.
func (v VoiceState) RoomID() string {
	if v.ChannelID == nil {
		return ""
	}
	return RoomID(v.SpaceID, *v.ChannelID)
}

func RoomID(spaceID, channelID string) string {
	return spaceID + ":" + channelID
}

// VoiceSession binds a minted voice token to the SFU room it grants.
type VoiceSession struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	RoomID    string `json:"room_id"`
	IssuedAt  int64  `json:"issued_at"`
}

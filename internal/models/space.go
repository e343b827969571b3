package models

import "github.com/vogiaan1904/realtime-gateway/internal/permission"

type Space struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
}

// EveryoneRoleID is the id of the implicit @everyone role, which shares
// the space's id.
func (s Space) EveryoneRoleID() string { return s.ID }

type Role struct {
	ID          string              `json:"id"`
	SpaceID     string              `json:"space_id"`
	Name        string              `json:"name"`
	Position    int                 `json:"position"`
	Permissions permission.Bitfield `json:"permissions"`
	Hoist       bool                `json:"hoist"`
	Color       int                 `json:"color,omitempty"`
}

type ChannelType int

const (
	ChannelText ChannelType = iota
	ChannelVoice
	ChannelCategory
)

type Channel struct {
	ID         string                 `json:"id"`
	SpaceID    string                 `json:"space_id"`
	ParentID   *string                `json:"parent_id,omitempty"`
	Type       ChannelType            `json:"type"`
	Name       string                 `json:"name"`
	Overwrites []permission.Overwrite `json:"permission_overwrites"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	Bot      bool   `json:"bot,omitempty"`
}

type Member struct {
	User      User     `json:"user"`
	SpaceID   string   `json:"space_id"`
	Nick      string   `json:"nick,omitempty"`
	RoleIDs   []string `json:"roles"`
	JoinedAt  int64    `json:"joined_at"`
	SpaceMute bool     `json:"mute"`
	SpaceDeaf bool     `json:"deaf"`
}

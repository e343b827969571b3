package models

type PresenceStatus string

const (
	StatusOnline    PresenceStatus = "online"
	StatusIdle      PresenceStatus = "idle"
	StatusDND       PresenceStatus = "dnd"
	StatusInvisible PresenceStatus = "invisible"
	StatusOffline   PresenceStatus = "offline"
)

func (s PresenceStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusIdle, StatusDND, StatusInvisible, StatusOffline:
		return true
	}
	return false
}

// Online reports whether the status counts as online to other users.
func (s PresenceStatus) Online() bool {
	return s == StatusOnline || s == StatusIdle || s == StatusDND
}

type ActivityType string

const (
	ActivityPlaying   ActivityType = "playing"
	ActivityListening ActivityType = "listening"
	ActivityCustom    ActivityType = "custom"
)

type Device string

const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
	DeviceWeb     Device = "web"
)

type ActivityTimestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

type Activity struct {
	Type       ActivityType        `json:"type"`
	Name       string              `json:"name"`
	Details    string              `json:"details,omitempty"`
	State      string              `json:"state,omitempty"`
	Timestamps *ActivityTimestamps `json:"timestamps,omitempty"`
}

type Presence struct {
	UserID     string         `json:"user_id"`
	Status     PresenceStatus `json:"status"`
	Activities []Activity     `json:"activities"`
	Device     Device         `json:"device,omitempty"`
	Since      int64          `json:"since,omitempty"`
	AFK        bool           `json:"afk"`
	UpdatedAt  int64          `json:"updated_at"`
}

// Public is the presence as seen by anyone but its owner. Invisible
// users look offline and expose no activities.
func (p Presence) Public() Presence {
	if p.Status == StatusInvisible || p.Status == StatusOffline {
		return Presence{
			UserID:     p.UserID,
			Status:     StatusOffline,
			Activities: []Activity{},
			UpdatedAt:  p.UpdatedAt,
		}
	}
	if p.Activities == nil {
		p.Activities = []Activity{}
	}
	return p
}

// PresenceSchedule sets Status until Until (unix ms), then reverts.
type PresenceSchedule struct {
	Status   PresenceStatus `json:"status"`
	RevertTo PresenceStatus `json:"revert_to"`
	Until    int64          `json:"until"`
}

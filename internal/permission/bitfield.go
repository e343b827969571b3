// Package permission resolves effective channel permissions from role
// bits and category/channel overwrites.
package permission

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Bitfield is a set of permission flags. It travels as a decimal string
// on the wire so 64-bit values survive JavaScript clients.
type Bitfield uint64

const (
	CreateInstantInvite Bitfield = 1 << iota
	KickMembers
	BanMembers
	Administrator
	ManageChannels
	ManageSpace
	AddReactions
	ViewAuditLog
	PrioritySpeaker
	Stream
	ViewChannel
	SendMessages
	SendTTSMessages
	ManageMessages
	EmbedLinks
	AttachFiles
	ReadMessageHistory
	MentionEveryone
	UseExternalEmojis
	ViewSpaceInsights
	Connect
	Speak
	MuteMembers
	DeafenMembers
	MoveMembers
	UseVAD
	ChangeNickname
	ManageNicknames
	ManageRoles
)

// All holds every defined flag.
const All = ManageRoles<<1 - 1

var names = map[string]Bitfield{
	"CREATE_INSTANT_INVITE": CreateInstantInvite,
	"KICK_MEMBERS":          KickMembers,
	"BAN_MEMBERS":           BanMembers,
	"ADMINISTRATOR":         Administrator,
	"MANAGE_CHANNELS":       ManageChannels,
	"MANAGE_SPACE":          ManageSpace,
	"ADD_REACTIONS":         AddReactions,
	"VIEW_AUDIT_LOG":        ViewAuditLog,
	"PRIORITY_SPEAKER":      PrioritySpeaker,
	"STREAM":                Stream,
	"VIEW_CHANNEL":          ViewChannel,
	"SEND_MESSAGES":         SendMessages,
	"SEND_TTS_MESSAGES":     SendTTSMessages,
	"MANAGE_MESSAGES":       ManageMessages,
	"EMBED_LINKS":           EmbedLinks,
	"ATTACH_FILES":          AttachFiles,
	"READ_MESSAGE_HISTORY":  ReadMessageHistory,
	"MENTION_EVERYONE":      MentionEveryone,
	"USE_EXTERNAL_EMOJIS":   UseExternalEmojis,
	"VIEW_SPACE_INSIGHTS":   ViewSpaceInsights,
	"CONNECT":               Connect,
	"SPEAK":                 Speak,
	"MUTE_MEMBERS":          MuteMembers,
	"DEAFEN_MEMBERS":        DeafenMembers,
	"MOVE_MEMBERS":          MoveMembers,
	"USE_VAD":               UseVAD,
	"CHANGE_NICKNAME":       ChangeNickname,
	"MANAGE_NICKNAMES":      ManageNicknames,
	"MANAGE_ROLES":          ManageRoles,
}

// Has reports whether every bit of p is set.
func (b Bitfield) Has(p Bitfield) bool { return b&p == p }

// HasAny reports whether at least one of the given flags is set.
func (b Bitfield) HasAny(ps ...Bitfield) bool {
	for _, p := range ps {
		if b&p != 0 {
			return true
		}
	}
	return false
}

// HasAll reports whether all of the given flags are set.
func (b Bitfield) HasAll(ps ...Bitfield) bool {
	for _, p := range ps {
		if !b.Has(p) {
			return false
		}
	}
	return true
}

func (b Bitfield) Add(p Bitfield) Bitfield    { return b | p }
func (b Bitfield) Remove(p Bitfield) Bitfield { return b &^ p }

// Parse accepts a decimal value or a "|"-separated list of flag names.
func Parse(s string) (Bitfield, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return Bitfield(v), nil
	}
	var b Bitfield
	for _, part := range strings.Split(s, "|") {
		flag, ok := names[strings.ToUpper(strings.TrimSpace(part))]
		if !ok {
			return 0, &UnknownFlagError{Name: part}
		}
		b |= flag
	}
	return b, nil
}

type UnknownFlagError struct {
	Name string
}

func (e *UnknownFlagError) Error() string {
	return "permission: unknown flag " + strconv.Quote(e.Name)
}

func (b Bitfield) String() string {
	return strconv.FormatUint(uint64(b), 10)
}

func (b Bitfield) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *Bitfield) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := Parse(s)
		if err != nil {
			return err
		}
		*b = v
		return nil
	}
	var v uint64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = Bitfield(v)
	return nil
}

// Package protocol defines the gateway wire format: opcodes, the frame
// envelope, payload codecs and zlib-stream compression.
package protocol

import "strconv"

type Opcode int

const (
	OpDispatch              Opcode = 0
	OpHeartbeat             Opcode = 1
	OpIdentify              Opcode = 2
	OpPresenceUpdate        Opcode = 3
	OpVoiceStateUpdate      Opcode = 4
	OpResume                Opcode = 6
	OpInvalidSession        Opcode = 9
	OpHello                 Opcode = 10
	OpHeartbeatAck          Opcode = 11
	OpLazyRequest           Opcode = 14
	OpPresenceScheduleSet   Opcode = 40
	OpPresenceScheduleClear Opcode = 41
)

var opNames = map[Opcode]string{
	OpDispatch:              "DISPATCH",
	OpHeartbeat:             "HEARTBEAT",
	OpIdentify:              "IDENTIFY",
	OpPresenceUpdate:        "PRESENCE_UPDATE",
	OpVoiceStateUpdate:      "VOICE_STATE_UPDATE",
	OpResume:                "RESUME",
	OpInvalidSession:        "INVALID_SESSION",
	OpHello:                 "HELLO",
	OpHeartbeatAck:          "HEARTBEAT_ACK",
	OpLazyRequest:           "LAZY_REQUEST",
	OpPresenceScheduleSet:   "PRESENCE_SCHEDULE_SET",
	OpPresenceScheduleClear: "PRESENCE_SCHEDULE_CLEAR",
}

func (o Opcode) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return "OP_" + strconv.Itoa(int(o))
}

// Known reports whether the server handles o when sent by a client.
func (o Opcode) Known() bool {
	switch o {
	case OpHeartbeat, OpIdentify, OpResume, OpLazyRequest, OpPresenceUpdate,
		OpPresenceScheduleSet, OpPresenceScheduleClear, OpVoiceStateUpdate:
		return true
	}
	return false
}

// Close codes sent in the WebSocket close frame.
const (
	CloseUnknownError      = 4000
	CloseInvalidConnection = 4001
	CloseNotAuthenticated  = 4003
	CloseInvalidSession    = 4006
	CloseSessionTimedOut   = 4009
)

// Dispatch event names, carried in the frame's t field.
const (
	EventReady                  = "READY"
	EventResumed                = "RESUMED"
	EventPresenceUpdate         = "PRESENCE_UPDATE"
	EventPresenceScheduleUpdate = "PRESENCE_SCHEDULE_UPDATE"
	EventSpaceMemberListUpdate  = "SPACE_MEMBER_LIST_UPDATE"
	EventVoiceServerUpdate      = "VOICE_SERVER_UPDATE"
	EventVoiceStateSync         = "VOICE_STATE_SYNC"
	EventVoiceStateUpdate       = "VOICE_STATE_UPDATE"
)

package service

import "errors"

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrSessionNotFound = errors.New("session not found")

	ErrInvalidStatus           = errors.New("invalid presence status")
	ErrPersistOffline          = errors.New("cannot persist offline status")
	ErrInvalidScheduleStatus   = errors.New("invalid scheduled status")
	ErrInvalidScheduleDuration = errors.New("scheduled status duration out of range")
	ErrPresenceNotFound        = errors.New("presence not found")

	ErrNotMember       = errors.New("user is not a member of the space")
	ErrChannelNotFound = errors.New("channel not found")
	ErrSpaceNotFound   = errors.New("space not found")
	ErrMissingViewPerm = errors.New("missing view channel permission")
	ErrNoChannelRanges = errors.New("lazy request carries no channel")
	ErrVoicePermission = errors.New("missing voice permission")
	ErrNotVoiceChannel = errors.New("channel is not a voice channel")

	ErrVoiceSessionNotFound = errors.New("voice session not found")
	ErrVoiceSessionMismatch = errors.New("voice token does not match the active session")

	ErrAlreadyRunning = errors.New("already running")
	ErrNotRunning     = errors.New("not running")
)

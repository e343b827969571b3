package kafka

const (
	TopicVoiceStateUpdated = "voice.state.updated"
	TopicVoiceStateLeft    = "voice.state.left"

	TopicVoiceModeration         = "voice.moderation"
	TopicSpacePermissionsUpdated = "space.permissions.updated"
	TopicSpaceMemberUpdated      = "space.member.updated"
)

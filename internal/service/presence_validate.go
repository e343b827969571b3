package service

import (
	"strings"
	"unicode/utf8"

	"github.com/vogiaan1904/realtime-gateway/internal/models"
)

const (
	maxActivities     = 5
	maxActivityString = 128
)

// ValidatePresenceUpdate sanitizes a client PresenceUpdate. It rejects
// unknown statuses and persisting offline; everything else is clamped.
func ValidatePresenceUpdate(in PresenceUpdateInput) (PresenceUpdate, error) {
	status := models.PresenceStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	if status == "" {
		status = models.StatusOnline
	}
	if !status.Valid() {
		return PresenceUpdate{}, ErrInvalidStatus
	}
	if in.Persist && status == models.StatusOffline {
		return PresenceUpdate{}, ErrPersistOffline
	}

	activities := make([]models.Activity, 0, len(in.Activities))
	for _, a := range in.Activities {
		if len(activities) == maxActivities {
			break
		}
		name := truncate(strings.TrimSpace(a.Name))
		if name == "" {
			continue
		}
		activities = append(activities, models.Activity{
			Type:       activityType(a.Type),
			Name:       name,
			Details:    truncate(a.Details),
			State:      truncate(a.State),
			Timestamps: a.Timestamps,
		})
	}

	since := in.Since
	if since < 0 {
		since = 0
	}

	return PresenceUpdate{
		Status:     status,
		Activities: activities,
		Device:     device(in.Device),
		Since:      since,
		AFK:        in.AFK,
		Persist:    in.Persist,
	}, nil
}

func activityType(t string) models.ActivityType {
	switch models.ActivityType(t) {
	case models.ActivityPlaying, models.ActivityListening, models.ActivityCustom:
		return models.ActivityType(t)
	}
	return models.ActivityCustom
}

func device(d string) models.Device {
	switch models.Device(d) {
	case models.DeviceDesktop, models.DeviceMobile, models.DeviceWeb:
		return models.Device(d)
	}
	return models.DeviceDesktop
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxActivityString {
		return s
	}
	r := []rune(s)
	return string(r[:maxActivityString])
}

package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// ClockFormat is the wall-clock layout used by quiet-hours windows.
const ClockFormat = "15:04"

// QuietHours is a daily window during which non-urgent notifications are suppressed.
type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone,omitempty"`
}

// Settings is the normalised form of a user's preference blobs.
type Settings struct {
	NotificationsEnabled bool
	Channels             map[NotificationType][]Channel
	QuietHours           QuietHours
}

// RawSettings holds the JSON blobs exactly as persisted on the user row.
type RawSettings struct {
	Preferences       string
	NotificationPrefs string
	QuietHours        string
}

// DefaultSettings returns the settings of a user who never configured anything.
func DefaultSettings() Settings {
	return Settings{
		NotificationsEnabled: true,
		Channels:             defaultChannelMap(),
		QuietHours:           QuietHours{},
	}
}

// ChannelsFor returns the configured channels for t, falling back to the type defaults.
func (s Settings) ChannelsFor(t NotificationType) []Channel {
	if channels, ok := s.Channels[t]; ok {
		return channels
	}
	return t.DefaultChannels()
}

// DecodeSettings merges the persisted blobs over the defaults. Missing or
// malformed blobs leave the corresponding defaults in place.
func DecodeSettings(raw RawSettings) Settings {
	settings := DefaultSettings()
	settings.NotificationsEnabled = decodeNotificationsEnabled(raw.Preferences)
	settings.Channels = decodeChannels(raw.NotificationPrefs)
	settings.QuietHours = decodeQuietHours(raw.QuietHours)
	return settings
}

// EncodeSettings renders the notification channel and quiet-hours blobs.
// The preferences blob belongs to the client and is never rewritten here.
func EncodeSettings(s Settings) (notificationPrefs, quietHours string, err error) {
	channels := make(map[string][]string, len(s.Channels))
	for t, list := range s.Channels {
		names := make([]string, 0, len(list))
		for _, c := range list {
			names = append(names, string(c))
		}
		channels[string(t)] = names
	}
	prefsBody, err := json.Marshal(channels)
	if err != nil {
		return "", "", err
	}
	quietBody, err := json.Marshal(s.QuietHours)
	if err != nil {
		return "", "", err
	}
	return string(prefsBody), string(quietBody), nil
}

func defaultChannelMap() map[NotificationType][]Channel {
	out := make(map[NotificationType][]Channel, len(KnownNotificationTypes))
	for _, t := range KnownNotificationTypes {
		out[t] = t.DefaultChannels()
	}
	return out
}

func decodeNotificationsEnabled(blob string) bool {
	if strings.TrimSpace(blob) == "" {
		return true
	}
	var prefs struct {
		Notifications *bool `json:"notifications"`
	}
	if err := json.Unmarshal([]byte(blob), &prefs); err != nil || prefs.Notifications == nil {
		return true
	}
	return *prefs.Notifications
}

func decodeChannels(blob string) map[NotificationType][]Channel {
	out := defaultChannelMap()
	if strings.TrimSpace(blob) == "" {
		return out
	}
	var parsed map[string][]string
	if err := json.Unmarshal([]byte(blob), &parsed); err != nil {
		return out
	}
	for name, list := range parsed {
		t := NotificationType(name)
		if !t.Valid() {
			continue
		}
		seen := make(map[Channel]struct{}, len(list))
		channels := make([]Channel, 0, len(list))
		for _, item := range list {
			c := Channel(strings.TrimSpace(item))
			if !c.Deliverable() {
				continue
			}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			channels = append(channels, c)
		}
		out[t] = channels
	}
	return out
}

func decodeQuietHours(blob string) QuietHours {
	if strings.TrimSpace(blob) == "" {
		return QuietHours{}
	}
	var parsed QuietHours
	if err := json.Unmarshal([]byte(blob), &parsed); err != nil {
		return QuietHours{}
	}
	return NormalizeQuietHours(parsed)
}

// NormalizeQuietHours zero-pads the window bounds and disables windows whose
// bounds are not valid HH:MM clock times. Unknown timezones fall back to UTC.
func NormalizeQuietHours(q QuietHours) QuietHours {
	start, errStart := time.Parse(ClockFormat, strings.TrimSpace(q.Start))
	end, errEnd := time.Parse(ClockFormat, strings.TrimSpace(q.End))
	if errStart != nil || errEnd != nil {
		return QuietHours{Enabled: false, Start: q.Start, End: q.End}
	}
	q.Start = start.Format(ClockFormat)
	q.End = end.Format(ClockFormat)
	if q.Timezone != "" {
		if _, err := time.LoadLocation(q.Timezone); err != nil {
			q.Timezone = ""
		}
	}
	return q
}

package quiethours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/engagement/internal/domain"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, time.June, 1, hour, minute, 0, 0, time.UTC)
}

func TestIsQuietDisabled(t *testing.T) {
	cfg := domain.QuietHours{Enabled: false, Start: "00:00", End: "23:59"}
	require.False(t, IsQuiet(cfg, at(12, 0)))
}

func TestIsQuietOvernightWindow(t *testing.T) {
	cfg := domain.QuietHours{Enabled: true, Start: "22:00", End: "08:00"}

	require.True(t, IsQuiet(cfg, at(23, 30)))
	require.True(t, IsQuiet(cfg, at(3, 0)))
	require.True(t, IsQuiet(cfg, at(22, 0)))
	require.True(t, IsQuiet(cfg, at(8, 0)))
	require.False(t, IsQuiet(cfg, at(12, 0)))
	require.False(t, IsQuiet(cfg, at(8, 1)))
	require.False(t, IsQuiet(cfg, at(21, 59)))
}

func TestIsQuietSameDayWindow(t *testing.T) {
	cfg := domain.QuietHours{Enabled: true, Start: "13:00", End: "14:30"}

	require.True(t, IsQuiet(cfg, at(13, 0)))
	require.True(t, IsQuiet(cfg, at(14, 30)))
	require.False(t, IsQuiet(cfg, at(12, 59)))
	require.False(t, IsQuiet(cfg, at(14, 31)))
}

func TestIsQuietUnpaddedBounds(t *testing.T) {
	cfg := domain.QuietHours{Enabled: true, Start: "9:00", End: "17:00"}
	require.True(t, IsQuiet(cfg, at(10, 0)))
	require.False(t, IsQuiet(cfg, at(8, 0)))
}

func TestIsQuietMalformedBoundsNeverQuiet(t *testing.T) {
	cfg := domain.QuietHours{Enabled: true, Start: "late", End: "08:00"}
	require.False(t, IsQuiet(cfg, at(3, 0)))
}

func TestIsQuietUsesTimezone(t *testing.T) {
	cfg := domain.QuietHours{Enabled: true, Start: "22:00", End: "07:00", Timezone: "Asia/Tokyo"}

	// 14:00 UTC is 23:00 in Tokyo.
	require.True(t, IsQuiet(cfg, at(14, 0)))
	// 03:00 UTC is 12:00 in Tokyo.
	require.False(t, IsQuiet(cfg, at(3, 0)))
}

func TestIsQuietUnknownTimezoneFallsBackToUTC(t *testing.T) {
	cfg := domain.QuietHours{Enabled: true, Start: "22:00", End: "07:00", Timezone: "Mars/Olympus"}
	require.True(t, IsQuiet(cfg, at(23, 0)))
}

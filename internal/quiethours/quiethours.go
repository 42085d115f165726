// Package quiethours decides whether a moment falls inside a user's quiet window.
package quiethours

import (
	"time"
	_ "time/tzdata"

	"example.com/engagement/internal/domain"
)

// IsQuiet reports whether now lies inside the configured window. Bounds are
// inclusive and compared as HH:MM wall-clock strings in the window's timezone
// (UTC when unset). A start later than the end wraps past midnight.
func IsQuiet(cfg domain.QuietHours, now time.Time) bool {
	if !cfg.Enabled {
		return false
	}
	cfg = domain.NormalizeQuietHours(cfg)
	if !cfg.Enabled {
		return false
	}

	clock := now.In(location(cfg.Timezone)).Format(domain.ClockFormat)
	if cfg.Start <= cfg.End {
		return cfg.Start <= clock && clock <= cfg.End
	}
	return clock >= cfg.Start || clock <= cfg.End
}

func location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

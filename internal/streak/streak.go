// Package streak computes consecutive-day completion streaks from habit logs.
package streak

import (
	"sort"
	"time"

	"example.com/engagement/internal/domain"
)

const day = 24 * time.Hour

// Calculate returns the length of the run of consecutive completed UTC days
// ending today or yesterday relative to now. Days with several completed logs
// count once; a run whose latest day is older than yesterday counts as zero.
func Calculate(logs []domain.HabitLog, now time.Time) int {
	days := completedDays(logs)
	if len(days) == 0 {
		return 0
	}

	today := domain.UTCDay(now)
	anchor := days[0]
	if !anchor.Equal(today) && !anchor.Equal(today.Add(-day)) {
		return 0
	}

	streak := 1
	current := anchor
	for _, d := range days[1:] {
		if current.Sub(d) != day {
			break
		}
		streak++
		current = d
	}
	return streak
}

// CompletedOn reports whether any completed log falls on the UTC day of at.
func CompletedOn(logs []domain.HabitLog, at time.Time) bool {
	target := domain.UTCDay(at)
	for _, l := range logs {
		if l.Completed && domain.UTCDay(l.Date).Equal(target) {
			return true
		}
	}
	return false
}

// Max returns the longest current streak across habits.
func Max(habits []domain.Habit, now time.Time) int {
	best := 0
	for _, h := range habits {
		if s := Calculate(h.Logs, now); s > best {
			best = s
		}
	}
	return best
}

// completedDays returns the distinct completed UTC days, newest first.
func completedDays(logs []domain.HabitLog) []time.Time {
	seen := make(map[time.Time]struct{}, len(logs))
	days := make([]time.Time, 0, len(logs))
	for _, l := range logs {
		if !l.Completed {
			continue
		}
		d := domain.UTCDay(l.Date)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })
	return days
}

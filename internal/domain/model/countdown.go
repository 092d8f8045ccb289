package model

import (
	"fmt"
	"time"
)

// ExpiringSoonWindow is the threshold below which a trial counts as expiring.
const ExpiringSoonWindow = 24 * time.Hour

// Countdown is the display-only view derived from the canonical expiry.
type Countdown struct {
	Remaining    time.Duration
	Label        string
	ExpiringSoon bool
	Expired      bool
}

// DeriveCountdown turns the canonical expiry into a human label and an
// expiring-soon flag. A past or missing expiry is an explicit expired state,
// never a negative duration.
func DeriveCountdown(now time.Time, end *time.Time) Countdown {
	if end == nil || !end.After(now) {
		return Countdown{Label: "expired", Expired: true}
	}
	remaining := end.Sub(now)
	return Countdown{
		Remaining:    remaining,
		Label:        formatRemaining(remaining),
		ExpiringSoon: remaining < ExpiringSoonWindow,
	}
}

func formatRemaining(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		days := int(d / (24 * time.Hour))
		hours := int((d % (24 * time.Hour)) / time.Hour)
		return fmt.Sprintf("%dd %dh left", days, hours)
	case d >= time.Hour:
		hours := int(d / time.Hour)
		mins := int((d % time.Hour) / time.Minute)
		return fmt.Sprintf("%dh %dm left", hours, mins)
	default:
		mins := int(d / time.Minute)
		if mins < 1 {
			return "less than a minute left"
		}
		return fmt.Sprintf("%dm left", mins)
	}
}

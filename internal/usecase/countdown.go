// File: internal/usecase/countdown.go
package usecase

import (
	"context"
	"time"

	"membership-billing/internal/domain/model"
)

// maxCountdownInterval keeps the displayed remaining time at most a minute
// stale.
const maxCountdownInterval = time.Minute

// CountdownTicker periodically re-derives a trial countdown from a source of
// truth and publishes each snapshot on C.
type CountdownTicker struct {
	interval time.Duration
	source   func(ctx context.Context) (*time.Time, error)

	C chan model.Countdown
}

// NewCountdownTicker builds a ticker that re-reads the deadline through
// source on every tick. Intervals above one minute are clamped down.
func NewCountdownTicker(interval time.Duration, source func(ctx context.Context) (*time.Time, error)) *CountdownTicker {
	if interval <= 0 || interval > maxCountdownInterval {
		interval = maxCountdownInterval
	}
	return &CountdownTicker{
		interval: interval,
		source:   source,
		C:        make(chan model.Countdown, 1),
	}
}

// Run emits an immediate snapshot and then one per tick until ctx is
// cancelled, closing C on the way out. Source errors skip the tick; the next
// one retries.
func (t *CountdownTicker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	defer close(t.C)

	t.emit(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.emit(ctx)
		}
	}
}

func (t *CountdownTicker) emit(ctx context.Context) {
	end, err := t.source(ctx)
	if err != nil {
		return
	}
	cd := model.DeriveCountdown(time.Now(), end)
	select {
	case t.C <- cd:
	default:
		// Drop when the consumer lags; a fresher snapshot follows shortly.
		select {
		case <-t.C:
		default:
		}
		select {
		case t.C <- cd:
		default:
		}
	}
}

package repository

import (
	"context"
	"time"
)

// EventDedupStore records processed webhook event identities so redelivered
// events become idempotent no-ops.
//
// The protocol is claim/confirm/release:
//   - Claim atomically reserves an event id with a short pending TTL. A false
//     return means another handler holds or has confirmed the id, so the
//     caller must skip processing.
//   - Confirm extends the reservation to the full dedup window. It is called
//     only after successful persistence, so a crash mid-processing lets the
//     pending claim expire and a redelivery reprocess safely.
//   - Release drops a claim after a failed processing attempt so the
//     gateway's retry is not locked out for the pending TTL.
type EventDedupStore interface {
	Claim(ctx context.Context, eventID string, pending time.Duration) (bool, error)
	Confirm(ctx context.Context, eventID string, window time.Duration) error
	Release(ctx context.Context, eventID string) error
}

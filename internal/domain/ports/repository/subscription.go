package repository

import (
	"context"
	"time"

	"membership-billing/internal/domain/model"
)

// SubscriptionRepository is the port for canonical subscription records.
type SubscriptionRepository interface {
	// Save upserts the record keyed by identity.
	Save(ctx context.Context, tx Tx, rec *model.SubscriptionRecord) error

	// SaveAdvisory persists an advisory record only while the stored row is
	// absent or itself advisory, atomically. It reports whether the write
	// took effect, so a canonical row committed by a concurrent
	// authoritative apply is never replaced.
	SaveAdvisory(ctx context.Context, tx Tx, rec *model.SubscriptionRecord) (bool, error)
	FindByIdentity(ctx context.Context, tx Tx, identity string) (*model.SubscriptionRecord, error)
	FindByCustomerID(ctx context.Context, tx Tx, customerID string) (*model.SubscriptionRecord, error)

	// FindStaleAdvisory returns records whose state was last written before
	// cutoff and still carries no gateway subscription confirmation. Used by
	// the reconciler to recover from lost webhooks.
	FindStaleAdvisory(ctx context.Context, tx Tx, cutoff time.Time, limit int) ([]*model.SubscriptionRecord, error)

	// CountByState feeds the subscription gauge.
	CountByState(ctx context.Context, tx Tx) (map[model.SubscriptionState]int, error)
}

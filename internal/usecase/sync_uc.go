// File: internal/usecase/sync_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"membership-billing/internal/domain"
	"membership-billing/internal/domain/model"
	"membership-billing/internal/domain/ports/adapter"
	"membership-billing/internal/domain/ports/repository"
)

var _ SyncUseCase = (*syncUC)(nil)

// EventApplier is the single authoritative write path for subscription
// state. Implemented by WebhookUseCase.
type EventApplier interface {
	ApplyEvent(ctx context.Context, ev model.BillingEvent) (ProcessResult, error)
}

// SyncUseCase keeps a client's optimistic view converging toward canonical
// billing state.
type SyncUseCase interface {
	// OptimisticActivate records a client's post-checkout prediction as an
	// advisory record. It never overwrites canonical state.
	OptimisticActivate(ctx context.Context, userID string, predictedEnd time.Time) error

	// Reconcile returns the current record and whether it is canonical.
	Reconcile(ctx context.Context, userID string) (*model.SubscriptionRecord, bool, error)

	// Poll waits for canonical state to land, re-reading on a fixed
	// interval. It gives up after attempts tries and falls back to Recheck.
	Poll(ctx context.Context, userID string, interval time.Duration, attempts int) (*model.SubscriptionRecord, error)

	// Recheck asks the billing gateway for the live subscription and feeds
	// the answer through the authoritative apply path.
	Recheck(ctx context.Context, userID string) (*model.SubscriptionRecord, error)
}

type syncUC struct {
	subs     repository.SubscriptionRepository
	profiles repository.MembershipRepository
	gateway  adapter.BillingGateway
	applier  EventApplier
	log      *zerolog.Logger
}

func NewSyncUseCase(subs repository.SubscriptionRepository, profiles repository.MembershipRepository, gw adapter.BillingGateway, applier EventApplier, logger *zerolog.Logger) *syncUC {
	l := logger.With().Str("component", "SyncUC").Logger()
	return &syncUC{subs: subs, profiles: profiles, gateway: gw, applier: applier, log: &l}
}

func (u *syncUC) OptimisticActivate(ctx context.Context, userID string, predictedEnd time.Time) error {
	prof, err := u.profiles.FindByUserID(ctx, repository.NoTX, userID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	identity := prof.Identity()

	existing, err := u.subs.FindByIdentity(ctx, repository.NoTX, identity)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("load record: %w", err)
	}
	if existing != nil && !existing.Advisory {
		// Canonical state already landed; the prediction is obsolete.
		return nil
	}

	now := time.Now()
	rec := model.NewSubscriptionRecord(identity)
	rec.State = model.SubscriptionStateTrialing
	rec.Subscribed = true
	rec.Tier = model.TierPremium
	rec.SubscriptionEnd = &predictedEnd
	rec.Advisory = true
	// UpdatedAt stays zero so any authoritative event outranks this write.
	// The conditional upsert refuses to touch a canonical row, closing the
	// window where an authoritative event commits between the read above and
	// this write.
	stored, err := u.subs.SaveAdvisory(ctx, repository.NoTX, rec)
	if err != nil {
		return fmt.Errorf("save advisory record: %w", err)
	}
	if !stored {
		u.log.Info().Str("user_id", userID).Msg("canonical record landed mid-activation, prediction dropped")
		return nil
	}

	prof.AccessFlag = true
	if prof.TrialStartedAt == nil {
		prof.TrialStartedAt = &now
	}
	prof.UpdatedAt = now
	if err := u.profiles.Save(ctx, repository.NoTX, prof); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}

	u.log.Info().Str("user_id", userID).Time("predicted_end", predictedEnd).Msg("advisory activation recorded")
	return nil
}

func (u *syncUC) Reconcile(ctx context.Context, userID string) (*model.SubscriptionRecord, bool, error) {
	prof, err := u.profiles.FindByUserID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, false, fmt.Errorf("load profile: %w", err)
	}
	rec, err := u.subs.FindByIdentity(ctx, repository.NoTX, prof.Identity())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load record: %w", err)
	}
	return rec, !rec.Advisory, nil
}

func (u *syncUC) Poll(ctx context.Context, userID string, interval time.Duration, attempts int) (*model.SubscriptionRecord, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < attempts; i++ {
		rec, canonical, err := u.Reconcile(ctx, userID)
		if err != nil {
			return nil, err
		}
		if canonical {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	// Events never arrived; go ask the gateway directly.
	return u.Recheck(ctx, userID)
}

func (u *syncUC) Recheck(ctx context.Context, userID string) (*model.SubscriptionRecord, error) {
	prof, err := u.profiles.FindByUserID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if prof.CustomerID == "" {
		return nil, fmt.Errorf("%w: no billing customer for user", domain.ErrNotFound)
	}

	gctx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	snap, err := u.gateway.FetchSubscription(gctx, prof.CustomerID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("fetch subscription: %w", err)
	}

	ev := snapshotEvent(prof.CustomerID, prof.Email, snap)
	if _, err := u.applier.ApplyEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("apply snapshot: %w", err)
	}

	rec, err := u.subs.FindByIdentity(ctx, repository.NoTX, prof.Identity())
	if err != nil {
		return nil, fmt.Errorf("reload record: %w", err)
	}
	return rec, nil
}

// snapshotEvent turns a live gateway read into a synthetic event so the
// recheck path shares the exact ordering and dedup semantics of the feed.
func snapshotEvent(customerID, email string, snap *adapter.SubscriptionSnapshot) model.BillingEvent {
	if snap == nil {
		return model.SubscriptionDeleted{EventMeta: model.EventMeta{
			ID:         "recheck-" + customerID,
			Time:       time.Now(),
			CustomerID: customerID,
			Email:      email,
		}}
	}
	return model.SubscriptionUpdated{
		EventMeta: model.EventMeta{
			ID:             "recheck-" + snap.SubscriptionID,
			Time:           snap.AsOf,
			CustomerID:     customerID,
			SubscriptionID: snap.SubscriptionID,
			Email:          email,
		},
		Status:    snap.Status,
		PeriodEnd: snap.PeriodEnd,
	}
}

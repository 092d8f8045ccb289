// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"membership-billing/internal/domain"
	"membership-billing/internal/domain/model"
	"membership-billing/internal/domain/ports/repository"
)

// ProcessResult classifies what became of a delivered event.
type ProcessResult string

const (
	ResultApplied   ProcessResult = "applied"
	ResultStale     ProcessResult = "stale"
	ResultDuplicate ProcessResult = "duplicate"
	ResultOrphan    ProcessResult = "orphan"
)

const (
	// claimPendingTTL bounds how long a crashed handler can hold an event id
	// before the gateway's redelivery may reprocess it.
	claimPendingTTL = 2 * time.Minute
	// DefaultDedupWindow is how long a confirmed event id is remembered.
	DefaultDedupWindow = 72 * time.Hour
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

// WebhookUseCase processes verified gateway events: dedup, profile
// resolution, state-machine apply, persistence.
type WebhookUseCase interface {
	// Process runs the full at-most-once-effect pipeline for one delivery.
	// A non-nil error means the delivery should be retried by the gateway.
	Process(ctx context.Context, ev model.BillingEvent) (ProcessResult, error)

	// ApplyEvent applies an event to canonical state without consulting the
	// dedup store. It is the single authoritative write path; the recheck
	// flow and the reconciler feed synthesized events through it.
	ApplyEvent(ctx context.Context, ev model.BillingEvent) (ProcessResult, error)
}

type webhookUC struct {
	subs     repository.SubscriptionRepository
	profiles repository.MembershipRepository
	dedup    repository.EventDedupStore
	txm      repository.TransactionManager // nil in tests; enables the advisory-lock path
	window   time.Duration
	log      *zerolog.Logger

	// serializes per-identity applies when no transaction manager is available
	keyed keyedMutex
}

func NewWebhookUseCase(subs repository.SubscriptionRepository, profiles repository.MembershipRepository, dedup repository.EventDedupStore, window time.Duration, logger *zerolog.Logger, txmOpt ...repository.TransactionManager) *webhookUC {
	var txm repository.TransactionManager
	if len(txmOpt) > 0 {
		txm = txmOpt[0]
	}
	if window <= 0 {
		window = DefaultDedupWindow
	}
	l := logger.With().Str("component", "WebhookUC").Logger()
	return &webhookUC{subs: subs, profiles: profiles, dedup: dedup, txm: txm, window: window, log: &l}
}

func (u *webhookUC) Process(ctx context.Context, ev model.BillingEvent) (ProcessResult, error) {
	ok, err := u.dedup.Claim(ctx, ev.EventID(), claimPendingTTL)
	if err != nil {
		return "", fmt.Errorf("dedup claim: %w", err)
	}
	if !ok {
		u.log.Info().Str("event_id", ev.EventID()).Str("kind", string(ev.Kind())).Msg("duplicate event skipped")
		return ResultDuplicate, nil
	}

	res, err := u.ApplyEvent(ctx, ev)
	if err != nil {
		// Free the claim so the gateway's retry is not locked out.
		if relErr := u.dedup.Release(ctx, ev.EventID()); relErr != nil {
			u.log.Warn().Err(relErr).Str("event_id", ev.EventID()).Msg("dedup release failed")
		}
		return "", err
	}

	// Mark processed only after successful persistence: a crash before this
	// point lets the pending claim expire and a redelivery reprocess safely.
	if err := u.dedup.Confirm(ctx, ev.EventID(), u.window); err != nil {
		u.log.Warn().Err(err).Str("event_id", ev.EventID()).Msg("dedup confirm failed")
	}
	return res, nil
}

func (u *webhookUC) ApplyEvent(ctx context.Context, ev model.BillingEvent) (ProcessResult, error) {
	prof, err := u.resolveProfile(ctx, ev)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrProfileNotFound) {
			// Permanently-missing mapping: log and swallow rather than force
			// the sender into a retry loop. The recheck endpoint is the
			// compensating path.
			u.log.Warn().
				Str("event_id", ev.EventID()).
				Str("kind", string(ev.Kind())).
				Msg("no membership profile for event")
			return ResultOrphan, nil
		}
		return "", fmt.Errorf("resolve profile: %w", err)
	}

	if u.txm != nil {
		return u.applyInTx(ctx, prof, ev)
	}

	unlock := u.keyed.lock(prof.Identity())
	defer unlock()
	return u.applyWith(ctx, repository.NoTX, prof, ev)
}

// applyInTx serializes concurrent handlers for the same subscription identity
// with a per-identity advisory xact lock, so two handlers cannot both read
// the same stale state and discard one applied transition. Record and profile
// commit atomically.
func (u *webhookUC) applyInTx(ctx context.Context, prof *model.MembershipProfile, ev model.BillingEvent) (ProcessResult, error) {
	var res ProcessResult
	err := u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ptx, ok := tx.(pgx.Tx)
		if !ok {
			return domain.ErrInvalidExecContext
		}
		if _, err := ptx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", hashToInt64(prof.Identity())); err != nil {
			return err
		}
		r, err := u.applyWith(ctx, tx, prof, ev)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return "", err
	}
	return res, nil
}

func (u *webhookUC) applyWith(ctx context.Context, tx repository.Tx, prof *model.MembershipProfile, ev model.BillingEvent) (ProcessResult, error) {
	identity := prof.Identity()

	// The pre-lock profile copy may already be stale when two deliveries race
	// on one identity; re-read it now that we hold the lock so the trial
	// stamps fold onto the latest committed state.
	if fresh, err := u.profiles.FindByUserID(ctx, tx, prof.UserID); err == nil {
		prof = fresh
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("reload profile: %w", err)
	}

	rec, err := u.subs.FindByIdentity(ctx, tx, identity)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("load record: %w", err)
		}
		rec = model.NewSubscriptionRecord(identity)
	}

	newRec, newProf, decision := Apply(*rec, *prof, ev, time.Now())
	if decision == DecisionIgnored {
		u.log.Info().
			Str("event_id", ev.EventID()).
			Str("kind", string(ev.Kind())).
			Time("event_time", ev.OccurredAt()).
			Time("record_updated_at", rec.UpdatedAt).
			Msg("stale event ignored")
		return ResultStale, nil
	}

	// SubscriptionRecord first: it is the canonical read for access gating.
	// In the tx path both writes commit atomically; in the plain path the
	// profile write is best effort and a future event re-derives it.
	if err := u.subs.Save(ctx, tx, &newRec); err != nil {
		return "", fmt.Errorf("save record: %w", err)
	}
	if err := u.profiles.Save(ctx, tx, &newProf); err != nil {
		return "", fmt.Errorf("save profile: %w", err)
	}

	u.log.Info().
		Str("event_id", ev.EventID()).
		Str("kind", string(ev.Kind())).
		Str("identity", identity).
		Str("state", string(newRec.State)).
		Bool("subscribed", newRec.Subscribed).
		Msg("event applied")
	return ResultApplied, nil
}

// resolveProfile finds the owning profile by customer id, falling back to the
// event's email.
func (u *webhookUC) resolveProfile(ctx context.Context, ev model.BillingEvent) (*model.MembershipProfile, error) {
	meta := eventMeta(ev)
	if meta.CustomerID != "" {
		p, err := u.profiles.FindByCustomerID(ctx, repository.NoTX, meta.CustomerID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if meta.Email != "" {
		return u.profiles.FindByEmail(ctx, repository.NoTX, model.NormalizeIdentity(meta.Email))
	}
	return nil, domain.ErrProfileNotFound
}

func eventMeta(ev model.BillingEvent) model.EventMeta {
	switch e := ev.(type) {
	case model.CheckoutCompleted:
		return e.EventMeta
	case model.SubscriptionCreated:
		return e.EventMeta
	case model.SubscriptionUpdated:
		return e.EventMeta
	case model.SubscriptionDeleted:
		return e.EventMeta
	case model.PaymentSucceeded:
		return e.EventMeta
	case model.PaymentFailed:
		return e.EventMeta
	}
	return model.EventMeta{}
}

func hashToInt64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64() & ((1 << 63) - 1))
}

// keyedMutex serializes work per subscription identity without a global lock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}

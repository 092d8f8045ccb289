// File: internal/infra/sched/reconcile_worker.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"membership-billing/internal/domain/ports/repository"
	"membership-billing/internal/infra/metrics"
	redisinfra "membership-billing/internal/infra/redis"
	"membership-billing/internal/usecase"
)

// SubscriptionReconciler periodically scans for advisory records that never
// received a confirming webhook and rechecks them against the gateway. This
// covers lost deliveries and the crash-between-claim-and-confirm window.
type SubscriptionReconciler struct {
	sync       usecase.SyncUseCase
	subs       repository.SubscriptionRepository
	profiles   repository.MembershipRepository
	locker     redisinfra.Locker
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old an advisory record must be to recheck
	batchSize  int
	log        *zerolog.Logger
}

func NewSubscriptionReconciler(
	sync usecase.SyncUseCase,
	subs repository.SubscriptionRepository,
	profiles repository.MembershipRepository,
	locker redisinfra.Locker,
	interval, staleAfter time.Duration,
	batchSize int,
	logger *zerolog.Logger,
) *SubscriptionReconciler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	l := logger.With().Str("component", "SubscriptionReconciler").Logger()
	return &SubscriptionReconciler{
		sync: sync, subs: subs, profiles: profiles, locker: locker,
		interval: interval, staleAfter: staleAfter, batchSize: batchSize, log: &l,
	}
}

func (w *SubscriptionReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *SubscriptionReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.subs.FindStaleAdvisory(ctx, repository.NoTX, cutoff, w.batchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("stale advisory scan failed")
		return
	}

	for _, rec := range stale {
		w.recheckOne(ctx, rec.Identity)
	}

	// Refresh the state gauge while we are here.
	if counts, err := w.subs.CountByState(ctx, repository.NoTX); err == nil {
		metrics.SetSubscriptionsTotal(counts)
	}
}

func (w *SubscriptionReconciler) recheckOne(ctx context.Context, identity string) {
	// One instance at a time per identity across the fleet.
	lockKey := "billing:reconcile:" + identity
	token, err := w.locker.TryLock(ctx, lockKey, time.Minute)
	if err != nil {
		return
	}
	defer func() { _ = w.locker.Unlock(ctx, lockKey, token) }()

	prof, err := w.profiles.FindByEmail(ctx, repository.NoTX, identity)
	if err != nil {
		w.log.Warn().Err(err).Str("identity", identity).Msg("no profile for stale advisory record")
		return
	}
	if prof.CustomerID == "" {
		// Checkout never produced a customer; nothing to ask the gateway.
		return
	}

	if _, err := w.sync.Recheck(ctx, prof.UserID); err != nil {
		metrics.IncRecheck("reconciler", "failed")
		w.log.Warn().Err(err).Str("identity", identity).Msg("recheck failed")
		return
	}
	metrics.IncRecheck("reconciler", "ok")
	w.log.Info().Str("identity", identity).Msg("stale advisory record reconciled")
}

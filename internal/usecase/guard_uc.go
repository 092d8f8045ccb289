// File: internal/usecase/guard_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"membership-billing/internal/domain"
	"membership-billing/internal/domain/model"
	"membership-billing/internal/domain/ports/repository"
)

var _ AccessGuard = (*accessGuard)(nil)

// AccessDecision is the single answer to "may this user reach gated
// features right now".
type AccessDecision struct {
	Allowed bool
	Reason  string
	State   model.SubscriptionState
	Tier    model.Tier
	// Countdown is populated while a trial or paid period is running.
	Countdown *model.Countdown
}

// AccessGuard is the one place access policy lives; handlers and middleware
// must not re-derive it.
type AccessGuard interface {
	Check(ctx context.Context, userID string) (*AccessDecision, error)
}

type accessGuard struct {
	subs     repository.SubscriptionRepository
	profiles repository.MembershipRepository
	log      *zerolog.Logger
}

func NewAccessGuard(subs repository.SubscriptionRepository, profiles repository.MembershipRepository, logger *zerolog.Logger) *accessGuard {
	l := logger.With().Str("component", "AccessGuard").Logger()
	return &accessGuard{subs: subs, profiles: profiles, log: &l}
}

func (g *accessGuard) Check(ctx context.Context, userID string) (*AccessDecision, error) {
	prof, err := g.profiles.FindByUserID(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &AccessDecision{Allowed: false, Reason: "no membership profile", State: model.SubscriptionStateNone}, nil
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}

	rec, err := g.subs.FindByIdentity(ctx, repository.NoTX, prof.Identity())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &AccessDecision{Allowed: false, Reason: "no subscription", State: model.SubscriptionStateNone}, nil
		}
		return nil, fmt.Errorf("load record: %w", err)
	}

	d := &AccessDecision{State: rec.State, Tier: rec.Tier}
	switch {
	case rec.State.Grants():
		d.Allowed = true
	case rec.State == model.SubscriptionStatePastDue:
		// Payment lapsed: deny until a successful payment event restores it.
		d.Reason = "payment past due"
	default:
		d.Reason = "subscription inactive"
	}
	if d.Allowed {
		cd := model.DeriveCountdown(time.Now(), rec.SubscriptionEnd)
		d.Countdown = &cd
	}
	return d, nil
}

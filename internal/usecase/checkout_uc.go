// File: internal/usecase/checkout_uc.go
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

// gatewayCallTimeout bounds outbound billing-gateway calls so a slow provider
// cannot hang a user-facing request.
const gatewayCallTimeout = 10 * time.Second

var _ CheckoutUseCase = (*checkoutUC)(nil)

// CheckoutIntent is what the client needs to begin a hosted trial checkout.
type CheckoutIntent struct {
	URL      string
	TrialEnd time.Time
}

type CheckoutUseCase interface {
	// Start ensures a billing customer exists for the user and opens a
	// trial checkout session. Idempotent at the customer level: repeated
	// calls reuse the stored customer id.
	Start(ctx context.Context, userID, email string) (*CheckoutIntent, error)
}

type checkoutUC struct {
	profiles repository.MembershipRepository
	gateway  adapter.BillingGateway
	trialLen time.Duration
	log      *zerolog.Logger
}

func NewCheckoutUseCase(profiles repository.MembershipRepository, gw adapter.BillingGateway, trialLen time.Duration, logger *zerolog.Logger) *checkoutUC {
	l := logger.With().Str("component", "CheckoutUC").Logger()
	return &checkoutUC{profiles: profiles, gateway: gw, trialLen: trialLen, log: &l}
}

func (u *checkoutUC) Start(ctx context.Context, userID, email string) (*CheckoutIntent, error) {
	email = model.NormalizeIdentity(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email required", domain.ErrInvalidArgument)
	}

	prof, err := u.profiles.FindByUserID(ctx, repository.NoTX, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("load profile: %w", err)
		}
		prof, err = model.NewMembershipProfile(userID, email)
		if err != nil {
			return nil, err
		}
		if err := u.profiles.Save(ctx, repository.NoTX, prof); err != nil {
			return nil, fmt.Errorf("create profile: %w", err)
		}
	}

	if prof.CustomerID == "" {
		gctx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
		customerID, err := u.gateway.EnsureCustomer(gctx, email)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("ensure customer: %w", err)
		}
		prof.CustomerID = customerID
		prof.UpdatedAt = time.Now()
		if err := u.profiles.Save(ctx, repository.NoTX, prof); err != nil {
			return nil, fmt.Errorf("save customer id: %w", err)
		}
	}

	gctx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	defer cancel()
	session, err := u.gateway.CreateTrialCheckout(gctx, prof.CustomerID, email)
	if err != nil {
		return nil, fmt.Errorf("create checkout: %w", err)
	}

	u.log.Info().
		Str("user_id", userID).
		Str("customer_id", prof.CustomerID).
		Str("session_id", session.ID).
		Msg("trial checkout created")

	// Provisional end: authoritative dates arrive later via the event feed.
	return &CheckoutIntent{URL: session.URL, TrialEnd: time.Now().Add(u.trialLen)}, nil
}

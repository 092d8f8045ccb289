package adapter

import (
	"context"
	"time"
)

// CheckoutSession is the minimal result of opening a hosted checkout.
type CheckoutSession struct {
	ID  string // gateway session id
	URL string // redirect target for the client
}

// SubscriptionSnapshot is the gateway's live view of a subscription, used by
// the recheck flow and the reconciler to re-derive canonical state when
// webhooks were lost.
type SubscriptionSnapshot struct {
	SubscriptionID string
	CustomerID     string
	Status         string // gateway status string (trialing/active/past_due/canceled)
	PeriodEnd      *time.Time
	AsOf           time.Time // gateway-side timestamp for ordering
}

// BillingGateway is the hex port for the external payment provider.
type BillingGateway interface {
	Name() string

	// EnsureCustomer resolves or creates the gateway customer for an email.
	// Idempotent on email: an existing customer is reused.
	EnsureCustomer(ctx context.Context, email string) (customerID string, err error)

	// CreateTrialCheckout opens a subscription-mode checkout session with the
	// configured trial period and mandatory payment-method collection.
	CreateTrialCheckout(ctx context.Context, customerID, email string) (CheckoutSession, error)

	// FetchSubscription pulls the live subscription state for a customer.
	// Returns nil when the customer has no subscription.
	FetchSubscription(ctx context.Context, customerID string) (*SubscriptionSnapshot, error)
}

package model

import (
	"strings"
	"time"
)

type SubscriptionState string

const (
	SubscriptionStateNone     SubscriptionState = "none"
	SubscriptionStateTrialing SubscriptionState = "trialing"
	SubscriptionStateActive   SubscriptionState = "active"
	SubscriptionStatePastDue  SubscriptionState = "past_due"
	SubscriptionStateCanceled SubscriptionState = "canceled"
)

type Tier string

const (
	TierNone    Tier = "none"
	TierPremium Tier = "premium"
)

// SubscriptionRecord is the canonical billing state for one subscription
// relationship, keyed by Identity (the user's lowercased email). It is the
// single source of truth for access gating; every other view derives from it.
type SubscriptionRecord struct {
	Identity        string // lowercased email
	CustomerID      string // gateway customer id (cus_...)
	SubscriptionID  string // gateway subscription id (sub_...)
	State           SubscriptionState
	Subscribed      bool
	Tier            Tier
	SubscriptionEnd *time.Time // canonical expiry; nil until first applied event
	UpdatedAt       time.Time  // event-time of the last applied event

	// Advisory marks an optimistic client write that has not been confirmed
	// by a webhook event. Advisory records never block an authoritative
	// apply and are never written over a canonical record.
	Advisory bool
}

// NewSubscriptionRecord returns the bootstrap record for an identity that has
// never seen an applied event.
func NewSubscriptionRecord(identity string) *SubscriptionRecord {
	return &SubscriptionRecord{
		Identity: NormalizeIdentity(identity),
		State:    SubscriptionStateNone,
		Tier:     TierNone,
	}
}

// NormalizeIdentity canonicalizes an email-based subscription identity.
func NormalizeIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseSubscriptionState maps a gateway status string onto the internal state.
// Unknown statuses fail closed to canceled.
func ParseSubscriptionState(status string) SubscriptionState {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "trialing":
		return SubscriptionStateTrialing
	case "active":
		return SubscriptionStateActive
	case "past_due", "unpaid", "incomplete":
		return SubscriptionStatePastDue
	case "canceled", "cancelled", "incomplete_expired":
		return SubscriptionStateCanceled
	case "none", "":
		return SubscriptionStateNone
	default:
		return SubscriptionStateCanceled
	}
}

// Grants reports whether a state grants access.
func (s SubscriptionState) Grants() bool {
	return s == SubscriptionStateTrialing || s == SubscriptionStateActive
}

package model

import (
	"time"

	"membership-billing/internal/domain"

	"github.com/google/uuid"
)

// MembershipProfile is the per-user read model carrying trial provenance and
// the access flag mirrored from the SubscriptionRecord. Created at signup,
// mutated only by the webhook processor and, transiently, by the optimistic
// client write. Fields are nulled, never deleted.
type MembershipProfile struct {
	UserID         string
	Email          string
	TrialStartedAt *time.Time
	TrialEndedAt   *time.Time
	CustomerID     string
	SubscriptionID string
	AccessFlag     bool
	UpdatedAt      time.Time
}

func NewMembershipProfile(id, email string) (*MembershipProfile, error) {
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &MembershipProfile{
		UserID:    id,
		Email:     NormalizeIdentity(email),
		UpdatedAt: time.Now(),
	}, nil
}

// Identity returns the key joining this profile to its SubscriptionRecord.
func (p *MembershipProfile) Identity() string { return NormalizeIdentity(p.Email) }

// Authorized is the access gate consulted by every protected-resource request.
// Pure read, no side effects, never triggers reconciliation.
func (p *MembershipProfile) Authorized() bool {
	return p != nil && p.AccessFlag
}

func (p *MembershipProfile) IsZero() bool { return p == nil || p.UserID == "" }

package repository

import (
	"context"

	"membership-billing/internal/domain/model"
)

// MembershipRepository is the port for per-user membership profiles.
type MembershipRepository interface {
	Save(ctx context.Context, tx Tx, p *model.MembershipProfile) error
	FindByUserID(ctx context.Context, tx Tx, userID string) (*model.MembershipProfile, error)
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.MembershipProfile, error)
	FindByCustomerID(ctx context.Context, tx Tx, customerID string) (*model.MembershipProfile, error)
}

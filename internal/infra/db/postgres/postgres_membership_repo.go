// File: internal/infra/db/postgres/postgres_membership_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"membership-billing/internal/domain"
	"membership-billing/internal/domain/model"
	"membership-billing/internal/domain/ports/repository"
)

var _ repository.MembershipRepository = (*PostgresMembershipRepo)(nil)

type PostgresMembershipRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresMembershipRepo(pool *pgxpool.Pool) *PostgresMembershipRepo {
	return &PostgresMembershipRepo{pool: pool}
}

const membershipColumns = `
user_id, email, trial_started_at, trial_ended_at,
customer_id, subscription_id, access_flag, updated_at
`

func (r *PostgresMembershipRepo) Save(ctx context.Context, tx repository.Tx, p *model.MembershipProfile) error {
	const q = `
INSERT INTO membership_profiles (
  user_id, email, trial_started_at, trial_ended_at,
  customer_id, subscription_id, access_flag, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
) ON CONFLICT (user_id) DO UPDATE SET
  email=$2, trial_started_at=$3, trial_ended_at=$4,
  customer_id=$5, subscription_id=$6, access_flag=$7, updated_at=$8;
`
	_, err := execSQL(ctx, r.pool, tx, q,
		p.UserID, p.Email, p.TrialStartedAt, p.TrialEndedAt,
		p.CustomerID, p.SubscriptionID, p.AccessFlag, p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// unique violation on email: a second profile claimed the identity
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save membership profile: %w", err)
	}
	return nil
}

func (r *PostgresMembershipRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID string) (*model.MembershipProfile, error) {
	q := `SELECT ` + membershipColumns + ` FROM membership_profiles WHERE user_id=$1;`
	return scanMembershipProfile(pickRow(ctx, r.pool, tx, q, userID))
}

func (r *PostgresMembershipRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.MembershipProfile, error) {
	q := `SELECT ` + membershipColumns + ` FROM membership_profiles WHERE email=$1;`
	return scanMembershipProfile(pickRow(ctx, r.pool, tx, q, model.NormalizeIdentity(email)))
}

func (r *PostgresMembershipRepo) FindByCustomerID(ctx context.Context, tx repository.Tx, customerID string) (*model.MembershipProfile, error) {
	q := `SELECT ` + membershipColumns + ` FROM membership_profiles WHERE customer_id=$1;`
	return scanMembershipProfile(pickRow(ctx, r.pool, tx, q, customerID))
}

func scanMembershipProfile(row pgx.Row) (*model.MembershipProfile, error) {
	var p model.MembershipProfile
	err := row.Scan(&p.UserID, &p.Email, &p.TrialStartedAt, &p.TrialEndedAt,
		&p.CustomerID, &p.SubscriptionID, &p.AccessFlag, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	return &p, nil
}

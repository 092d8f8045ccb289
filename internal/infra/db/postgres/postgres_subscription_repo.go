// File: internal/infra/db/postgres/postgres_subscription_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"membership-billing/internal/domain"
	"membership-billing/internal/domain/model"
	"membership-billing/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)

type PostgresSubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresSubscriptionRepo(pool *pgxpool.Pool) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{pool: pool}
}

const subscriptionColumns = `
identity, customer_id, subscription_id, state, subscribed, tier,
subscription_end, updated_at, advisory
`

func (r *PostgresSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, rec *model.SubscriptionRecord) error {
	const q = `
INSERT INTO subscription_records (
  identity, customer_id, subscription_id, state, subscribed, tier,
  subscription_end, updated_at, advisory
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
) ON CONFLICT (identity) DO UPDATE SET
  customer_id=$2, subscription_id=$3, state=$4, subscribed=$5, tier=$6,
  subscription_end=$7, updated_at=$8, advisory=$9;
`
	_, err := execSQL(ctx, r.pool, tx, q,
		rec.Identity, rec.CustomerID, rec.SubscriptionID, string(rec.State),
		rec.Subscribed, string(rec.Tier), rec.SubscriptionEnd, rec.UpdatedAt, rec.Advisory)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrConflict
		}
		return fmt.Errorf("save subscription record: %w", err)
	}
	return nil
}

func (r *PostgresSubscriptionRepo) SaveAdvisory(ctx context.Context, tx repository.Tx, rec *model.SubscriptionRecord) (bool, error) {
	const q = `
INSERT INTO subscription_records (
  identity, customer_id, subscription_id, state, subscribed, tier,
  subscription_end, updated_at, advisory
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,true
) ON CONFLICT (identity) DO UPDATE SET
  customer_id=$2, subscription_id=$3, state=$4, subscribed=$5, tier=$6,
  subscription_end=$7, updated_at=$8, advisory=true
WHERE subscription_records.advisory;
`
	tag, err := execSQL(ctx, r.pool, tx, q,
		rec.Identity, rec.CustomerID, rec.SubscriptionID, string(rec.State),
		rec.Subscribed, string(rec.Tier), rec.SubscriptionEnd, rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, domain.ErrConflict
		}
		return false, fmt.Errorf("save advisory record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresSubscriptionRepo) FindByIdentity(ctx context.Context, tx repository.Tx, identity string) (*model.SubscriptionRecord, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscription_records WHERE identity=$1;`
	row := pickRow(ctx, r.pool, tx, q, identity)
	return scanSubscriptionRecord(row)
}

func (r *PostgresSubscriptionRepo) FindByCustomerID(ctx context.Context, tx repository.Tx, customerID string) (*model.SubscriptionRecord, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscription_records WHERE customer_id=$1;`
	row := pickRow(ctx, r.pool, tx, q, customerID)
	return scanSubscriptionRecord(row)
}

func (r *PostgresSubscriptionRepo) FindStaleAdvisory(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.SubscriptionRecord, error) {
	q := `SELECT ` + subscriptionColumns + `
  FROM subscription_records
 WHERE advisory AND created_at < $1
 ORDER BY created_at
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("find stale advisory: %w", err)
	}
	defer rows.Close()

	var out []*model.SubscriptionRecord
	for rows.Next() {
		rec, err := scanSubscriptionRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresSubscriptionRepo) CountByState(ctx context.Context, tx repository.Tx) (map[model.SubscriptionState]int, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT state, COUNT(*) FROM subscription_records GROUP BY state;`)
	if err != nil {
		return nil, fmt.Errorf("count by state: %w", err)
	}
	defer rows.Close()

	out := make(map[model.SubscriptionState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		out[model.SubscriptionState(state)] = n
	}
	return out, rows.Err()
}

func scanSubscriptionRecord(row pgx.Row) (*model.SubscriptionRecord, error) {
	var rec model.SubscriptionRecord
	var state, tier string
	err := row.Scan(&rec.Identity, &rec.CustomerID, &rec.SubscriptionID, &state,
		&rec.Subscribed, &tier, &rec.SubscriptionEnd, &rec.UpdatedAt, &rec.Advisory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	rec.State = model.SubscriptionState(state)
	rec.Tier = model.Tier(tier)
	return &rec, nil
}

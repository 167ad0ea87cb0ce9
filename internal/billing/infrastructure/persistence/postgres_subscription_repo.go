package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/database"
	sharedPersistence "github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSubscriptionColumns = `id, user_id, email, external_customer_id, external_subscription_id,
	active_bundles, billing_interval, status, unit_amount_cents, currency,
	cancel_requested_at, last_payment_at, last_event_id, last_event_at,
	recent_event_ids, version, created_at, updated_at`

// PostgresSubscriptionRepository implements SubscriptionRepository with
// PostgreSQL. Writes join the transaction in ctx when one is open.
type PostgresSubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSubscriptionRepository creates a new repository.
func NewPostgresSubscriptionRepository(pool *pgxpool.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

func (r *PostgresSubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*domain.UserSubscription, error) {
	row := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+postgresSubscriptionColumns+` FROM subscription_states WHERE user_id = $1`, userID)
	return scanPostgresSubscription(row)
}

func (r *PostgresSubscriptionRepository) FindByExternalSubscriptionID(ctx context.Context, subscriptionID string) (*domain.UserSubscription, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	row := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+postgresSubscriptionColumns+` FROM subscription_states WHERE external_subscription_id = $1`, subscriptionID)
	return scanPostgresSubscription(row)
}

func (r *PostgresSubscriptionRepository) Save(ctx context.Context, sub *domain.UserSubscription) error {
	exec := sharedPersistence.Executor(ctx, r.pool)
	s := sub.Snapshot()

	if s.Version == 0 {
		_, err := exec.Exec(ctx, `
			INSERT INTO subscription_states (`+postgresSubscriptionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1, $16, $17)`,
			s.ID, s.UserID, s.Email, s.ExternalCustomerID, s.ExternalSubscriptionID,
			s.ActiveBundles, s.BillingInterval, s.Status, s.UnitAmountCents, s.Currency,
			s.CancelRequestedAt, s.LastPaymentAt, s.LastEventID, s.LastEventAt,
			s.RecentEventIDs, s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("insert subscription for %s: %w", s.UserID, domain.ErrConcurrentModification)
			}
			return fmt.Errorf("insert subscription for %s: %w", s.UserID, err)
		}
		sub.SetVersion(1)
		return nil
	}

	tag, err := exec.Exec(ctx, `
		UPDATE subscription_states SET
			email = $1, external_customer_id = $2, external_subscription_id = $3,
			active_bundles = $4, billing_interval = $5, status = $6, unit_amount_cents = $7, currency = $8,
			cancel_requested_at = $9, last_payment_at = $10, last_event_id = $11, last_event_at = $12,
			recent_event_ids = $13, version = version + 1, updated_at = $14
		WHERE user_id = $15 AND version = $16`,
		s.Email, s.ExternalCustomerID, s.ExternalSubscriptionID,
		s.ActiveBundles, s.BillingInterval, s.Status, s.UnitAmountCents, s.Currency,
		s.CancelRequestedAt, s.LastPaymentAt, s.LastEventID, s.LastEventAt,
		s.RecentEventIDs, s.UpdatedAt,
		s.UserID, s.Version,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return errExternalIDTaken(s.ExternalSubscriptionID)
		}
		return fmt.Errorf("update subscription for %s: %w", s.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentModification
	}
	sub.SetVersion(s.Version + 1)
	return nil
}

func scanPostgresSubscription(row pgx.Row) (*domain.UserSubscription, error) {
	var (
		s                                   domain.Snapshot
		cancelRequested, lastPayment, evtAt *time.Time
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.Email, &s.ExternalCustomerID, &s.ExternalSubscriptionID,
		&s.ActiveBundles, &s.BillingInterval, &s.Status, &s.UnitAmountCents, &s.Currency,
		&cancelRequested, &lastPayment, &s.LastEventID, &evtAt,
		&s.RecentEventIDs, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if cancelRequested != nil {
		s.CancelRequestedAt = timePtr(*cancelRequested)
	}
	if lastPayment != nil {
		s.LastPaymentAt = timePtr(*lastPayment)
	}
	if evtAt != nil {
		s.LastEventAt = timePtr(*evtAt)
	}
	return domain.Rehydrate(s)
}

var _ domain.SubscriptionRepository = (*PostgresSubscriptionRepository)(nil)

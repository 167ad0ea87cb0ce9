package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/database"
	sharedPersistence "github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/persistence"
)

// Fixed width so that text comparison orders like time.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteSubscriptionColumns = `id, user_id, email, external_customer_id, external_subscription_id,
	active_bundles, billing_interval, status, unit_amount_cents, currency,
	cancel_requested_at, last_payment_at, last_event_id, last_event_at,
	recent_event_ids, version, created_at, updated_at`

// SQLiteSubscriptionRepository implements SubscriptionRepository with SQLite.
type SQLiteSubscriptionRepository struct {
	db *sql.DB
}

// NewSQLiteSubscriptionRepository creates a new repository.
func NewSQLiteSubscriptionRepository(db *sql.DB) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{db: db}
}

func (r *SQLiteSubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*domain.UserSubscription, error) {
	row := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+sqliteSubscriptionColumns+` FROM subscription_states WHERE user_id = ?`, userID)
	return scanSQLiteSubscription(row)
}

func (r *SQLiteSubscriptionRepository) FindByExternalSubscriptionID(ctx context.Context, subscriptionID string) (*domain.UserSubscription, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	row := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+sqliteSubscriptionColumns+` FROM subscription_states WHERE external_subscription_id = ?`, subscriptionID)
	return scanSQLiteSubscription(row)
}

// Save inserts a new state or updates the stored one when its version
// still matches.
func (r *SQLiteSubscriptionRepository) Save(ctx context.Context, sub *domain.UserSubscription) error {
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	s := sub.Snapshot()

	if s.Version == 0 {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO subscription_states (`+sqliteSubscriptionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			s.ID.String(), s.UserID, s.Email, s.ExternalCustomerID, s.ExternalSubscriptionID,
			joinIDs(s.ActiveBundles), s.BillingInterval, s.Status, s.UnitAmountCents, s.Currency,
			sqliteNullTime(s.CancelRequestedAt), sqliteNullTime(s.LastPaymentAt), s.LastEventID, sqliteNullTime(s.LastEventAt),
			joinIDs(s.RecentEventIDs), formatSQLiteTime(s.CreatedAt), formatSQLiteTime(s.UpdatedAt),
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

	res, err := exec.ExecContext(ctx, `
		UPDATE subscription_states SET
			email = ?, external_customer_id = ?, external_subscription_id = ?,
			active_bundles = ?, billing_interval = ?, status = ?, unit_amount_cents = ?, currency = ?,
			cancel_requested_at = ?, last_payment_at = ?, last_event_id = ?, last_event_at = ?,
			recent_event_ids = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND version = ?`,
		s.Email, s.ExternalCustomerID, s.ExternalSubscriptionID,
		joinIDs(s.ActiveBundles), s.BillingInterval, s.Status, s.UnitAmountCents, s.Currency,
		sqliteNullTime(s.CancelRequestedAt), sqliteNullTime(s.LastPaymentAt), s.LastEventID, sqliteNullTime(s.LastEventAt),
		joinIDs(s.RecentEventIDs), formatSQLiteTime(s.UpdatedAt),
		s.UserID, s.Version,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return errExternalIDTaken(s.ExternalSubscriptionID)
		}
		return fmt.Errorf("update subscription for %s: %w", s.UserID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConcurrentModification
	}
	sub.SetVersion(s.Version + 1)
	return nil
}

func scanSQLiteSubscription(row *sql.Row) (*domain.UserSubscription, error) {
	var (
		s                                        domain.Snapshot
		id, bundles, recent, createdAt, updatedAt string
		cancelRequested, lastPayment, evtAt      sql.NullString
	)
	err := row.Scan(
		&id, &s.UserID, &s.Email, &s.ExternalCustomerID, &s.ExternalSubscriptionID,
		&bundles, &s.BillingInterval, &s.Status, &s.UnitAmountCents, &s.Currency,
		&cancelRequested, &lastPayment, &s.LastEventID, &evtAt,
		&recent, &s.Version, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("subscription %s: id: %w", s.UserID, err)
	}
	if s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("subscription %s: created_at: %w", s.UserID, err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("subscription %s: updated_at: %w", s.UserID, err)
	}
	s.ActiveBundles = splitIDs(bundles)
	s.RecentEventIDs = splitIDs(recent)
	s.CancelRequestedAt = parseSQLiteNullTime(cancelRequested)
	s.LastPaymentAt = parseSQLiteNullTime(lastPayment)
	s.LastEventAt = parseSQLiteNullTime(evtAt)

	return domain.Rehydrate(s)
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func sqliteNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatSQLiteTime(*t), Valid: true}
}

func parseSQLiteNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return timePtr(t)
}

var _ domain.SubscriptionRepository = (*SQLiteSubscriptionRepository)(nil)

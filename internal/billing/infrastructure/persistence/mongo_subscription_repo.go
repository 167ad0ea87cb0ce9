package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/database"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoSubscriptionCollection = "subscription_states"

type mongoSubscriptionDoc struct {
	UserID                 string     `bson:"_id"`
	ID                     string     `bson:"id"`
	Email                  string     `bson:"email"`
	ExternalCustomerID     string     `bson:"external_customer_id"`
	ExternalSubscriptionID string     `bson:"external_subscription_id"`
	ActiveBundles          []string   `bson:"active_bundles"`
	BillingInterval        string     `bson:"billing_interval"`
	Status                 string     `bson:"status"`
	UnitAmountCents        int64      `bson:"unit_amount_cents"`
	Currency               string     `bson:"currency"`
	CancelRequestedAt      *time.Time `bson:"cancel_requested_at"`
	LastPaymentAt          *time.Time `bson:"last_payment_at"`
	LastEventID            string     `bson:"last_event_id"`
	LastEventAt            *time.Time `bson:"last_event_at"`
	RecentEventIDs         []string   `bson:"recent_event_ids"`
	Version                int        `bson:"version"`
	CreatedAt              time.Time  `bson:"created_at"`
	UpdatedAt              time.Time  `bson:"updated_at"`
}

// MongoSubscriptionRepository stores one document per user, keyed by user
// id. Writes join the session transaction in ctx when one is open.
type MongoSubscriptionRepository struct {
	coll *mongo.Collection
}

// NewMongoSubscriptionRepository creates a new repository.
func NewMongoSubscriptionRepository(db *mongo.Database) *MongoSubscriptionRepository {
	return &MongoSubscriptionRepository{coll: db.Collection(mongoSubscriptionCollection)}
}

// EnsureIndexes creates the unique external subscription index. Users
// without a subscription are left out of it.
func (r *MongoSubscriptionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "external_subscription_id", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"external_subscription_id": bson.M{"$gt": ""}}),
	})
	return err
}

func (r *MongoSubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*domain.UserSubscription, error) {
	return r.findOne(ctx, bson.M{"_id": userID})
}

func (r *MongoSubscriptionRepository) FindByExternalSubscriptionID(ctx context.Context, subscriptionID string) (*domain.UserSubscription, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	return r.findOne(ctx, bson.M{"external_subscription_id": subscriptionID})
}

func (r *MongoSubscriptionRepository) findOne(ctx context.Context, filter bson.M) (*domain.UserSubscription, error) {
	var doc mongoSubscriptionDoc
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain()
}

func (r *MongoSubscriptionRepository) Save(ctx context.Context, sub *domain.UserSubscription) error {
	s := sub.Snapshot()
	doc := toMongoSubscriptionDoc(s)

	if s.Version == 0 {
		doc.Version = 1
		if _, err := r.coll.InsertOne(ctx, doc); err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("insert subscription for %s: %w", s.UserID, domain.ErrConcurrentModification)
			}
			return fmt.Errorf("insert subscription for %s: %w", s.UserID, err)
		}
		sub.SetVersion(1)
		return nil
	}

	doc.Version = s.Version + 1
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": s.UserID, "version": s.Version}, doc)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return errExternalIDTaken(s.ExternalSubscriptionID)
		}
		return fmt.Errorf("update subscription for %s: %w", s.UserID, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrConcurrentModification
	}
	sub.SetVersion(doc.Version)
	return nil
}

func toMongoSubscriptionDoc(s domain.Snapshot) mongoSubscriptionDoc {
	return mongoSubscriptionDoc{
		UserID:                 s.UserID,
		ID:                     s.ID.String(),
		Email:                  s.Email,
		ExternalCustomerID:     s.ExternalCustomerID,
		ExternalSubscriptionID: s.ExternalSubscriptionID,
		ActiveBundles:          append([]string{}, s.ActiveBundles...),
		BillingInterval:        s.BillingInterval,
		Status:                 s.Status,
		UnitAmountCents:        s.UnitAmountCents,
		Currency:               s.Currency,
		CancelRequestedAt:      s.CancelRequestedAt,
		LastPaymentAt:          s.LastPaymentAt,
		LastEventID:            s.LastEventID,
		LastEventAt:            s.LastEventAt,
		RecentEventIDs:         append([]string{}, s.RecentEventIDs...),
		Version:                s.Version,
		CreatedAt:              s.CreatedAt.UTC(),
		UpdatedAt:              s.UpdatedAt.UTC(),
	}
}

func (d mongoSubscriptionDoc) toDomain() (*domain.UserSubscription, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("subscription %s: id: %w", d.UserID, err)
	}
	bundles := d.ActiveBundles
	if bundles == nil {
		bundles = []string{}
	}
	return domain.Rehydrate(domain.Snapshot{
		ID:                     id,
		UserID:                 d.UserID,
		Email:                  d.Email,
		ExternalCustomerID:     d.ExternalCustomerID,
		ExternalSubscriptionID: d.ExternalSubscriptionID,
		ActiveBundles:          bundles,
		BillingInterval:        d.BillingInterval,
		Status:                 d.Status,
		UnitAmountCents:        d.UnitAmountCents,
		Currency:               d.Currency,
		CancelRequestedAt:      d.CancelRequestedAt,
		LastPaymentAt:          d.LastPaymentAt,
		LastEventID:            d.LastEventID,
		LastEventAt:            d.LastEventAt,
		RecentEventIDs:         d.RecentEventIDs,
		Version:                d.Version,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
	})
}

var _ domain.SubscriptionRepository = (*MongoSubscriptionRepository)(nil)

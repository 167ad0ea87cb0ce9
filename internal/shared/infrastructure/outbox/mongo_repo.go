package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoOutboxCollection   = "outbox"
	mongoCounterCollection  = "counters"
	mongoOutboxSequenceName = "outbox"
)

type mongoOutboxDoc struct {
	ID               int64      `bson:"_id"`
	EventID          string     `bson:"event_id"`
	AggregateType    string     `bson:"aggregate_type"`
	AggregateID      string     `bson:"aggregate_id"`
	EventType        string     `bson:"event_type"`
	RoutingKey       string     `bson:"routing_key"`
	Payload          string     `bson:"payload"`
	Metadata         string     `bson:"metadata,omitempty"`
	CreatedAt        time.Time  `bson:"created_at"`
	PublishedAt      *time.Time `bson:"published_at"`
	NextRetryAt      *time.Time `bson:"next_retry_at"`
	RetryCount       int        `bson:"retry_count"`
	LastError        *string    `bson:"last_error,omitempty"`
	DeadLetteredAt   *time.Time `bson:"dead_lettered_at"`
	DeadLetterReason *string    `bson:"dead_letter_reason,omitempty"`
}

// MongoRepository implements Repository on a MongoDB collection. Numeric
// ids come from a counters document so the processor API stays the same
// across backends.
type MongoRepository struct {
	messages *mongo.Collection
	counters *mongo.Collection
	now      func() time.Time
}

// NewMongoRepository creates a new MongoDB outbox repository.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		messages: db.Collection(mongoOutboxCollection),
		counters: db.Collection(mongoCounterCollection),
		now:      time.Now,
	}
}

// EnsureIndexes creates the indexes the polling queries rely on.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "event_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "published_at", Value: 1}, {Key: "dead_lettered_at", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	return err
}

func (r *MongoRepository) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": mongoOutboxSequenceName},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next outbox id: %w", err)
	}
	return counter.Seq, nil
}

// Save stores a new outbox message.
func (r *MongoRepository) Save(ctx context.Context, msg *Message) error {
	id, err := r.nextID(ctx)
	if err != nil {
		return err
	}
	doc := mongoOutboxDoc{
		ID:            id,
		EventID:       msg.EventID.String(),
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID.String(),
		EventType:     msg.EventType,
		RoutingKey:    msg.RoutingKey,
		Payload:       string(msg.Payload),
		Metadata:      string(msg.Metadata),
		CreatedAt:     msg.CreatedAt.UTC(),
	}
	if _, err := r.messages.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert outbox message %s: %w", msg.EventID, err)
	}
	msg.ID = id
	return nil
}

// SaveBatch stores messages one by one. Atomicity comes from the session
// transaction in ctx, opened by MongoUnitOfWork.
func (r *MongoRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	for _, msg := range msgs {
		if err := r.Save(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (r *MongoRepository) pendingFilter() bson.M {
	return bson.M{
		"published_at":     nil,
		"dead_lettered_at": nil,
		"$or": bson.A{
			bson.M{"next_retry_at": nil},
			bson.M{"next_retry_at": bson.M{"$lte": r.now().UTC()}},
		},
	}
}

func (r *MongoRepository) find(ctx context.Context, filter bson.M, limit int) ([]*Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	cur, err := r.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []mongoOutboxDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	messages := make([]*Message, 0, len(docs))
	for _, doc := range docs {
		msg, err := doc.toMessage()
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// GetUnpublished retrieves due, unpublished messages in creation order.
func (r *MongoRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	return r.find(ctx, r.pendingFilter(), limit)
}

// GetFailed retrieves failed messages eligible for retry.
func (r *MongoRepository) GetFailed(ctx context.Context, maxRetries, limit int) ([]*Message, error) {
	filter := r.pendingFilter()
	filter["retry_count"] = bson.M{"$gt": 0, "$lt": maxRetries}
	return r.find(ctx, filter, limit)
}

func (r *MongoRepository) updateByID(ctx context.Context, id int64, update bson.M) error {
	res, err := r.messages.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("outbox message %d: %w", id, mongo.ErrNoDocuments)
	}
	return nil
}

// MarkPublished marks a message as successfully published.
func (r *MongoRepository) MarkPublished(ctx context.Context, id int64) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{
		"published_at":     r.now().UTC(),
		"dead_lettered_at": nil,
	}})
}

// MarkFailed records a publish failure and schedules the next attempt.
func (r *MongoRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	return r.updateByID(ctx, id, bson.M{
		"$inc": bson.M{"retry_count": 1},
		"$set": bson.M{"last_error": errMsg, "next_retry_at": nextRetryAt.UTC()},
	})
}

// MarkDead marks a message as dead-lettered.
func (r *MongoRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{
		"dead_lettered_at":   r.now().UTC(),
		"dead_letter_reason": reason,
	}})
}

// DeleteOld removes published messages older than the retention period.
func (r *MongoRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -olderThanDays).UTC()
	res, err := r.messages.DeleteMany(ctx, bson.M{
		"published_at": bson.M{"$ne": nil, "$lt": cutoff},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// CountPending returns the number of messages not yet published or dead.
func (r *MongoRepository) CountPending(ctx context.Context) (int64, error) {
	return r.messages.CountDocuments(ctx, bson.M{"published_at": nil, "dead_lettered_at": nil})
}

func (d mongoOutboxDoc) toMessage() (*Message, error) {
	eventID, err := uuid.Parse(d.EventID)
	if err != nil {
		return nil, fmt.Errorf("outbox %d: event id: %w", d.ID, err)
	}
	aggregateID, err := uuid.Parse(d.AggregateID)
	if err != nil {
		return nil, fmt.Errorf("outbox %d: aggregate id: %w", d.ID, err)
	}
	msg := &Message{
		ID:               d.ID,
		EventID:          eventID,
		AggregateType:    d.AggregateType,
		AggregateID:      aggregateID,
		EventType:        d.EventType,
		RoutingKey:       d.RoutingKey,
		Payload:          json.RawMessage(d.Payload),
		CreatedAt:        d.CreatedAt,
		PublishedAt:      d.PublishedAt,
		NextRetryAt:      d.NextRetryAt,
		RetryCount:       d.RetryCount,
		LastError:        d.LastError,
		DeadLetteredAt:   d.DeadLetteredAt,
		DeadLetterReason: d.DeadLetterReason,
	}
	if d.Metadata != "" {
		msg.Metadata = json.RawMessage(d.Metadata)
	}
	return msg, nil
}

var _ Repository = (*MongoRepository)(nil)

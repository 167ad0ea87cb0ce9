package persistence

import (
	"context"

	sharedApplication "github.com/ins72/mewayz-good-sub001/internal/shared/application"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoSessionInfo is the session transaction scope.
type MongoSessionInfo = Scope[mongo.Session]

// MongoSessionFromContext returns the session stored by MongoUnitOfWork.
func MongoSessionFromContext(ctx context.Context) (MongoSessionInfo, bool) {
	return scopeFrom[mongo.Session](ctx)
}

// MongoUnitOfWork scopes writes to one session transaction. Collections
// called with the returned context join it. Requires a replica set.
type MongoUnitOfWork struct {
	scopedUnit[mongo.Session]
}

// NewMongoUnitOfWork creates a unit of work over client.
func NewMongoUnitOfWork(client *mongo.Client) *MongoUnitOfWork {
	return &MongoUnitOfWork{scopedUnit[mongo.Session]{
		begin: func(ctx context.Context) (context.Context, mongo.Session, error) {
			session, err := client.StartSession()
			if err != nil {
				return nil, nil, err
			}
			if err := session.StartTransaction(); err != nil {
				session.EndSession(ctx)
				return nil, nil, err
			}
			return mongo.NewSessionContext(ctx, session), session, nil
		},
		commit: func(ctx context.Context, s mongo.Session) error {
			defer s.EndSession(context.WithoutCancel(ctx))
			return s.CommitTransaction(ctx)
		},
		rollback: func(ctx context.Context, s mongo.Session) error {
			defer s.EndSession(context.WithoutCancel(ctx))
			return s.AbortTransaction(ctx)
		},
	}}
}

var _ sharedApplication.UnitOfWork = (*MongoUnitOfWork)(nil)

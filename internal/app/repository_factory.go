package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	billingDomain "github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	billingPersistence "github.com/ins72/mewayz-good-sub001/internal/billing/infrastructure/persistence"
	sharedApplication "github.com/ins72/mewayz-good-sub001/internal/shared/application"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/database"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/persistence"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
)

// Connections holds the open handle for the configured driver. Only the
// handle matching Driver is set.
type Connections struct {
	Driver      database.Driver
	SQLite      *sql.DB
	Pool        *pgxpool.Pool
	MongoClient *mongo.Client
	MongoDB     *mongo.Database
}

// RepositoryFactory creates repositories based on the database driver.
type RepositoryFactory struct {
	conns Connections
}

// NewRepositoryFactory creates a new repository factory.
func NewRepositoryFactory(conns Connections) *RepositoryFactory {
	return &RepositoryFactory{conns: conns}
}

// SubscriptionRepository creates a subscription repository for the
// configured driver.
func (f *RepositoryFactory) SubscriptionRepository() (billingDomain.SubscriptionRepository, error) {
	switch f.conns.Driver {
	case database.DriverPostgres:
		pool, err := f.getPostgresPool()
		if err != nil {
			return nil, err
		}
		return billingPersistence.NewPostgresSubscriptionRepository(pool), nil

	case database.DriverSQLite:
		db, err := f.getSQLiteDB()
		if err != nil {
			return nil, err
		}
		return billingPersistence.NewSQLiteSubscriptionRepository(db), nil

	case database.DriverMongo:
		db, err := f.getMongoDB()
		if err != nil {
			return nil, err
		}
		return billingPersistence.NewMongoSubscriptionRepository(db), nil

	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.conns.Driver)
	}
}

// OutboxRepository creates an outbox repository for the configured driver.
func (f *RepositoryFactory) OutboxRepository() (outbox.Repository, error) {
	switch f.conns.Driver {
	case database.DriverPostgres:
		pool, err := f.getPostgresPool()
		if err != nil {
			return nil, err
		}
		return outbox.NewPostgresRepository(pool), nil

	case database.DriverSQLite:
		db, err := f.getSQLiteDB()
		if err != nil {
			return nil, err
		}
		return outbox.NewSQLiteRepository(db), nil

	case database.DriverMongo:
		db, err := f.getMongoDB()
		if err != nil {
			return nil, err
		}
		return outbox.NewMongoRepository(db), nil

	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.conns.Driver)
	}
}

// UnitOfWork creates the transaction boundary for the configured driver.
func (f *RepositoryFactory) UnitOfWork() (sharedApplication.UnitOfWork, error) {
	switch f.conns.Driver {
	case database.DriverPostgres:
		pool, err := f.getPostgresPool()
		if err != nil {
			return nil, err
		}
		return sharedPersistence.NewPostgresUnitOfWork(pool), nil

	case database.DriverSQLite:
		db, err := f.getSQLiteDB()
		if err != nil {
			return nil, err
		}
		return sharedPersistence.NewSQLiteUnitOfWork(db), nil

	case database.DriverMongo:
		if f.conns.MongoClient == nil {
			return nil, errors.New("mongo client is not connected")
		}
		return sharedPersistence.NewMongoUnitOfWork(f.conns.MongoClient), nil

	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.conns.Driver)
	}
}

type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

// EnsureIndexes creates document store indexes. SQL drivers get theirs
// from migrations.
func (f *RepositoryFactory) EnsureIndexes(ctx context.Context, repos ...any) error {
	if f.conns.Driver != database.DriverMongo {
		return nil
	}
	for _, r := range repos {
		idx, ok := r.(indexer)
		if !ok {
			continue
		}
		if err := idx.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensure indexes: %w", err)
		}
	}
	return nil
}

// Ping checks the configured database.
func (f *RepositoryFactory) Ping(ctx context.Context) error {
	switch f.conns.Driver {
	case database.DriverPostgres:
		pool, err := f.getPostgresPool()
		if err != nil {
			return err
		}
		return pool.Ping(ctx)
	case database.DriverSQLite:
		db, err := f.getSQLiteDB()
		if err != nil {
			return err
		}
		return db.PingContext(ctx)
	case database.DriverMongo:
		if f.conns.MongoClient == nil {
			return errors.New("mongo client is not connected")
		}
		return f.conns.MongoClient.Ping(ctx, nil)
	default:
		return fmt.Errorf("unsupported driver: %s", f.conns.Driver)
	}
}

func (f *RepositoryFactory) getPostgresPool() (*pgxpool.Pool, error) {
	if f.conns.Pool == nil {
		return nil, errors.New("postgres pool is not connected")
	}
	return f.conns.Pool, nil
}

func (f *RepositoryFactory) getSQLiteDB() (*sql.DB, error) {
	if f.conns.SQLite == nil {
		return nil, errors.New("sqlite database is not open")
	}
	return f.conns.SQLite, nil
}

func (f *RepositoryFactory) getMongoDB() (*mongo.Database, error) {
	if f.conns.MongoDB == nil {
		return nil, errors.New("mongo database is not connected")
	}
	return f.conns.MongoDB, nil
}

// Driver returns the database driver type.
func (f *RepositoryFactory) Driver() database.Driver {
	return f.conns.Driver
}

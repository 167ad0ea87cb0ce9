// Package app wires the billing engine's dependencies.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	billingApp "github.com/ins72/mewayz-good-sub001/internal/billing/application"
	billingDomain "github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/ins72/mewayz-good-sub001/internal/billing/infrastructure/catalog"
	"github.com/ins72/mewayz-good-sub001/internal/billing/infrastructure/gateway"
	"github.com/ins72/mewayz-good-sub001/internal/billing/infrastructure/stripe"
	sharedApplication "github.com/ins72/mewayz-good-sub001/internal/shared/application"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/convert"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/database"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/eventbus"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/lock"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/migrations"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/outbox"
	"github.com/ins72/mewayz-good-sub001/pkg/config"
	"github.com/ins72/mewayz-good-sub001/pkg/observability"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const postgresMaxConns = 10

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.PrometheusMetrics
	Health  *observability.HealthRegistry

	// Database. Only the handle for DBDriver is set.
	DBDriver    database.Driver
	SQLDB       *sql.DB
	DB          *pgxpool.Pool
	MongoClient *mongo.Client
	MongoDB     *mongo.Database

	// Redis
	RedisClient *redis.Client

	// Repositories
	SubscriptionRepo billingDomain.SubscriptionRepository
	OutboxRepo       outbox.Repository

	// Unit of Work
	UnitOfWork sharedApplication.UnitOfWork
	Locker     billingApp.Locker

	// Billing
	Catalog        *billingDomain.Catalog
	Calculator     *billingDomain.PriceCalculator
	PaymentGateway billingDomain.PaymentGateway
	GatewayBreaker *gateway.ResilientGateway
	WebhookParser  *stripe.WebhookParser
	Synchronizer   *billingApp.Synchronizer
	AccessGate     *billingApp.AccessGate

	// Events
	EventPublisher  eventbus.Publisher
	OutboxProcessor *outbox.Processor
}

// NewContainer creates a container for the configured database driver.
// SQLite schemas are migrated on open; Postgres schemas are managed with
// the migrate command.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Metrics:  observability.NewPrometheusMetrics(),
		Health:   observability.NewHealthRegistry(),
		DBDriver: cfg.DatabaseDriver,
	}

	if err := c.initDatabase(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initRepositories(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initLocker(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initBilling(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initEvents(); err != nil {
		c.Close()
		return nil, err
	}

	logger.Info("container initialized",
		"driver", c.DBDriver.String(),
		"gateway", c.gatewayName(),
		"locker", c.lockerName(),
	)
	return c, nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	switch c.DBDriver {
	case database.DriverSQLite:
		db, err := database.OpenSQLite(ctx, c.Config.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open SQLite: %w", err)
		}
		c.SQLDB = db
		c.Logger.Info("running SQLite migrations", "path", c.Config.SQLitePath)
		if err := migrations.Up(db, database.DriverSQLite); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

	case database.DriverPostgres:
		pool, err := database.OpenPostgres(ctx, c.Config.DatabaseURL, postgresMaxConns)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		c.DB = pool
		c.Logger.Info("connected to PostgreSQL")

	case database.DriverMongo:
		client, db, err := database.OpenMongo(ctx, c.Config.MongoURL, c.Config.MongoDatabase)
		if err != nil {
			return fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		c.MongoClient = client
		c.MongoDB = db
		c.Logger.Info("connected to MongoDB", "database", db.Name())

	default:
		return fmt.Errorf("unsupported driver: %s", c.DBDriver)
	}
	return nil
}

func (c *Container) initRepositories(ctx context.Context) error {
	factory := NewRepositoryFactory(Connections{
		Driver:      c.DBDriver,
		SQLite:      c.SQLDB,
		Pool:        c.DB,
		MongoClient: c.MongoClient,
		MongoDB:     c.MongoDB,
	})

	var err error
	if c.SubscriptionRepo, err = factory.SubscriptionRepository(); err != nil {
		return fmt.Errorf("subscription repository: %w", err)
	}
	if c.OutboxRepo, err = factory.OutboxRepository(); err != nil {
		return fmt.Errorf("outbox repository: %w", err)
	}
	if c.UnitOfWork, err = factory.UnitOfWork(); err != nil {
		return fmt.Errorf("unit of work: %w", err)
	}
	if err := factory.EnsureIndexes(ctx, c.SubscriptionRepo, c.OutboxRepo); err != nil {
		return err
	}

	c.Health.Register("database", observability.PingChecker("database", observability.HealthStatusUnhealthy, factory.Ping))
	return nil
}

func (c *Container) initLocker(ctx context.Context) error {
	if c.Config.RedisURL == "" {
		c.Locker = lock.NewLocalLocker()
		return nil
	}

	client, err := lock.NewRedisClient(ctx, c.Config.RedisURL)
	if err != nil {
		if c.Config.IsDevelopment() {
			c.Logger.Warn("Redis unavailable, using in-process locks", "error", err)
			c.Locker = lock.NewLocalLocker()
			return nil
		}
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	c.RedisClient = client
	redisLocker := lock.NewRedisLocker(client, c.Config.LockTTL, c.Logger)
	c.Locker = redisLocker
	c.Health.Register("redis", observability.PingChecker("redis", observability.HealthStatusDegraded, redisLocker.Ping))
	c.Logger.Info("connected to Redis")
	return nil
}

func (c *Container) initBilling() error {
	cat, err := catalog.Load(c.Config.BundleCatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load bundle catalog: %w", err)
	}
	c.Catalog = cat
	c.Calculator = billingDomain.NewPriceCalculator(cat, c.Config.BillingCurrency)

	if c.Config.StripeEnabled() {
		stripeGateway, err := stripe.NewGateway(stripe.Config{
			APIKey:    c.Config.StripeAPIKey,
			ProductID: c.Config.StripeProductID,
		}, c.Logger)
		if err != nil {
			return fmt.Errorf("failed to create Stripe gateway: %w", err)
		}
		failures, err := convert.IntToUint32(c.Config.GatewayBreakerFailures)
		if err != nil {
			return fmt.Errorf("gateway breaker failures: %w", err)
		}
		c.GatewayBreaker = gateway.NewResilientGateway(stripeGateway, gateway.Config{
			Timeout:          c.Config.GatewayTimeout,
			FailureThreshold: failures,
			OpenTimeout:      c.Config.GatewayBreakerTimeout,
		}, c.Logger).WithMetrics(c.Metrics)
		c.PaymentGateway = c.GatewayBreaker
		c.Health.Register("payment_gateway", c.GatewayBreaker.HealthCheck)
	} else {
		c.Logger.Warn("STRIPE_API_KEY not set, using local payment gateway")
		c.PaymentGateway = gateway.NewLocalGateway(c.Logger)
	}
	c.WebhookParser = stripe.NewWebhookParser(c.Config.StripeWebhookSecret)

	c.Synchronizer = billingApp.NewSynchronizer(
		c.Calculator,
		c.PaymentGateway,
		c.SubscriptionRepo,
		c.OutboxRepo,
		c.UnitOfWork,
		c.Locker,
		c.Logger,
	).WithMetrics(c.Metrics)

	c.AccessGate = billingApp.NewAccessGate(
		cat,
		c.SubscriptionRepo,
		billingDomain.GracePolicy{Window: c.Config.PastDueGracePeriod},
		c.Logger,
	).WithMetrics(c.Metrics)
	return nil
}

func (c *Container) initEvents() error {
	if c.Config.RabbitMQURL != "" {
		publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Logger)
		switch {
		case err == nil:
			c.EventPublisher = publisher
			c.Health.Register("rabbitmq", observability.PingChecker("rabbitmq", observability.HealthStatusDegraded, func(context.Context) error {
				return publisher.Healthy()
			}))
			c.Logger.Info("connected to RabbitMQ")
		case c.Config.IsDevelopment():
			c.Logger.Warn("RabbitMQ unavailable, using noop publisher", "error", err)
			c.EventPublisher = eventbus.NewNoopPublisher(c.Logger)
		default:
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
	} else {
		bus := eventbus.NewInProcessEventBus(c.Logger)
		bus.RegisterConsumer(billingApp.NewSubscriptionAuditSubscriber(c.Logger))
		c.EventPublisher = bus
	}

	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, c.processorConfig(), c.Logger).
		WithMetrics(c.Metrics)
	c.Health.Register("outbox", c.OutboxProcessor.HealthCheck)
	return nil
}

func (c *Container) processorConfig() outbox.ProcessorConfig {
	cfg := outbox.DefaultProcessorConfig()
	if c.Config.OutboxPollInterval > 0 {
		cfg.PollInterval = c.Config.OutboxPollInterval
	}
	if c.Config.OutboxBatchSize > 0 {
		cfg.BatchSize = c.Config.OutboxBatchSize
	}
	if c.Config.OutboxMaxRetries > 0 {
		cfg.MaxRetries = c.Config.OutboxMaxRetries
	}
	if c.Config.OutboxRetentionDays > 0 {
		cfg.RetentionDays = c.Config.OutboxRetentionDays
	}
	return cfg
}

// StartOutbox starts the background outbox processor when enabled.
func (c *Container) StartOutbox(ctx context.Context) error {
	if !c.Config.OutboxProcessorEnabled {
		c.Logger.Info("outbox processor disabled")
		return nil
	}
	return c.OutboxProcessor.Start(ctx)
}

func (c *Container) gatewayName() string {
	if c.GatewayBreaker != nil {
		return "stripe"
	}
	return "local"
}

func (c *Container) lockerName() string {
	if c.RedisClient != nil {
		return "redis"
	}
	return "local"
}

// Close cleans up all resources.
func (c *Container) Close() {
	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}

	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		} else {
			c.Logger.Info("Redis connection closed")
		}
	}

	if c.DB != nil {
		c.DB.Close()
		c.Logger.Info("PostgreSQL connection closed")
	}

	if c.SQLDB != nil {
		if err := c.SQLDB.Close(); err != nil {
			c.Logger.Warn("error closing SQLite connection", "error", err)
		} else {
			c.Logger.Info("SQLite connection closed")
		}
	}

	if c.MongoClient != nil {
		if err := c.MongoClient.Disconnect(context.Background()); err != nil {
			c.Logger.Warn("error closing MongoDB connection", "error", err)
		} else {
			c.Logger.Info("MongoDB connection closed")
		}
	}
}

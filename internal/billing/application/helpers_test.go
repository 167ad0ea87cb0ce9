package application_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ins72/mewayz-good-sub001/internal/billing/application"
	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/ins72/mewayz-good-sub001/internal/billing/infrastructure/persistence"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/lock"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/outbox"
	"github.com/ins72/mewayz-good-sub001/pkg/observability"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeGateway records calls and hands out sequential ids.
type fakeGateway struct {
	mu        sync.Mutex
	customers int
	created   []domain.SubscriptionRequest
	updated   map[string][]domain.SubscriptionRequest
	canceled  []string
	delay     time.Duration
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{updated: make(map[string][]domain.SubscriptionRequest)}
}

func (g *fakeGateway) CreateCustomer(_ context.Context, _ string, _ map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.customers++
	return fmt.Sprintf("cus_%d", g.customers), nil
}

func (g *fakeGateway) CreateSubscription(_ context.Context, req domain.SubscriptionRequest) (domain.GatewaySubscription, error) {
	time.Sleep(g.delay)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, req)
	return domain.GatewaySubscription{ID: fmt.Sprintf("sub_%d", len(g.created)), Status: domain.StatusPending}, nil
}

func (g *fakeGateway) UpdateSubscription(_ context.Context, id string, req domain.SubscriptionRequest) (domain.SubscriptionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updated[id] = append(g.updated[id], req)
	return domain.StatusActive, nil
}

func (g *fakeGateway) CancelSubscription(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canceled = append(g.canceled, id)
	return nil
}

func (g *fakeGateway) createdCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.created)
}

// mockGateway is used where a test needs to script failures.
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	args := m.Called(ctx, email, metadata)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateSubscription(ctx context.Context, req domain.SubscriptionRequest) (domain.GatewaySubscription, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.GatewaySubscription), args.Error(1)
}

func (m *mockGateway) UpdateSubscription(ctx context.Context, id string, req domain.SubscriptionRequest) (domain.SubscriptionStatus, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(domain.SubscriptionStatus), args.Error(1)
}

func (m *mockGateway) CancelSubscription(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type fixture struct {
	sync    *application.Synchronizer
	gate    *application.AccessGate
	repo    *persistence.InMemorySubscriptionRepository
	outbox  *outbox.InMemoryRepository
	metrics *observability.InMemoryMetrics
	now     time.Time
}

func newFixture(t *testing.T, gateway domain.PaymentGateway, grace time.Duration) *fixture {
	t.Helper()
	catalog, err := domain.NewCatalog(domain.DefaultBundles())
	require.NoError(t, err)

	f := &fixture{
		repo:    persistence.NewInMemorySubscriptionRepository(),
		outbox:  outbox.NewInMemoryRepository(),
		metrics: observability.NewInMemoryMetrics(),
		now:     t0,
	}
	clock := func() time.Time { return f.now }

	f.sync = application.NewSynchronizer(
		domain.NewPriceCalculator(catalog, "usd"),
		gateway, f.repo, f.outbox, nil, lock.NewLocalLocker(), nil,
	).WithMetrics(f.metrics).WithClock(clock)

	f.gate = application.NewAccessGate(catalog, f.repo, domain.GracePolicy{Window: grace}, nil).
		WithMetrics(f.metrics).
		WithClock(clock)
	return f
}

func (f *fixture) routingKeys() []string {
	var keys []string
	for _, msg := range f.outbox.Messages() {
		keys = append(keys, msg.RoutingKey)
	}
	return keys
}

func paymentEvent(id string, kind domain.PaymentEventKind, subID string, status domain.SubscriptionStatus, at time.Time) domain.PaymentEvent {
	return domain.PaymentEvent{ID: id, Kind: kind, ExternalSubscriptionID: subID, Status: status, OccurredAt: at}
}

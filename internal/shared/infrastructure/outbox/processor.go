package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ins72/mewayz-good-sub001/internal/shared/domain"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/eventbus"
	"github.com/ins72/mewayz-good-sub001/pkg/observability"
)

// Metric names recorded by the relay. Per-envelope counters carry an
// "event" tag holding the routing key, e.g. billing.subscription.canceled.
const (
	MetricPublished = "billing_outbox_published_total"
	MetricFailed    = "billing_outbox_failed_total"
	MetricDead      = "billing_outbox_dead_total"
	MetricPending   = "billing_outbox_pending"
	MetricLag       = "billing_outbox_lag_seconds"
	MetricDeleted   = "billing_outbox_deleted_total"
)

// maxBackoffShift caps the exponent so the shift cannot overflow.
const maxBackoffShift = 30

// ProcessorConfig tunes the relay between the subscription store and the
// broker.
type ProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	RetentionDays    int
	// MaxLag is the oldest undelivered envelope age still reported healthy.
	MaxLag time.Duration
}

// DefaultProcessorConfig returns the worker defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     100 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
		RetentionDays:    7,
		MaxLag:           5 * time.Minute,
	}
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDead
)

// Processor relays subscription events written alongside subscription
// state to the event bus, retrying with backoff and dead-lettering
// envelopes that keep failing.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger
	metrics   observability.Metrics
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// NewProcessor creates a stopped relay.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger.With("component", "outbox"),
		metrics:   observability.NoopMetrics{},
		now:       time.Now,
	}
}

// WithMetrics records relay outcomes and backlog gauges.
func (p *Processor) WithMetrics(metrics observability.Metrics) *Processor {
	if metrics != nil {
		p.metrics = metrics
	}
	return p
}

// Start launches the polling loop. Calling it on a running relay is a no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(loopCtx, p.done)

	p.logger.Info("outbox relay started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"max_retries", p.config.MaxRetries,
	)
	return nil
}

// Stop cancels the loop and waits for the batch in flight.
func (p *Processor) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("outbox relay stopped")
}

// IsRunning reports whether Start has been called without a matching Stop.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Processor) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox batch failed", "error", err)
			}
		}
	}
}

// ProcessOnce relays one batch of due envelopes in creation order.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	batch, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.noteError(err)
		return err
	}
	p.noteBatch(batch)

	for _, msg := range batch {
		p.relay(ctx, msg)
	}
	return nil
}

func (p *Processor) relay(ctx context.Context, msg *Message) {
	log := p.logger.With(envelopeAttrs(msg)...)
	event := observability.T("event", msg.RoutingKey)

	pubErr := p.publisher.Publish(ctx, msg.RoutingKey, msg.Payload)
	if pubErr == nil {
		if err := p.repo.MarkPublished(ctx, msg.ID); err != nil {
			log.Error("published envelope not marked, it will be delivered again", "error", err)
			return
		}
		p.metrics.Counter(MetricPublished, 1, event)
		p.note(outcomePublished, nil)
		return
	}

	if p.exhausted(msg) {
		log.Error("dead-lettering subscription event", "retry_count", msg.RetryCount, "error", pubErr)
		p.metrics.Counter(MetricDead, 1, event)
		p.note(outcomeDead, pubErr)
		if err := p.repo.MarkDead(ctx, msg.ID, pubErr.Error()); err != nil {
			log.Error("failed to dead-letter envelope", "error", err)
		}
		return
	}

	next := p.now().Add(p.retryBackoff(msg.RetryCount + 1))
	log.Warn("subscription event not published, will retry",
		"retry_count", msg.RetryCount,
		"next_retry_at", next,
		"error", pubErr,
	)
	p.metrics.Counter(MetricFailed, 1, event)
	p.note(outcomeRetry, pubErr)
	if err := p.repo.MarkFailed(ctx, msg.ID, pubErr.Error(), next); err != nil {
		log.Error("failed to schedule retry", "error", err)
	}
}

// exhausted reports whether this attempt is the last one allowed.
func (p *Processor) exhausted(msg *Message) bool {
	return p.config.MaxRetries <= 0 || msg.RetryCount+1 >= p.config.MaxRetries
}

func (p *Processor) retryBackoff(attempt int) time.Duration {
	base, ceiling := p.config.RetryBackoffBase, p.config.RetryBackoffMax
	if base <= 0 {
		base = time.Second
	}
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	shift := max(attempt-1, 0)
	if shift > maxBackoffShift {
		return ceiling
	}
	if backoff := base << uint(shift); backoff > 0 && backoff <= ceiling {
		return backoff
	}
	return ceiling
}

// envelopeAttrs identifies the subscription event in relay logs. The
// metadata column carries the user and correlation id of the request that
// produced it.
func envelopeAttrs(msg *Message) []any {
	attrs := []any{
		"outbox_id", msg.ID,
		"routing_key", msg.RoutingKey,
		"event_id", msg.EventID,
		"aggregate_id", msg.AggregateID,
	}
	var meta domain.EventMetadata
	if len(msg.Metadata) == 0 || json.Unmarshal(msg.Metadata, &meta) != nil {
		return attrs
	}
	if meta.UserID != "" {
		attrs = append(attrs, observability.UserIDKey, meta.UserID)
	}
	if id := uuidString(meta.CorrelationID); id != "" {
		attrs = append(attrs, observability.CorrelationIDKey, id)
	}
	return attrs
}

// Cleanup deletes published envelopes past the retention period.
func (p *Processor) Cleanup(ctx context.Context) (int64, error) {
	days := p.config.RetentionDays
	if days <= 0 {
		days = DefaultProcessorConfig().RetentionDays
	}
	deleted, err := p.repo.DeleteOld(ctx, days)
	if err != nil {
		p.noteError(err)
		return 0, err
	}
	if deleted > 0 {
		p.metrics.Counter(MetricDeleted, deleted)
		p.logger.Info("pruned published envelopes", "deleted", deleted, "retention_days", days)
	}
	return deleted, nil
}

// ReportBacklog refreshes the pending gauge from the repository.
func (p *Processor) ReportBacklog(ctx context.Context) (int64, error) {
	pending, err := p.repo.CountPending(ctx)
	if err != nil {
		return 0, err
	}
	p.metrics.Gauge(MetricPending, float64(pending))
	return pending, nil
}

// HealthCheck reports degraded when envelopes were dead-lettered or the
// oldest undelivered one is older than MaxLag, and unhealthy when the
// backlog cannot be read.
func (p *Processor) HealthCheck(ctx context.Context) observability.HealthCheckResult {
	pending, err := p.ReportBacklog(ctx)
	if err != nil {
		return observability.HealthCheckResult{
			Status:  observability.HealthStatusUnhealthy,
			Message: "outbox backlog unreadable: " + err.Error(),
		}
	}

	stats := p.GetStats()
	result := observability.HealthCheckResult{
		Status:  observability.HealthStatusHealthy,
		Message: fmt.Sprintf("%d subscription events pending", pending),
		Details: map[string]any{
			"pending":     pending,
			"dead":        stats.DeadCount,
			"lag_seconds": stats.LagSeconds,
			"running":     stats.IsRunning,
		},
	}
	maxLag := p.config.MaxLag
	if maxLag <= 0 {
		maxLag = DefaultProcessorConfig().MaxLag
	}
	switch {
	case stats.DeadCount > 0:
		result.Status = observability.HealthStatusDegraded
		result.Message = fmt.Sprintf("%d subscription events dead-lettered", stats.DeadCount)
	case stats.LagSeconds > maxLag.Seconds():
		result.Status = observability.HealthStatusDegraded
		result.Message = fmt.Sprintf("oldest pending event is %.0fs old", stats.LagSeconds)
	}
	return result
}

// Stats is a snapshot of relay activity since start.
type Stats struct {
	IsRunning       bool
	PublishedCount  uint64
	FailedCount     uint64
	DeadCount       uint64
	LagSeconds      float64
	LastError       string
	LastErrorAt     *time.Time
	LastProcessedAt *time.Time
	OldestMessageAt *time.Time
}

// GetStats returns a copy of the counters.
func (p *Processor) GetStats() Stats {
	running := p.IsRunning()
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	s := p.stats
	s.IsRunning = running
	return s
}

func (p *Processor) note(o outcome, err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	switch o {
	case outcomePublished:
		p.stats.PublishedCount++
	case outcomeRetry:
		p.stats.FailedCount++
	case outcomeDead:
		p.stats.DeadCount++
	}
	if err != nil {
		p.setError(err)
	}
}

func (p *Processor) noteError(err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.setError(err)
}

// setError requires statsMu.
func (p *Processor) setError(err error) {
	at := p.now()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &at
}

func (p *Processor) noteBatch(batch []*Message) {
	now := p.now()
	var oldest *time.Time
	for _, msg := range batch {
		if oldest == nil || msg.CreatedAt.Before(*oldest) {
			created := msg.CreatedAt
			oldest = &created
		}
	}
	lag := 0.0
	if oldest != nil {
		lag = now.Sub(*oldest).Seconds()
	}

	p.statsMu.Lock()
	p.stats.LastProcessedAt = &now
	p.stats.OldestMessageAt = oldest
	p.stats.LagSeconds = lag
	p.statsMu.Unlock()

	p.metrics.Gauge(MetricLag, lag)
}

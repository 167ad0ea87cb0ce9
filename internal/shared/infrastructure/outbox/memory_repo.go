package outbox

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository keeps messages in process. Used by tests and by the
// CLI when it runs without a database.
type InMemoryRepository struct {
	mu       sync.Mutex
	messages []*Message
	nextID   int64
	now      func() time.Time
}

// NewInMemoryRepository creates a new in-memory outbox repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{nextID: 1, now: time.Now}
}

func (r *InMemoryRepository) Save(ctx context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveLocked(msg)
	return nil
}

func (r *InMemoryRepository) saveLocked(msg *Message) {
	msg.ID = r.nextID
	r.nextID++
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now()
	}
	r.messages = append(r.messages, msg)
}

func (r *InMemoryRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		r.saveLocked(msg)
	}
	return nil
}

func (r *InMemoryRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	return r.filter(limit, func(msg *Message) bool { return true }), nil
}

func (r *InMemoryRepository) GetFailed(ctx context.Context, maxRetries, limit int) ([]*Message, error) {
	return r.filter(limit, func(msg *Message) bool {
		return msg.RetryCount > 0 && msg.RetryCount < maxRetries
	}), nil
}

func (r *InMemoryRepository) filter(limit int, keep func(*Message) bool) []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var result []*Message
	for _, msg := range r.messages {
		if msg.PublishedAt != nil || msg.DeadLetteredAt != nil {
			continue
		}
		if msg.NextRetryAt != nil && msg.NextRetryAt.After(now) {
			continue
		}
		if !keep(msg) {
			continue
		}
		result = append(result, msg)
		if len(result) >= limit {
			break
		}
	}
	return result
}

func (r *InMemoryRepository) update(id int64, fn func(*Message)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id {
			fn(msg)
			return
		}
	}
}

func (r *InMemoryRepository) MarkPublished(ctx context.Context, id int64) error {
	r.update(id, func(msg *Message) {
		now := r.now()
		msg.PublishedAt = &now
		msg.DeadLetteredAt = nil
	})
	return nil
}

func (r *InMemoryRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	r.update(id, func(msg *Message) {
		msg.RetryCount++
		msg.LastError = &errMsg
		msg.NextRetryAt = &nextRetryAt
	})
	return nil
}

func (r *InMemoryRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	r.update(id, func(msg *Message) {
		now := r.now()
		msg.DeadLetteredAt = &now
		msg.DeadLetterReason = &reason
	})
	return nil
}

func (r *InMemoryRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().AddDate(0, 0, -olderThanDays)
	kept := r.messages[:0]
	var deleted int64
	for _, msg := range r.messages {
		if msg.PublishedAt != nil && msg.PublishedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, msg)
	}
	r.messages = kept
	return deleted, nil
}

func (r *InMemoryRepository) CountPending(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, msg := range r.messages {
		if msg.PublishedAt == nil && msg.DeadLetteredAt == nil {
			n++
		}
	}
	return n, nil
}

// Messages returns every stored message, published or not.
func (r *InMemoryRepository) Messages() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Message(nil), r.messages...)
}

var _ Repository = (*InMemoryRepository)(nil)

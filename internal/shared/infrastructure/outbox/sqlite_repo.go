package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	sharedPersistence "github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/persistence"
)

// sqliteTimeLayout keeps timestamps lexically ordered.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteOutboxColumns = `id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
	payload, metadata, created_at, published_at, next_retry_at, retry_count,
	last_error, dead_lettered_at, dead_letter_reason`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite outbox repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func (r *SQLiteRepository) insert(ctx context.Context, exec sharedPersistence.SQLExecutor, msg *Message) error {
	res, err := exec.ExecContext(ctx, `
		INSERT INTO outbox (
			event_id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, metadata, created_at, retry_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		msg.EventID.String(),
		msg.AggregateType,
		msg.AggregateID.String(),
		msg.EventType,
		msg.RoutingKey,
		string(msg.Payload),
		sql.NullString{String: string(msg.Metadata), Valid: len(msg.Metadata) > 0},
		formatSQLiteTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert outbox message %s: %w", msg.EventID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	msg.ID = id
	return nil
}

// Save stores a new outbox message.
func (r *SQLiteRepository) Save(ctx context.Context, msg *Message) error {
	return r.insert(ctx, sharedPersistence.SQLiteExecutor(ctx, r.db), msg)
}

// SaveBatch stores multiple outbox messages atomically, joining the
// transaction in ctx when present.
func (r *SQLiteRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}

	if info, ok := sharedPersistence.SQLiteTxInfoFromContext(ctx); ok {
		for _, msg := range msgs {
			if err := r.insert(ctx, info.Tx, msg); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, msg := range msgs {
		if err := r.insert(ctx, tx, msg); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetUnpublished retrieves due, unpublished messages in creation order.
func (r *SQLiteRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT `+sqliteOutboxColumns+`
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at, id
		LIMIT ?`,
		formatSQLiteTime(r.now()), limit,
	)
	if err != nil {
		return nil, err
	}
	return scanSQLiteMessages(rows)
}

// MarkPublished marks a message as successfully published.
func (r *SQLiteRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx,
		`UPDATE outbox SET published_at = ?, dead_lettered_at = NULL WHERE id = ?`,
		formatSQLiteTime(r.now()), id,
	)
	return err
}

// MarkFailed records a publish failure and schedules the next attempt.
func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, `
		UPDATE outbox
		SET retry_count = retry_count + 1,
			last_error = ?,
			next_retry_at = ?
		WHERE id = ?`,
		errMsg, formatSQLiteTime(nextRetryAt), id,
	)
	return err
}

// MarkDead marks a message as dead-lettered.
func (r *SQLiteRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, `
		UPDATE outbox
		SET dead_lettered_at = ?,
			dead_letter_reason = ?
		WHERE id = ?`,
		formatSQLiteTime(r.now()), reason, id,
	)
	return err
}

// GetFailed retrieves failed messages eligible for retry.
func (r *SQLiteRepository) GetFailed(ctx context.Context, maxRetries, limit int) ([]*Message, error) {
	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT `+sqliteOutboxColumns+`
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND retry_count > 0
		  AND retry_count < ?
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at, id
		LIMIT ?`,
		maxRetries, formatSQLiteTime(r.now()), limit,
	)
	if err != nil {
		return nil, err
	}
	return scanSQLiteMessages(rows)
}

// DeleteOld removes published messages older than the retention period.
func (r *SQLiteRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -olderThanDays)
	res, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < ?`,
		formatSQLiteTime(cutoff),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountPending returns the number of messages not yet published or dead.
func (r *SQLiteRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox WHERE published_at IS NULL AND dead_lettered_at IS NULL`,
	).Scan(&n)
	return n, err
}

func scanSQLiteMessages(rows *sql.Rows) ([]*Message, error) {
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var (
			msg                                      Message
			eventID, aggregateID, payload, createdAt string
			metadata, lastError, deadReason          sql.NullString
			publishedAt, nextRetryAt, deadAt         sql.NullString
		)
		err := rows.Scan(
			&msg.ID, &eventID, &msg.AggregateType, &aggregateID, &msg.EventType, &msg.RoutingKey,
			&payload, &metadata, &createdAt, &publishedAt, &nextRetryAt, &msg.RetryCount,
			&lastError, &deadAt, &deadReason,
		)
		if err != nil {
			return nil, err
		}

		if msg.EventID, err = uuid.Parse(eventID); err != nil {
			return nil, fmt.Errorf("outbox %d: event id: %w", msg.ID, err)
		}
		if msg.AggregateID, err = uuid.Parse(aggregateID); err != nil {
			return nil, fmt.Errorf("outbox %d: aggregate id: %w", msg.ID, err)
		}
		if msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("outbox %d: created_at: %w", msg.ID, err)
		}
		msg.Payload = json.RawMessage(payload)
		if metadata.Valid {
			msg.Metadata = json.RawMessage(metadata.String)
		}
		msg.PublishedAt = parseSQLiteNullTime(publishedAt)
		msg.NextRetryAt = parseSQLiteNullTime(nextRetryAt)
		msg.DeadLetteredAt = parseSQLiteNullTime(deadAt)
		if lastError.Valid {
			msg.LastError = &lastError.String
		}
		if deadReason.Valid {
			msg.DeadLetterReason = &deadReason.String
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

func parseSQLiteNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

var _ Repository = (*SQLiteRepository)(nil)

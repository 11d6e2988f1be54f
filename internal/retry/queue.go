// Package retry schedules failed outbound messages for redelivery with
// increasing backoff. State lives in the outbound_retries table so pending
// retries survive a restart.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Delays is the backoff schedule; the attempt number indexes into it.
var Delays = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}

// DefaultMaxAttempts gives up after the schedule is exhausted.
const DefaultMaxAttempts = 3

// Item is one scheduled redelivery.
type Item struct {
	ID        string
	MessageID string
	Attempts  int
	NextAt    time.Time
	LastError string
}

// Queue persists pending redeliveries.
type Queue struct {
	pool        *pgxpool.Pool
	logger      *slog.Logger
	maxAttempts int
}

// NewQueue creates a retry queue. maxAttempts <= 0 selects the default.
func NewQueue(pool *pgxpool.Pool, maxAttempts int, log *slog.Logger) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Queue{
		pool:        pool,
		logger:      log.With(slog.String("service", "retry_queue")),
		maxAttempts: maxAttempts,
	}
}

// Delay returns the backoff before the given attempt (1-based).
func Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(Delays) {
		return Delays[len(Delays)-1]
	}
	return Delays[attempt-1]
}

// Enqueue schedules the next delivery attempt for a message. attempt counts
// failures so far; once it reaches the limit the message stays failed and no
// row is written.
func (q *Queue) Enqueue(ctx context.Context, messageID string, attempt int, cause error) error {
	if attempt >= q.maxAttempts {
		q.logger.Warn("message exhausted delivery attempts",
			slog.String("message_id", messageID), slog.Int("attempts", attempt))
		return nil
	}
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	nextAt := time.Now().Add(Delay(attempt))

	_, err := q.pool.Exec(ctx, `INSERT INTO outbound_retries
			(id, message_id, attempts, next_at, last_error)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id) DO UPDATE
		SET attempts = EXCLUDED.attempts,
		    next_at = EXCLUDED.next_at,
		    last_error = EXCLUDED.last_error`,
		uuid.NewString(), messageID, attempt, nextAt, lastError)
	if err != nil {
		return fmt.Errorf("enqueue retry: %w", err)
	}
	q.logger.Info("retry scheduled",
		slog.String("message_id", messageID),
		slog.Int("attempt", attempt),
		slog.Time("next_at", nextAt))
	return nil
}

// ClaimDue removes and returns retries whose time has come. Removal before
// dispatch keeps the sweep idempotent: a failed dispatch re-enqueues.
func (q *Queue) ClaimDue(ctx context.Context, now time.Time) ([]Item, error) {
	rows, err := q.pool.Query(ctx, `DELETE FROM outbound_retries
		WHERE id IN (
			SELECT id FROM outbound_retries
			WHERE next_at <= $1
			ORDER BY next_at
			LIMIT 50
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, message_id, attempts, next_at, COALESCE(last_error, '')`, now)
	if err != nil {
		return nil, fmt.Errorf("claim due retries: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.MessageID, &item.Attempts, &item.NextAt, &item.LastError); err != nil {
			return nil, fmt.Errorf("scan retry: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MaxAttempts returns the configured attempt limit.
func (q *Queue) MaxAttempts() int {
	return q.maxAttempts
}

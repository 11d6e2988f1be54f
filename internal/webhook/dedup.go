// Package webhook tracks processed platform events so redeliveries are
// acknowledged without creating duplicate messages.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnidesk/omnidesk/internal/channel"
)

const uniqueViolationCode = "23505"

// Deduplicator persists a ledger of processed webhook events keyed by
// (source, event id). Events are recorded only after successful processing,
// so a crash mid-processing lets the platform redeliver.
type Deduplicator struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewDeduplicator creates a webhook event ledger.
func NewDeduplicator(pool *pgxpool.Pool, log *slog.Logger) *Deduplicator {
	return &Deduplicator{
		pool:   pool,
		logger: log.With(slog.String("service", "webhook_dedup")),
	}
}

// Seen reports whether the event was already processed. An empty event id is
// never considered seen: events without platform ids are processed
// unconditionally.
func (d *Deduplicator) Seen(ctx context.Context, source channel.Source, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	var exists bool
	err := d.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM webhook_events WHERE source = $1 AND event_id = $2
	)`, source, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check webhook event: %w", err)
	}
	return exists, nil
}

// Record marks the event processed. A concurrent insert of the same event
// loses the unique-index race and is treated as already recorded.
func (d *Deduplicator) Record(ctx context.Context, source channel.Source, eventID, eventType string, payload []byte) error {
	if eventID == "" {
		return nil
	}
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := d.pool.Exec(ctx, `INSERT INTO webhook_events
			(id, source, event_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), source, eventID, eventType, payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			d.logger.Debug("webhook event already recorded",
				slog.String("source", source.String()), slog.String("event_id", eventID))
			return nil
		}
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnidesk/omnidesk/internal/channel"
)

// ErrNotFound is returned when a conversation or message does not exist.
var ErrNotFound = errors.New("not found")

const uniqueViolationCode = "23505"

// Store persists conversations and messages in postgres.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a conversation store.
func NewStore(pool *pgxpool.Pool, log *slog.Logger) *Store {
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "conversation")),
	}
}

const conversationColumns = `id, source, external_id, COALESCE(client_id::text, ''), status,
	COALESCE(assigned_to, ''), last_message_at, unread_count, created_at, updated_at`

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.Source, &c.ExternalID, &c.ClientID, &c.Status,
		&c.AssignedTo, &c.LastMessageAt, &c.UnreadCount, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// FindOrCreate resolves the conversation for an inbound event. The exact
// (source, external_id) pair wins; a client id lookup applies only when the
// platform gave no external id. A found conversation missing its client id
// gets it backfilled.
func (s *Store) FindOrCreate(ctx context.Context, source channel.Source, externalID, clientID string) (Conversation, error) {
	externalID = strings.TrimSpace(externalID)
	clientID = strings.TrimSpace(clientID)

	if externalID != "" {
		row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+`
			FROM conversations WHERE source = $1 AND external_id = $2`, source, externalID)
		conv, err := scanConversation(row)
		switch {
		case err == nil:
			if clientID != "" && conv.ClientID == "" {
				if err := s.backfillClientID(ctx, conv.ID, clientID); err != nil {
					s.logger.Warn("client id backfill failed",
						slog.String("conversation_id", conv.ID), slog.String("error", err.Error()))
				} else {
					conv.ClientID = clientID
				}
			}
			return conv, nil
		case !errors.Is(err, pgx.ErrNoRows):
			return Conversation{}, fmt.Errorf("find conversation: %w", err)
		}
	} else if clientID != "" {
		row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+`
			FROM conversations
			WHERE source = $1 AND client_id = $2 AND status <> 'closed'
			ORDER BY last_message_at DESC LIMIT 1`, source, clientID)
		conv, err := scanConversation(row)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, fmt.Errorf("find conversation by client: %w", err)
		}
	}

	conv, err := s.create(ctx, source, externalID, clientID)
	if err == nil {
		return conv, nil
	}

	// Concurrent inbound events for the same party race on the unique
	// index; the loser re-reads the winner's row.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode && externalID != "" {
		row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+`
			FROM conversations WHERE source = $1 AND external_id = $2`, source, externalID)
		conv, rerr := scanConversation(row)
		if rerr != nil {
			return Conversation{}, fmt.Errorf("reread conversation after conflict: %w", rerr)
		}
		return conv, nil
	}
	return Conversation{}, err
}

func (s *Store) create(ctx context.Context, source channel.Source, externalID, clientID string) (Conversation, error) {
	id := uuid.NewString()
	row := s.pool.QueryRow(ctx, `INSERT INTO conversations
			(id, source, external_id, client_id, status, last_message_at, unread_count)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, 'new', now(), 0)
		RETURNING `+conversationColumns, id, source, externalID, clientID)
	conv, err := scanConversation(row)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	s.logger.Info("conversation created",
		slog.String("conversation_id", conv.ID), slog.String("source", source.String()))
	return conv, nil
}

func (s *Store) backfillClientID(ctx context.Context, id, clientID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE conversations
		SET client_id = $2::uuid, updated_at = now()
		WHERE id = $1 AND client_id IS NULL`, id, clientID)
	return err
}

// Get returns a single conversation by id.
func (s *Store) Get(ctx context.Context, id string) (Conversation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+`
		FROM conversations WHERE id = $1`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	Status Status
	Source channel.Source
	Limit  int
	Offset int
}

// List returns conversations ordered by most recent activity.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Conversation, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `SELECT `+conversationColumns+`
		FROM conversations
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR source = $2)
		ORDER BY last_message_at DESC
		LIMIT $3 OFFSET $4`, string(filter.Status), string(filter.Source), limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var items []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		items = append(items, conv)
	}
	return items, rows.Err()
}

// Close marks a conversation closed.
func (s *Store) Close(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE conversations
		SET status = 'closed', updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRead zeroes the unread counter and flips all incoming messages that
// have not reached a terminal state to read. Both run in one transaction so
// the counter never disagrees with the messages.
func (s *Store) MarkRead(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE conversations
		SET unread_count = 0, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("reset unread count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx, `UPDATE messages
		SET status = 'read'
		WHERE conversation_id = $1 AND direction = 'incoming' AND status <> 'read'`, id); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	return tx.Commit(ctx)
}

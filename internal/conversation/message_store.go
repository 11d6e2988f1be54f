package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const messageColumns = `id, conversation_id, direction, COALESCE(content, ''),
	content_type, status, source_data, created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.Content,
		&m.ContentType, &m.Status, &m.SourceData, &m.CreatedAt)
	return m, err
}

// Append inserts a message with its attachments and bumps the parent
// conversation in a single transaction: last activity moves forward, a new
// conversation becomes active, and incoming messages increment the unread
// counter atomically in SQL.
func (s *Store) Append(ctx context.Context, conversationID string, msg Message) (Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	msg.ID = uuid.NewString()
	msg.ConversationID = conversationID
	row := tx.QueryRow(ctx, `INSERT INTO messages
			(id, conversation_id, direction, content, content_type, status, source_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+messageColumns,
		msg.ID, conversationID, msg.Direction, msg.Content, msg.ContentType, msg.Status, msg.SourceData)
	saved, err := scanMessage(row)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	for i, att := range msg.Attachments {
		attID := uuid.NewString()
		if _, err := tx.Exec(ctx, `INSERT INTO message_attachments
				(id, message_id, type, url, file_name, file_size, mime_type, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			attID, saved.ID, att.Type, att.URL, att.FileName, att.FileSize, att.MimeType, i); err != nil {
			return Message{}, fmt.Errorf("insert attachment: %w", err)
		}
		att.ID = attID
		att.MessageID = saved.ID
		att.Position = i
		saved.Attachments = append(saved.Attachments, att)
	}

	unreadDelta := 0
	if msg.Direction == DirectionIncoming {
		unreadDelta = 1
	}
	if _, err := tx.Exec(ctx, `UPDATE conversations
		SET last_message_at = $2,
		    unread_count = unread_count + $3,
		    status = CASE WHEN status = 'new' THEN 'active' ELSE status END,
		    updated_at = now()
		WHERE id = $1`, conversationID, saved.CreatedAt, unreadDelta); err != nil {
		return Message{}, fmt.Errorf("bump conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, fmt.Errorf("commit: %w", err)
	}
	return saved, nil
}

// GetMessage returns a message with its attachments.
func (s *Store) GetMessage(ctx context.Context, id string) (Message, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+messageColumns+`
		FROM messages WHERE id = $1`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message: %w", err)
	}
	attachments, err := s.listAttachments(ctx, []string{msg.ID})
	if err != nil {
		return Message{}, err
	}
	msg.Attachments = attachments[msg.ID]
	return msg, nil
}

// ListMessages returns a conversation's messages oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT `+messageColumns+`
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3`, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var items []Message
	var ids []string
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, msg)
		ids = append(ids, msg.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	attachments, err := s.listAttachments(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Attachments = attachments[items[i].ID]
	}
	return items, nil
}

func (s *Store) listAttachments(ctx context.Context, messageIDs []string) (map[string][]Attachment, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id, message_id, type, url,
			COALESCE(file_name, ''), COALESCE(file_size, 0), COALESCE(mime_type, ''), position
		FROM message_attachments
		WHERE message_id = ANY($1)
		ORDER BY message_id, position`, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	out := map[string][]Attachment{}
	for rows.Next() {
		var att Attachment
		if err := rows.Scan(&att.ID, &att.MessageID, &att.Type, &att.URL,
			&att.FileName, &att.FileSize, &att.MimeType, &att.Position); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		out[att.MessageID] = append(out[att.MessageID], att)
	}
	return out, rows.Err()
}

// UpdateMessageStatus applies a status change if it is legal for the
// message's current status. Illegal transitions are ignored with a warning
// so late platform callbacks cannot move a message backwards.
func (s *Store) UpdateMessageStatus(ctx context.Context, id string, to MessageStatus) error {
	var current MessageStatus
	err := s.pool.QueryRow(ctx, `SELECT status FROM messages WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read message status: %w", err)
	}
	if !CanTransition(current, to) {
		s.logger.Warn("ignoring illegal message status transition",
			slog.String("message_id", id),
			slog.String("from", string(current)), slog.String("to", string(to)))
		return nil
	}
	// Compare-and-set so a concurrent transition cannot be overwritten.
	tag, err := s.pool.Exec(ctx, `UPDATE messages SET status = $3
		WHERE id = $1 AND status = $2`, id, current, to)
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Warn("message status changed concurrently, transition skipped",
			slog.String("message_id", id), slog.String("to", string(to)))
	}
	return nil
}

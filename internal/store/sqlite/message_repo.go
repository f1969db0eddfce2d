package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rtchat/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const (
	markDelivered = "delivered"
	markSeen      = "seen"
	markDeleted   = "deleted"
)

const messageColumns = `id, sender_id, receiver_id, room_id, content, kind, file_url, file_name, reply_to_id, edited, deleted_for_everyone, created_at, updated_at`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	query := `
		INSERT INTO messages (id, sender_id, receiver_id, room_id, content, kind, file_url, file_name, reply_to_id, edited, deleted_for_everyone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.SenderID, m.ReceiverID, m.RoomID, m.Content, string(m.Kind),
		m.FileURL, m.FileName, m.ReplyToID, m.Edited, m.DeletedForEveryone,
		m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	m, err := r.scanMessage(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadSets(ctx, []*domain.Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepo) ListForRoom(ctx context.Context, roomID, viewerID string, limit int, before time.Time) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		WHERE m.room_id = ?
		  AND NOT EXISTS (
			SELECT 1 FROM message_marks mk
			WHERE mk.message_id = m.id AND mk.user_id = ? AND mk.kind = ?
		  )
	`
	args := []any{roomID, viewerID, markDeleted}
	if !before.IsZero() {
		query += ` AND m.created_at < ?`
		args = append(args, before)
	}
	query += ` ORDER BY m.created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		m, err := r.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadSets(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *MessageRepo) MarkDelivered(ctx context.Context, messageID, userID string) (bool, error) {
	return r.addMark(ctx, messageID, userID, markDelivered)
}

func (r *MessageRepo) MarkSeen(ctx context.Context, messageID, userID string) (bool, error) {
	return r.addMark(ctx, messageID, userID, markSeen)
}

func (r *MessageRepo) MarkDeletedFor(ctx context.Context, messageID, userID string) (bool, error) {
	return r.addMark(ctx, messageID, userID, markDeleted)
}

func (r *MessageRepo) addMark(ctx context.Context, messageID, userID, kind string) (bool, error) {
	query := `INSERT OR IGNORE INTO message_marks (message_id, user_id, kind) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, messageID, userID, kind)
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", kind, err)
	}
	return n > 0, nil
}

func (r *MessageRepo) SetDeletedForEveryone(ctx context.Context, messageID string) error {
	query := `
		UPDATE messages
		SET deleted_for_everyone = 1, content = '', file_url = NULL, file_name = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, messageID); err != nil {
		return fmt.Errorf("set deleted for everyone: %w", err)
	}
	return nil
}

func (r *MessageRepo) UpdateContent(ctx context.Context, messageID, content string) error {
	query := `
		UPDATE messages
		SET content = ?, edited = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, content, messageID); err != nil {
		return fmt.Errorf("update content: %w", err)
	}
	return nil
}

func (r *MessageRepo) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	insert := `INSERT OR IGNORE INTO message_reactions (message_id, user_id, emoji) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, insert, messageID, userID, emoji)
	if err != nil {
		return false, fmt.Errorf("add reaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add reaction: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	remove := `DELETE FROM message_reactions WHERE message_id = ? AND user_id = ? AND emoji = ?`
	if _, err := r.db.ExecContext(ctx, remove, messageID, userID, emoji); err != nil {
		return false, fmt.Errorf("remove reaction: %w", err)
	}
	return false, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *MessageRepo) scanMessage(row rowScanner) (*domain.Message, error) {
	m := &domain.Message{}
	var kind string
	err := row.Scan(
		&m.ID,
		&m.SenderID,
		&m.ReceiverID,
		&m.RoomID,
		&m.Content,
		&kind,
		&m.FileURL,
		&m.FileName,
		&m.ReplyToID,
		&m.Edited,
		&m.DeletedForEveryone,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	m.Kind = domain.MessageKind(kind)
	return m, nil
}

// loadSets hydrates marks and reactions for the given messages with one query
// per table.
func (r *MessageRepo) loadSets(ctx context.Context, messages []*domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Message, len(messages))
	placeholders := ""
	args := make([]any, 0, len(messages))
	for i, m := range messages {
		byID[m.ID] = m
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, m.ID)
	}

	marks, err := r.db.QueryContext(ctx,
		`SELECT message_id, user_id, kind FROM message_marks WHERE message_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("load marks: %w", err)
	}
	defer marks.Close()
	for marks.Next() {
		var messageID, userID, kind string
		if err := marks.Scan(&messageID, &userID, &kind); err != nil {
			return fmt.Errorf("scan mark: %w", err)
		}
		m := byID[messageID]
		if m == nil {
			continue
		}
		switch kind {
		case markDelivered:
			m.DeliveredTo = append(m.DeliveredTo, userID)
		case markSeen:
			m.SeenBy = append(m.SeenBy, userID)
		case markDeleted:
			m.DeletedFor = append(m.DeletedFor, userID)
		}
	}
	if err := marks.Err(); err != nil {
		return err
	}

	reactions, err := r.db.QueryContext(ctx,
		`SELECT message_id, user_id, emoji FROM message_reactions WHERE message_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("load reactions: %w", err)
	}
	defer reactions.Close()
	for reactions.Next() {
		var messageID, userID, emoji string
		if err := reactions.Scan(&messageID, &userID, &emoji); err != nil {
			return fmt.Errorf("scan reaction: %w", err)
		}
		if m := byID[messageID]; m != nil {
			m.Reactions = append(m.Reactions, domain.Reaction{Emoji: emoji, UserID: userID})
		}
	}
	return reactions.Err()
}

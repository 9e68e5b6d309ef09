package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pairchat/internal/logger"
	"github.com/pairchat/internal/model"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

const messageColumns = `m.id, m.conversation_id, m.sender_id, m.receiver_id, m.content, m.content_type,
	        m.file_url, m.file_name, m.file_size, m.latitude, m.longitude,
	        m.sent_at, m.delivered_at, m.read_at, m.edited_at, m.is_deleted, m.created_at`

func scanMessage(row pgx.Row) (*model.Message, error) {
	m := &model.Message{}
	sender := &model.UserPublic{}
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Content, &m.ContentType,
		&m.FileURL, &m.FileName, &m.FileSize, &m.Latitude, &m.Longitude,
		&m.SentAt, &m.DeliveredAt, &m.ReadAt, &m.EditedAt, &m.IsDeleted, &m.CreatedAt,
		&sender.ID, &sender.DisplayName, &sender.AvatarURL, &sender.IsOnline, &sender.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}
	m.Sender = sender
	return m, nil
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content, content_type,
		   file_url, file_name, file_size, latitude, longitude, sent_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		m.ID, m.ConversationID, m.SenderID, m.ReceiverID, m.Content, m.ContentType,
		m.FileURL, m.FileName, m.FileSize, m.Latitude, m.Longitude, m.SentAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m, err := scanMessage(r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+`,
		        u.id, u.display_name, u.avatar_url, u.is_online, u.last_seen_at
		 FROM messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// List returns messages newest first. Soft-deleted messages come back as
// tombstones: the row keeps its position, the content is hidden.
func (r *MessageRepository) List(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.List", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+`,
		        u.id, u.display_name, u.avatar_url, u.is_online, u.last_seen_at
		 FROM messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.conversation_id = $1
		 ORDER BY m.created_at DESC
		 LIMIT $2 OFFSET $3`, conversationID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.List query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("msgRepo.List scan: %w", err)
		}
		if m.IsDeleted {
			*m = m.Tombstone()
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.List rows: %w", err)
	}
	return messages, nil
}

// MarkDelivered sets delivered_at once. A second call, or a call on an
// already-read message, changes nothing and is not an error; the returned
// flag reports whether this call performed the transition.
func (r *MessageRepository) MarkDelivered(ctx context.Context, messageID string, t time.Time) (bool, error) {
	defer logger.DeferLogDuration("msg.MarkDelivered", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET delivered_at = $2
		 WHERE id = $1 AND delivered_at IS NULL`,
		messageID, t,
	)
	if err != nil {
		return false, fmt.Errorf("msgRepo.MarkDelivered: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkConversationRead sets read_at on every unread message addressed to
// userID in the conversation, backfilling delivered_at where a read
// notification outran the delivery one. Returns the ids that transitioned.
func (r *MessageRepository) MarkConversationRead(ctx context.Context, conversationID, userID string, t time.Time) ([]string, error) {
	defer logger.DeferLogDuration("msg.MarkConversationRead", time.Now())()
	rows, err := r.pool.Query(ctx,
		`UPDATE messages SET read_at = $3, delivered_at = COALESCE(delivered_at, $3)
		 WHERE conversation_id = $1 AND receiver_id = $2 AND read_at IS NULL
		 RETURNING id`,
		conversationID, userID, t,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.MarkConversationRead: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("msgRepo.MarkConversationRead scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.MarkConversationRead rows: %w", err)
	}
	return ids, nil
}

// UpdateContent replaces a message's content and stamps edited_at.
func (r *MessageRepository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	defer logger.DeferLogDuration("msg.UpdateContent", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET content = $1, edited_at = $2 WHERE id = $3 AND is_deleted = false`,
		content, editedAt, id,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.UpdateContent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete marks a message deleted and clears its content. Terminal.
func (r *MessageRepository) SoftDelete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("msg.SoftDelete", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET is_deleted = true, content = '', file_url = '', file_name = '', file_size = 0
		 WHERE id = $1 AND is_deleted = false`, id,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.SoftDelete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pairchat/internal/logger"
	"github.com/pairchat/internal/model"
)

type PinRepository struct {
	pool *pgxpool.Pool
}

func NewPinRepository(pool *pgxpool.Pool) *PinRepository {
	return &PinRepository{pool: pool}
}

// Pin attaches a message to its conversation. expiresAt nil means the pin
// never auto-expires. Re-pinning updates the expiry instead of duplicating.
func (r *PinRepository) Pin(ctx context.Context, conversationID, messageID, pinnedBy string, expiresAt *time.Time) error {
	defer logger.DeferLogDuration("pin.Pin", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO pinned_messages (conversation_id, message_id, pinned_by, pinned_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (conversation_id, message_id) DO UPDATE SET
		   pinned_by = EXCLUDED.pinned_by,
		   pinned_at = EXCLUDED.pinned_at,
		   expires_at = EXCLUDED.expires_at`,
		conversationID, messageID, pinnedBy, time.Now().UTC(), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("pinRepo.Pin: %w", err)
	}
	return nil
}

func (r *PinRepository) Unpin(ctx context.Context, conversationID, messageID string) error {
	defer logger.DeferLogDuration("pin.Unpin", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM pinned_messages WHERE conversation_id = $1 AND message_id = $2`,
		conversationID, messageID,
	)
	if err != nil {
		return fmt.Errorf("pinRepo.Unpin: %w", err)
	}
	return nil
}

// ListActive returns the conversation's pins that have not expired,
// newest pin first. Expired rows are filtered here, not garbage-collected.
func (r *PinRepository) ListActive(ctx context.Context, conversationID string, now time.Time) ([]model.Pin, error) {
	defer logger.DeferLogDuration("pin.ListActive", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT pm.conversation_id, pm.message_id, pm.pinned_by, pm.pinned_at, pm.expires_at,
		        m.id, m.sender_id, m.receiver_id, m.content, m.content_type, m.is_deleted, m.sent_at, m.created_at,
		        u.id, u.display_name, u.avatar_url
		 FROM pinned_messages pm
		 JOIN messages m ON m.id = pm.message_id
		 JOIN users u ON u.id = m.sender_id
		 WHERE pm.conversation_id = $1 AND (pm.expires_at IS NULL OR pm.expires_at > $2)
		 ORDER BY pm.pinned_at DESC`, conversationID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("pinRepo.ListActive query: %w", err)
	}
	defer rows.Close()

	pins := make([]model.Pin, 0, 4)
	for rows.Next() {
		var p model.Pin
		msg := &model.Message{ConversationID: conversationID}
		sender := &model.UserPublic{}
		if err := rows.Scan(&p.ConversationID, &p.MessageID, &p.PinnedBy, &p.PinnedAt, &p.ExpiresAt,
			&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.ContentType, &msg.IsDeleted, &msg.SentAt, &msg.CreatedAt,
			&sender.ID, &sender.DisplayName, &sender.AvatarURL); err != nil {
			return nil, fmt.Errorf("pinRepo.ListActive scan: %w", err)
		}
		if msg.IsDeleted {
			*msg = msg.Tombstone()
		}
		msg.Sender = sender
		p.Message = msg
		pins = append(pins, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pinRepo.ListActive rows: %w", err)
	}
	return pins, nil
}

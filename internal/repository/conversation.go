package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pairchat/internal/logger"
	"github.com/pairchat/internal/model"
)

type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

// normalizePair orders the two participant ids so that the unordered pair
// {a, b} always maps to the same (user_a, user_b) row.
func normalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

const conversationColumns = `id, user_a, user_b, created_by, created_at`

// GetOrCreate returns the conversation for the unordered pair {me, other},
// creating it if needed. Concurrent calls are safe: the insert uses
// ON CONFLICT DO NOTHING against the unique pair index and the row is
// re-queried afterwards, so two racing callers converge on one id.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, me, other string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.GetOrCreate", time.Now())()
	a, b := normalizePair(me, other)

	c, err := r.findByPair(ctx, a, b)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO conversations (id, user_a, user_b, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_a, user_b) DO NOTHING`,
		uuid.New().String(), a, b, me, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("convRepo.GetOrCreate insert: %w", err)
	}

	// Re-query: either our insert won or a concurrent one did.
	c, err = r.findByPair(ctx, a, b)
	if err != nil {
		return nil, err
	}

	for _, uid := range []string{a, b} {
		if err := r.EnsureSettings(ctx, c.ID, uid); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (r *ConversationRepository) findByPair(ctx context.Context, a, b string) (*model.Conversation, error) {
	c := &model.Conversation{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE user_a = $1 AND user_b = $2`, a, b,
	).Scan(&c.ID, &c.UserA, &c.UserB, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("convRepo.findByPair: %w", err)
	}
	return c, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.GetByID", time.Now())()
	c := &model.Conversation{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id,
	).Scan(&c.ID, &c.UserA, &c.UserB, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("convRepo.GetByID: %w", err)
	}
	return c, nil
}

// EnsureSettings creates the per-user settings row if it does not exist yet.
func (r *ConversationRepository) EnsureSettings(ctx context.Context, conversationID, userID string) error {
	defer logger.DeferLogDuration("conv.EnsureSettings", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO conversation_settings (conversation_id, user_id)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("convRepo.EnsureSettings: %w", err)
	}
	return nil
}

func (r *ConversationRepository) GetSettings(ctx context.Context, conversationID, userID string) (*model.ConversationSettings, error) {
	defer logger.DeferLogDuration("conv.GetSettings", time.Now())()
	s := &model.ConversationSettings{}
	err := r.pool.QueryRow(ctx,
		`SELECT conversation_id, user_id, is_pinned, is_muted, is_archived, last_read_at, deleted_at
		 FROM conversation_settings WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	).Scan(&s.ConversationID, &s.UserID, &s.IsPinned, &s.IsMuted, &s.IsArchived, &s.LastReadAt, &s.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("convRepo.GetSettings: %w", err)
	}
	return s, nil
}

// UpdateSettings merges the supplied fields into the viewer's settings row;
// nil patch fields are left unchanged.
func (r *ConversationRepository) UpdateSettings(ctx context.Context, conversationID, userID string, patch model.SettingsPatch) error {
	defer logger.DeferLogDuration("conv.UpdateSettings", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE conversation_settings SET
		   is_pinned = COALESCE($3, is_pinned),
		   is_muted = COALESCE($4, is_muted),
		   is_archived = COALESCE($5, is_archived)
		 WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID, patch.IsPinned, patch.IsMuted, patch.IsArchived,
	)
	if err != nil {
		return fmt.Errorf("convRepo.UpdateSettings: %w", err)
	}
	return nil
}

// UpdateLastRead stamps the viewer's last_read_at for unread tracking.
func (r *ConversationRepository) UpdateLastRead(ctx context.Context, conversationID, userID string, t time.Time) error {
	defer logger.DeferLogDuration("conv.UpdateLastRead", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE conversation_settings SET last_read_at = $3
		 WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID, t,
	)
	if err != nil {
		return fmt.Errorf("convRepo.UpdateLastRead: %w", err)
	}
	return nil
}

// HideForUser is the terminal per-user delete: the conversation disappears
// from this user's list but messages are not purged.
func (r *ConversationRepository) HideForUser(ctx context.Context, conversationID, userID string) error {
	defer logger.DeferLogDuration("conv.HideForUser", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE conversation_settings SET deleted_at = now()
		 WHERE conversation_id = $1 AND user_id = $2 AND deleted_at IS NULL`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("convRepo.HideForUser: %w", err)
	}
	return nil
}

// ListForUser returns the user's conversations denormalized for rendering:
// partner profile, last-message preview, viewer settings and unread count in
// one query. Hidden (per-user deleted) conversations are excluded. Ordered
// pinned first, then by last activity.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]model.ConversationView, error) {
	defer logger.DeferLogDuration("conv.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.user_a, c.user_b, c.created_by, c.created_at,
		        u.id, u.display_name, u.avatar_url, u.is_online, u.last_seen_at,
		        cs.is_pinned, cs.is_muted, cs.is_archived, cs.last_read_at,
		        lm.id, lm.sender_id, lm.receiver_id, lm.content, lm.content_type,
		        lm.sent_at, lm.delivered_at, lm.read_at, lm.edited_at, lm.is_deleted, lm.created_at,
		        (SELECT COUNT(*) FROM messages m
		         WHERE m.conversation_id = c.id AND m.receiver_id = $1
		           AND m.read_at IS NULL AND m.is_deleted = false) AS unread
		 FROM conversations c
		 JOIN conversation_settings cs ON cs.conversation_id = c.id AND cs.user_id = $1
		 JOIN users u ON u.id = CASE WHEN c.user_a = $1 THEN c.user_b ELSE c.user_a END
		 LEFT JOIN LATERAL (
		   SELECT id, sender_id, receiver_id, content, content_type,
		          sent_at, delivered_at, read_at, edited_at, is_deleted, created_at
		   FROM messages WHERE conversation_id = c.id
		   ORDER BY created_at DESC LIMIT 1
		 ) lm ON true
		 WHERE cs.deleted_at IS NULL
		 ORDER BY cs.is_pinned DESC, COALESCE(lm.created_at, c.created_at) DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("convRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	views := make([]model.ConversationView, 0, 16)
	for rows.Next() {
		var v model.ConversationView
		var lmID, lmSender, lmReceiver, lmContent *string
		var lmType *model.ContentType
		var lmSentAt, lmCreatedAt *time.Time
		var lmDeliveredAt, lmReadAt, lmEditedAt *time.Time
		var lmDeleted *bool
		if err := rows.Scan(
			&v.Conversation.ID, &v.Conversation.UserA, &v.Conversation.UserB, &v.Conversation.CreatedBy, &v.Conversation.CreatedAt,
			&v.Partner.ID, &v.Partner.DisplayName, &v.Partner.AvatarURL, &v.Partner.IsOnline, &v.Partner.LastSeenAt,
			&v.Settings.IsPinned, &v.Settings.IsMuted, &v.Settings.IsArchived, &v.Settings.LastReadAt,
			&lmID, &lmSender, &lmReceiver, &lmContent, &lmType,
			&lmSentAt, &lmDeliveredAt, &lmReadAt, &lmEditedAt, &lmDeleted, &lmCreatedAt,
			&v.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("convRepo.ListForUser scan: %w", err)
		}
		v.Settings.ConversationID = v.Conversation.ID
		v.Settings.UserID = userID
		if lmID != nil {
			lm := &model.Message{
				ID:             *lmID,
				ConversationID: v.Conversation.ID,
				SenderID:       *lmSender,
				ReceiverID:     *lmReceiver,
				Content:        *lmContent,
				ContentType:    *lmType,
				SentAt:         *lmSentAt,
				DeliveredAt:    lmDeliveredAt,
				ReadAt:         lmReadAt,
				EditedAt:       lmEditedAt,
				IsDeleted:      *lmDeleted,
				CreatedAt:      *lmCreatedAt,
			}
			if lm.IsDeleted {
				t := lm.Tombstone()
				lm = &t
			}
			v.LastMessage = lm
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convRepo.ListForUser rows: %w", err)
	}
	return views, nil
}

// UnreadCount recounts unread inbound messages server-side; the badge is
// always re-derived from this count, never incremented blindly.
func (r *ConversationRepository) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	defer logger.DeferLogDuration("conv.UnreadCount", time.Now())()
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE conversation_id = $1 AND receiver_id = $2 AND read_at IS NULL AND is_deleted = false`,
		conversationID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("convRepo.UnreadCount: %w", err)
	}
	return count, nil
}

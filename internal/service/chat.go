// Package service holds the chat façade: the single point where UI intents
// become store operations. Handlers and the ws hub never touch repositories
// directly; every mutation flows through here so authorization, receipt
// transitions and change notification stay in one place.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pairchat/internal/logger"
	"github.com/pairchat/internal/model"
	"github.com/pairchat/internal/realtime"
	"github.com/pairchat/internal/repository"
)

var (
	// ErrNotParticipant rejects any access to a conversation by a user who
	// is not one of its two members.
	ErrNotParticipant = errors.New("not a conversation participant")
	// ErrNotSender rejects edit/delete of a message by anyone but its
	// author.
	ErrNotSender = errors.New("only the sender can modify a message")
	// ErrSelfConversation rejects a conversation with oneself.
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	// ErrEmptyContent rejects sends with nothing to send.
	ErrEmptyContent = errors.New("message content is empty")
)

const maxContentLength = 4096

// ConversationStore is the durable conversation mapping. Implemented by
// repository.ConversationRepository; tests use an in-memory fake.
type ConversationStore interface {
	GetOrCreate(ctx context.Context, me, other string) (*model.Conversation, error)
	GetByID(ctx context.Context, id string) (*model.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]model.ConversationView, error)
	UpdateSettings(ctx context.Context, conversationID, userID string, patch model.SettingsPatch) error
	UpdateLastRead(ctx context.Context, conversationID, userID string, t time.Time) error
	HideForUser(ctx context.Context, conversationID, userID string) error
	UnreadCount(ctx context.Context, conversationID, userID string) (int, error)
}

// MessageStore is the durable ordered message log per conversation.
type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	List(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error)
	MarkDelivered(ctx context.Context, messageID string, t time.Time) (bool, error)
	MarkConversationRead(ctx context.Context, conversationID, userID string, t time.Time) ([]string, error)
	UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error
	SoftDelete(ctx context.Context, id string) error
}

type PinStore interface {
	Pin(ctx context.Context, conversationID, messageID, pinnedBy string, expiresAt *time.Time) error
	Unpin(ctx context.Context, conversationID, messageID string) error
	ListActive(ctx context.Context, conversationID string, now time.Time) ([]model.Pin, error)
}

type ReactionStore interface {
	Add(ctx context.Context, messageID, userID, emoji string) error
	Remove(ctx context.Context, messageID, userID, emoji string) error
	GetByMessage(ctx context.Context, messageID string) ([]model.Reaction, error)
}

// BlobStore uploads binary payloads and returns a reference URL. Message
// rows only ever carry the reference, never the bytes.
type BlobStore interface {
	Upload(ctx context.Context, fileName string, size int64, r io.Reader) (url string, err error)
}

// PushNotifier delivers an out-of-band notification. Nil disables pushes.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// Presence reports whether a user has at least one live realtime session.
type Presence interface {
	IsOnline(userID string) bool
}

type ChatService struct {
	convs     ConversationStore
	msgs      MessageStore
	pins      PinStore
	reactions ReactionStore
	blobs     BlobStore
	broker    *realtime.Broker
	notifier  PushNotifier
	presence  Presence
}

func NewChatService(convs ConversationStore, msgs MessageStore, pins PinStore, reactions ReactionStore, blobs BlobStore, broker *realtime.Broker) *ChatService {
	return &ChatService{
		convs:     convs,
		msgs:      msgs,
		pins:      pins,
		reactions: reactions,
		blobs:     blobs,
		broker:    broker,
	}
}

// SetNotifier wires the push sender; nil leaves pushes disabled.
func (s *ChatService) SetNotifier(n PushNotifier) { s.notifier = n }

// SetPresence wires the online check used to suppress pushes to users with
// a live socket.
func (s *ChatService) SetPresence(p Presence) { s.presence = p }

func (s *ChatService) publish(e realtime.Event) {
	if s.broker != nil {
		s.broker.Publish(e)
	}
}

func participants(c *model.Conversation) []string {
	return []string{c.UserA, c.UserB}
}

// requireParticipant loads the conversation and rejects non-members before
// any store mutation.
func (s *ChatService) requireParticipant(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// GetConversation loads a conversation the viewer belongs to.
func (s *ChatService) GetConversation(ctx context.Context, conversationID, viewerID string) (*model.Conversation, error) {
	return s.requireParticipant(ctx, conversationID, viewerID)
}

// ListConversations returns the user's conversation list, ordered by pin
// then recency, with last-message previews and unread badges denormalized.
func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]model.ConversationView, error) {
	defer logger.DeferLogDuration("chat.ListConversations", time.Now())()
	return s.convs.ListForUser(ctx, userID)
}

/// GetOrCreateConversation resolves the 1:1 conversation for {me, other},
// creating it on first contact. Idempotent under concurrent duplicate
// calls; a storage-level conflict is reconciled internally and never
// surfaced.
func (s *ChatService) GetOrCreateConversation(ctx context.Context, me, other string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("chat.GetOrCreateConversation", time.Now())()
	if me == other {
		return nil, ErrSelfConversation
	}
	conv, err := s.convs.GetOrCreate(ctx, me, other)
	if err != nil {
		return nil, err
	}
	s.publish(realtime.Event{
		Op:             realtime.OpInsert,
		Kind:           realtime.KindConversationCreated,
		ConversationID: conv.ID,
		Participants:   participants(conv),
	})
	return conv, nil
}

// ListMessages returns the thread newest first; soft-deleted messages come
// back as tombstones so the history keeps its shape.
func (s *ChatService) ListMessages(ctx context.Context, conversationID, viewerID string, limit, offset int) ([]model.Message, error) {
	defer logger.DeferLogDuration("chat.ListMessages", time.Now())()
	if _, err := s.requireParticipant(ctx, conversationID, viewerID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	msgs, err := s.msgs.List(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	if s.reactions != nil {
		for i := range msgs {
			if msgs[i].IsDeleted {
				continue
			}
			reactions, err := s.reactions.GetByMessage(ctx, msgs[i].ID)
			if err == nil && len(reactions) > 0 {
				msgs[i].Reactions = reactions
			}
		}
	}
	return msgs, nil
}

// SendText appends a text message with sent_at=now.
func (s *ChatService) SendText(ctx context.Context, conversationID, senderID, content string) (*model.Message, error) {
	defer logger.DeferLogDuration("chat.SendText", time.Now())()
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	content = truncateUTF8(content, maxContentLength)
	return s.appendMessage(ctx, conversationID, senderID, func(m *model.Message) {
		m.Content = content
		m.ContentType = model.ContentTypeText
	})
}

// truncateUTF8 shortens s to at most max bytes, backing up to the nearest
// rune boundary so the result stays valid UTF-8.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// FileUpload describes the payload of a file/image/audio/video message.
type FileUpload struct {
	FileName    string
	Size        int64
	ContentType model.ContentType
	Data        io.Reader
}

// SendFile uploads the binary to blob storage first and only then creates
// the message row carrying the reference. An upload failure aborts the send
// with no dangling message row.
func (s *ChatService) SendFile(ctx context.Context, conversationID, senderID string, up FileUpload) (*model.Message, error) {
	defer logger.DeferLogDuration("chat.SendFile", time.Now())()
	if up.Data == nil || up.FileName == "" {
		return nil, ErrEmptyContent
	}
	conv, err := s.requireParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	url, err := s.blobs.Upload(ctx, up.FileName, up.Size, up.Data)
	if err != nil {
		return nil, fmt.Errorf("chat.SendFile upload: %w", err)
	}

	contentType := up.ContentType
	switch contentType {
	case model.ContentTypeImage, model.ContentTypeAudio, model.ContentTypeVideo:
	default:
		contentType = model.ContentTypeFile
	}
	return s.appendTo(ctx, conv, senderID, func(m *model.Message) {
		m.ContentType = contentType
		m.FileURL = url
		m.FileName = up.FileName
		m.FileSize = up.Size
	})
}

// SendAttachment appends a message referencing an already-uploaded blob
// (the socket path: the binary went through the upload endpoint first).
func (s *ChatService) SendAttachment(ctx context.Context, conversationID, senderID, fileURL, fileName string, fileSize int64, contentType model.ContentType) (*model.Message, error) {
	defer logger.DeferLogDuration("chat.SendAttachment", time.Now())()
	if fileURL == "" {
		return nil, ErrEmptyContent
	}
	switch contentType {
	case model.ContentTypeImage, model.ContentTypeAudio, model.ContentTypeVideo:
	default:
		contentType = model.ContentTypeFile
	}
	return s.appendMessage(ctx, conversationID, senderID, func(m *model.Message) {
		m.ContentType = contentType
		m.FileURL = fileURL
		m.FileName = strings.TrimSpace(strings.ReplaceAll(fileName, "+", " "))
		m.FileSize = fileSize
	})
}

// SendLocation appends a location message.
func (s *ChatService) SendLocation(ctx context.Context, conversationID, senderID string, lat, lon float64) (*model.Message, error) {
	defer logger.DeferLogDuration("chat.SendLocation", time.Now())()
	return s.appendMessage(ctx, conversationID, senderID, func(m *model.Message) {
		m.ContentType = model.ContentTypeLocation
		m.Latitude = &lat
		m.Longitude = &lon
	})
}

func (s *ChatService) appendMessage(ctx context.Context, conversationID, senderID string, fill func(*model.Message)) (*model.Message, error) {
	conv, err := s.requireParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	return s.appendTo(ctx, conv, senderID, fill)
}

func (s *ChatService) appendTo(ctx context.Context, conv *model.Conversation, senderID string, fill func(*model.Message)) (*model.Message, error) {
	now := time.Now().UTC()
	m := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     conv.OtherParticipant(senderID),
		SentAt:         now,
		CreatedAt:      now,
	}
	fill(m)
	if err := s.msgs.Create(ctx, m); err != nil {
		return nil, err
	}

	s.publish(realtime.Event{
		Op:             realtime.OpInsert,
		Kind:           realtime.KindMessageCreated,
		ConversationID: conv.ID,
		Participants:   participants(conv),
		Message:        m,
	})
	s.notifyReceiver(m)
	return m, nil
}

// notifyReceiver sends a webpush for a new message when the receiver has no
// live session. Failures are logged, never surfaced to the sender.
func (s *ChatService) notifyReceiver(m *model.Message) {
	if s.notifier == nil {
		return
	}
	if s.presence != nil && s.presence.IsOnline(m.ReceiverID) {
		return
	}
	body := m.Content
	if m.ContentType != model.ContentTypeText || body == "" {
		body = "Attachment"
	}
	if len(body) > 120 {
		body = truncateUTF8(body, 117) + "..."
	}
	data := map[string]string{"conversation_id": m.ConversationID, "message_id": m.ID}
	go s.notifier.Notify(context.Background(), m.ReceiverID, "New message", body, data)
}

// MarkDelivered sets the delivered receipt once. A repeat call (the
// conversation-scoped and global subscriptions may both fire for the same
// event) and a call on a missing message are both no-op successes.
func (s *ChatService) MarkDelivered(ctx context.Context, messageID string) (bool, error) {
	defer logger.DeferLogDuration("chat.MarkDelivered", time.Now())()
	changed, err := s.msgs.MarkDelivered(ctx, messageID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !changed {
		return false, nil
	}

	m, err := s.msgs.GetByID(ctx, messageID)
	if err != nil {
		// The receipt landed; the event is best-effort.
		logger.Errorf("chat.MarkDelivered reload msg=%s: %v", messageID, err)
		return true, nil
	}
	s.publish(realtime.Event{
		Op:             realtime.OpUpdate,
		Kind:           realtime.KindMessageDelivered,
		ConversationID: m.ConversationID,
		Participants:   []string{m.SenderID, m.ReceiverID},
		Message:        m,
	})
	return true, nil
}

// MarkConversationRead sets the read receipt on every unread inbound
// message in one batch, backfilling delivered where the read beat the
// delivery notification. No-op on a conversation with nothing unread.
func (s *ChatService) MarkConversationRead(ctx context.Context, conversationID, userID string) ([]string, error) {
	defer logger.DeferLogDuration("chat.MarkConversationRead", time.Now())()
	conv, err := s.requireParticipant(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	now := time.Now().UTC()
	ids, err := s.msgs.MarkConversationRead(ctx, conversationID, userID, now)
	if err != nil {
		return nil, err
	}
	if err := s.convs.UpdateLastRead(ctx, conversationID, userID, now); err != nil {
		logger.Errorf("chat.MarkConversationRead last_read conv=%s: %v", conversationID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	s.publish(realtime.Event{
		Op:             realtime.OpUpdate,
		Kind:           realtime.KindMessageRead,
		ConversationID: conversationID,
		Participants:   participants(conv),
	})
	return ids, nil
}

// UnreadCount recounts unread messages server-side. Clients replace their
// badge with this count instead of incrementing locally.
func (s *ChatService) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	return s.convs.UnreadCount(ctx, conversationID, userID)
}

// EditMessage replaces content; sender-only, and a tombstone cannot be
// edited.
func (s *ChatService) EditMessage(ctx context.Context, messageID, userID, content string) (*model.Message, error) {
	defer logger.DeferLogDuration("chat.EditMessage", time.Now())()
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	m, err := s.msgs.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != userID {
		return nil, ErrNotSender
	}
	now := time.Now().UTC()
	if err := s.msgs.UpdateContent(ctx, messageID, content, now); err != nil {
		return nil, err
	}
	m.Content = content
	m.EditedAt = &now

	s.publish(realtime.Event{
		Op:             realtime.OpUpdate,
		Kind:           realtime.KindMessageEdited,
		ConversationID: m.ConversationID,
		Participants:   []string{m.SenderID, m.ReceiverID},
		Message:        m,
	})
	return m, nil
}

// DeleteMessage soft-deletes; sender-only, terminal. The row remains as a
// tombstone in both participants' views.
func (s *ChatService) DeleteMessage(ctx context.Context, messageID, userID string) error {
	defer logger.DeferLogDuration("chat.DeleteMessage", time.Now())()
	m, err := s.msgs.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if m.SenderID != userID {
		return ErrNotSender
	}
	if err := s.msgs.SoftDelete(ctx, messageID); err != nil {
		return err
	}
	t := m.Tombstone()
	t.IsDeleted = true

	s.publish(realtime.Event{
		Op:             realtime.OpUpdate,
		Kind:           realtime.KindMessageDeleted,
		ConversationID: m.ConversationID,
		Participants:   []string{m.SenderID, m.ReceiverID},
		Message:        &t,
	})
	return nil
}

// UpdateConversationSettings merges the supplied per-user toggles.
func (s *ChatService) UpdateConversationSettings(ctx context.Context, conversationID, userID string, patch model.SettingsPatch) error {
	defer logger.DeferLogDuration("chat.UpdateConversationSettings", time.Now())()
	if _, err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.convs.UpdateSettings(ctx, conversationID, userID, patch); err != nil {
		return err
	}
	s.publish(realtime.Event{
		Op:             realtime.OpUpdate,
		Kind:           realtime.KindConversationUpdated,
		ConversationID: conversationID,
		Participants:   []string{userID},
	})
	return nil
}

// DeleteConversation hides the conversation for the requesting user.
// Terminal; messages are not purged and the other participant keeps their
// view.
func (s *ChatService) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	defer logger.DeferLogDuration("chat.DeleteConversation", time.Now())()
	if _, err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.convs.HideForUser(ctx, conversationID, userID); err != nil {
		return err
	}
	s.publish(realtime.Event{
		Op:             realtime.OpUpdate,
		Kind:           realtime.KindConversationUpdated,
		ConversationID: conversationID,
		Participants:   []string{userID},
	})
	return nil
}

// PinMessage pins a message to its conversation, optionally until expiresAt.
func (s *ChatService) PinMessage(ctx context.Context, conversationID, messageID, userID string, expiresAt *time.Time) error {
	defer logger.DeferLogDuration("chat.PinMessage", time.Now())()
	conv, err := s.requireParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	m, err := s.msgs.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if m.ConversationID != conversationID {
		return repository.ErrNotFound
	}
	if err := s.pins.Pin(ctx, conversationID, messageID, userID, expiresAt); err != nil {
		return err
	}
	s.publish(realtime.Event{
		Op:             realtime.OpUpdate,
		Kind:           realtime.KindMessagePinned,
		ConversationID: conversationID,
		Participants:   participants(conv),
		Message:        m,
	})
	return nil
}

func (s *ChatService) UnpinMessage(ctx context.Context, conversationID, messageID, userID string) error {
	defer logger.DeferLogDuration("chat.UnpinMessage", time.Now())()
	conv, err := s.requireParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if err := s.pins.Unpin(ctx, conversationID, messageID); err != nil {
		return err
	}
	s.publish(realtime.Event{
		Op:             realtime.OpUpdate,
		Kind:           realtime.KindMessageUnpinned,
		ConversationID: conversationID,
		Participants:   participants(conv),
	})
	return nil
}

// ListPins returns active (unexpired) pins for the conversation.
func (s *ChatService) ListPins(ctx context.Context, conversationID, userID string) ([]model.Pin, error) {
	defer logger.DeferLogDuration("chat.ListPins", time.Now())()
	if _, err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.pins.ListActive(ctx, conversationID, time.Now().UTC())
}

// React adds an emoji reaction to a message.
func (s *ChatService) React(ctx context.Context, messageID, userID, emoji string) error {
	defer logger.DeferLogDuration("chat.React", time.Now())()
	m, err := s.msgs.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if m.SenderID != userID && m.ReceiverID != userID {
		return ErrNotParticipant
	}
	if err := s.reactions.Add(ctx, messageID, userID, emoji); err != nil {
		return err
	}
	s.publish(realtime.Event{
		Op:             realtime.OpUpdate,
		Kind:           realtime.KindReactionChanged,
		ConversationID: m.ConversationID,
		Participants:   []string{m.SenderID, m.ReceiverID},
		Message:        m,
	})
	return nil
}

// Unreact removes an emoji reaction.
func (s *ChatService) Unreact(ctx context.Context, messageID, userID, emoji string) error {
	defer logger.DeferLogDuration("chat.Unreact", time.Now())()
	m, err := s.msgs.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if m.SenderID != userID && m.ReceiverID != userID {
		return ErrNotParticipant
	}
	if err := s.reactions.Remove(ctx, messageID, userID, emoji); err != nil {
		return err
	}
	s.publish(realtime.Event{
		Op:             realtime.OpUpdate,
		Kind:           realtime.KindReactionChanged,
		ConversationID: m.ConversationID,
		Participants:   []string{m.SenderID, m.ReceiverID},
		Message:        m,
	})
	return nil
}

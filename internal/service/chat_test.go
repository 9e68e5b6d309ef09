package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairchat/internal/model"
	"github.com/pairchat/internal/realtime"
	"github.com/pairchat/internal/repository"
)

// ---- in-memory fakes -------------------------------------------------------

type memConvStore struct {
	mu       sync.Mutex
	convs    map[string]*model.Conversation
	settings map[string]*model.ConversationSettings // conversationID|userID
	hidden   map[string]bool
}

func newMemConvStore() *memConvStore {
	return &memConvStore{
		convs:    make(map[string]*model.Conversation),
		settings: make(map[string]*model.ConversationSettings),
		hidden:   make(map[string]bool),
	}
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (s *memConvStore) GetOrCreate(ctx context.Context, me, other string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(me, other)
	for _, c := range s.convs {
		if pairKey(c.UserA, c.UserB) == key {
			return c, nil
		}
	}
	a, b := me, other
	if a > b {
		a, b = b, a
	}
	c := &model.Conversation{
		ID:        uuid.New().String(),
		UserA:     a,
		UserB:     b,
		CreatedBy: me,
		CreatedAt: time.Now().UTC(),
	}
	s.convs[c.ID] = c
	return c, nil
}

func (s *memConvStore) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (s *memConvStore) ListForUser(ctx context.Context, userID string) ([]model.ConversationView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ConversationView
	for _, c := range s.convs {
		if !c.HasParticipant(userID) || s.hidden[c.ID+"|"+userID] {
			continue
		}
		out = append(out, model.ConversationView{Conversation: *c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Conversation.CreatedAt.After(out[j].Conversation.CreatedAt) })
	return out, nil
}

func (s *memConvStore) UpdateSettings(ctx context.Context, conversationID, userID string, patch model.SettingsPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := conversationID + "|" + userID
	cs, ok := s.settings[key]
	if !ok {
		cs = &model.ConversationSettings{ConversationID: conversationID, UserID: userID}
		s.settings[key] = cs
	}
	if patch.IsPinned != nil {
		cs.IsPinned = *patch.IsPinned
	}
	if patch.IsMuted != nil {
		cs.IsMuted = *patch.IsMuted
	}
	if patch.IsArchived != nil {
		cs.IsArchived = *patch.IsArchived
	}
	return nil
}

func (s *memConvStore) UpdateLastRead(ctx context.Context, conversationID, userID string, t time.Time) error {
	return nil
}

func (s *memConvStore) HideForUser(ctx context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hidden[conversationID+"|"+userID] = true
	return nil
}

func (s *memConvStore) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	return 0, nil
}

type memMsgStore struct {
	mu   sync.Mutex
	msgs map[string]*model.Message
}

func newMemMsgStore() *memMsgStore {
	return &memMsgStore{msgs: make(map[string]*model.Message)}
}

func (s *memMsgStore) Create(ctx context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.msgs[m.ID] = &cp
	return nil
}

func (s *memMsgStore) GetByID(ctx context.Context, id string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memMsgStore) List(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, m := range s.msgs {
		if m.ConversationID != conversationID {
			continue
		}
		cp := *m
		if cp.IsDeleted {
			cp = cp.Tombstone()
			cp.IsDeleted = true
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memMsgStore) MarkDelivered(ctx context.Context, messageID string, t time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[messageID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if m.DeliveredAt != nil {
		return false, nil
	}
	m.DeliveredAt = &t
	return true, nil
}

func (s *memMsgStore) MarkConversationRead(ctx context.Context, conversationID, userID string, t time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, m := range s.msgs {
		if m.ConversationID != conversationID || m.ReceiverID != userID || m.ReadAt != nil {
			continue
		}
		m.ReadAt = &t
		if m.DeliveredAt == nil {
			m.DeliveredAt = &t
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (s *memMsgStore) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok || m.IsDeleted {
		return repository.ErrNotFound
	}
	m.Content = content
	m.EditedAt = &editedAt
	return nil
}

func (s *memMsgStore) SoftDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.IsDeleted = true
	return nil
}

type memPinStore struct {
	mu   sync.Mutex
	pins map[string]*model.Pin
}

func newMemPinStore() *memPinStore { return &memPinStore{pins: make(map[string]*model.Pin)} }

func (s *memPinStore) Pin(ctx context.Context, conversationID, messageID, pinnedBy string, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins[conversationID+"|"+messageID] = &model.Pin{
		ConversationID: conversationID,
		MessageID:      messageID,
		PinnedBy:       pinnedBy,
		PinnedAt:       time.Now().UTC(),
		ExpiresAt:      expiresAt,
	}
	return nil
}

func (s *memPinStore) Unpin(ctx context.Context, conversationID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pins, conversationID+"|"+messageID)
	return nil
}

func (s *memPinStore) ListActive(ctx context.Context, conversationID string, now time.Time) ([]model.Pin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Pin
	for _, p := range s.pins {
		if p.ConversationID != conversationID || p.Expired(now) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

type memReactionStore struct {
	mu        sync.Mutex
	reactions map[string][]model.Reaction // messageID
}

func newMemReactionStore() *memReactionStore {
	return &memReactionStore{reactions: make(map[string][]model.Reaction)}
}

func (s *memReactionStore) Add(ctx context.Context, messageID, userID, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reactions[messageID] {
		if r.UserID == userID && r.Emoji == emoji {
			return nil
		}
	}
	s.reactions[messageID] = append(s.reactions[messageID], model.Reaction{
		MessageID: messageID, UserID: userID, Emoji: emoji, CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *memReactionStore) Remove(ctx context.Context, messageID, userID, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.reactions[messageID][:0]
	for _, r := range s.reactions[messageID] {
		if r.UserID != userID || r.Emoji != emoji {
			kept = append(kept, r)
		}
	}
	s.reactions[messageID] = kept
	return nil
}

func (s *memReactionStore) GetByMessage(ctx context.Context, messageID string) ([]model.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Reaction(nil), s.reactions[messageID]...), nil
}

type memBlobStore struct {
	fail    bool
	uploads int
}

func (s *memBlobStore) Upload(ctx context.Context, fileName string, size int64, r io.Reader) (string, error) {
	if s.fail {
		return "", errors.New("storage unavailable")
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	s.uploads++
	return "/files/" + fileName, nil
}

// recorder collects every event the broker dispatches.
type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) handle(e realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []realtime.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]realtime.EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func newTestService(t *testing.T) (*ChatService, *memMsgStore, *memConvStore, *recorder) {
	t.Helper()
	broker := realtime.NewBroker()
	t.Cleanup(broker.Close)
	convs := newMemConvStore()
	msgs := newMemMsgStore()
	svc := NewChatService(convs, msgs, newMemPinStore(), newMemReactionStore(), &memBlobStore{}, broker)
	rec := &recorder{}
	sub := broker.Subscribe("test-recorder", func(realtime.Event) bool { return true }, rec.handle)
	t.Cleanup(sub.Cancel)
	return svc, msgs, convs, rec
}

// ---- tests -----------------------------------------------------------------

func TestGetOrCreateConversationIdempotent(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	second, err := svc.GetOrCreateConversation(ctx, "bob", "alice")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "both directions must resolve to the same conversation")
	assert.Equal(t, "alice", first.CreatedBy)
}

func TestGetOrCreateConversationConcurrentCallsShareOneID(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 2)
	errs := make([]error, 2)
	pairs := [][2]string{{"alice", "bob"}, {"bob", "alice"}}
	for i, p := range pairs {
		wg.Add(1)
		go func(i int, me, other string) {
			defer wg.Done()
			conv, err := svc.GetOrCreateConversation(ctx, me, other)
			errs[i] = err
			if conv != nil {
				ids[i] = conv.ID
			}
		}(i, p[0], p[1])
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, ids[0], ids[1], "racing calls must converge on one conversation")
}

func TestGetOrCreateConversationRejectsSelf(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.GetOrCreateConversation(context.Background(), "alice", "alice")
	assert.ErrorIs(t, err, ErrSelfConversation)
}

func TestSendTextStampsSentAndTargetsReceiver(t *testing.T) {
	svc, _, _, rec := newTestService(t)
	ctx := context.Background()
	conv, err := svc.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)

	m, err := svc.SendText(ctx, conv.ID, "alice", "hey you")
	require.NoError(t, err)
	assert.False(t, m.SentAt.IsZero())
	assert.Nil(t, m.DeliveredAt)
	assert.Nil(t, m.ReadAt)
	assert.Equal(t, "bob", m.ReceiverID)
	assert.Equal(t, model.DeliveryStateSent, m.State())
	assert.Contains(t, rec.kinds(), realtime.KindMessageCreated)
}

func TestSendTextTruncatesOnRuneBoundary(t *testing.T) {
	svc, msgs, _, _ := newTestService(t)
	ctx := context.Background()
	conv, err := svc.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)

	// The limit falls in the middle of the first euro sign; the whole rune
	// must go, not just its trailing bytes.
	long := strings.Repeat("a", maxContentLength-1) + "€€"
	m, err := svc.SendText(ctx, conv.ID, "alice", long)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(m.Content), maxContentLength)
	assert.Equal(t, strings.Repeat("a", maxContentLength-1), m.Content)

	stored, err := msgs.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(stored.Content))
}

func TestTruncateUTF8KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "ab", truncateUTF8("abc", 2))
	assert.Equal(t, "a", truncateUTF8("a€", 3))
	assert.Equal(t, "a€", truncateUTF8("a€", 4))
	assert.Equal(t, "héllo", truncateUTF8("héllo", 10))
}

func TestSendTextRejectsEmptyAndOutsider(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	conv, err := svc.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = svc.SendText(ctx, conv.ID, "alice", "   ")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = svc.SendText(ctx, conv.ID, "mallory", "hi")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestMarkDeliveredIsSetOnce(t *testing.T) {
	svc, msgs, _, _ := newTestService(t)
	ctx := context.Background()
	conv, err := svc.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	m, err := svc.SendText(ctx, conv.ID, "alice", "ping")
	require.NoError(t, err)

	changed, err := svc.MarkDelivered(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := msgs.GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeliveredAt)
	firstStamp := *got.DeliveredAt

	// The conversation-scoped and global subscriptions can both observe the
	// same message; the second mark must not move the timestamp.
	changed, err = svc.MarkDelivered(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err = msgs.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, firstStamp, *got.DeliveredAt)
}

func TestMarkDeliveredMissingMessageIsNoop(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	changed, err := svc.MarkDelivered(context.Background(), uuid.New().String())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestMarkConversationReadBatchesAndBackfillsDelivered(t *testing.T) {
	svc, msgs, _, rec := newTestService(t)
	ctx := context.Background()
	conv, err := svc.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)

	m1, err := svc.SendText(ctx, conv.ID, "alice", "one")
	require.NoError(t, err)
	m2, err := svc.SendText(ctx, conv.ID, "alice", "two")
	require.NoError(t, err)
	// m1 was delivered while bob's app was open; m2 never was.
	_, err = svc.MarkDelivered(ctx, m1.ID)
	require.NoError(t, err)

	ids, err := svc.MarkConversationRead(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{m1.ID, m2.ID}, ids)

	for _, id := range []string{m1.ID, m2.ID} {
		got, err := msgs.GetByID(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, got.DeliveredAt, "read implies delivered")
		assert.NotNil(t, got.ReadAt)
		assert.Equal(t, model.DeliveryStateRead, got.State())
	}
	assert.Contains(t, rec.kinds(), realtime.KindMessageRead)

	// Nothing left unread: second pass is silent.
	before := len(rec.kinds())
	ids, err = svc.MarkConversationRead(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Len(t, rec.kinds(), before, "an empty read pass must not publish")
}

func TestMarkConversationReadSkipsOwnMessages(t *testing.T) {
	svc, msgs, _, _ := newTestService(t)
	ctx := context.Background()
	conv, err := svc.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	m, err := svc.SendText(ctx, conv.ID, "alice", "hello")
	require.NoError(t, err)

	ids, err := svc.MarkConversationRead(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.Empty(t, ids, "the sender reading their own thread marks nothing")

	got, err := msgs.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ReadAt)
}

func TestEditMessageSenderOnly(t *testing.T) {
	svc, _, _, rec := newTestService(t)
	ctx := context.Background()
	conv, err := svc.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	m, err := svc.SendText(ctx, conv.ID, "alice", "typo")
	require.NoError(t, err)

	_, err = svc.EditMessage(ctx, m.ID, "bob", "hijacked")
	assert.ErrorIs(t, err, ErrNotSender)

	edited, err := svc.EditMessage(ctx, m.ID, "alice", "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", edited.Content)
	assert.NotNil(t, edited.EditedAt)
	assert.Contains(t, rec.kinds(), realtime.KindMessageEdited)
}

func TestDeleteMessageLeavesTombstone(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	conv, err := svc.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	m, err := svc.SendText(ctx, conv.ID, "alice", "regret")
	require.NoError(t, err)

	require.ErrorIs(t, svc.DeleteMessage(ctx, m.ID, "bob"), ErrNotSender)
	require.NoError(t, svc.DeleteMessage(ctx, m.ID, "alice"))

	list, err := svc.ListMessages(ctx, conv.ID, "bob", 50, 0)
	require.NoError(t, err)
	require.Len(t, list, 1, "the tombstone keeps its place in history")
	assert.True(t, list[0].IsDeleted)
	assert.Empty(t, list[0].Content)

	// A tombstone cannot be edited back to life.
	_, err = svc.EditMessage(ctx, m.ID, "alice", "resurrect")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSendFileUploadFailureLeavesNoRow(t *testing.T) {
	broker := realtime.NewBroker()
	t.Cleanup(broker.Close)
	convs := newMemConvStore()
	msgs := newMemMsgStore()
	blobs := &memBlobStore{fail: true}
	svc := NewChatService(convs, msgs, newMemPinStore(), newMemReactionStore(), blobs, broker)
	ctx := context.Background()
	conv, err := svc.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = svc.SendFile(ctx, conv.ID, "alice", FileUpload{
		FileName: "photo.jpg",
		Size:     3,
		Data:     bytes.NewReader([]byte{0xff, 0xd8, 0xff}),
	})
	require.Error(t, err)

	list, err := svc.ListMessages(ctx, conv.ID, "alice", 50, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSendFileDefaultsUnknownTypeToFile(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	conv, err := svc.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)

	m, err := svc.SendFile(ctx, conv.ID, "alice", FileUpload{
		FileName:    "notes.pdf",
		Size:        4,
		ContentType: model.ContentType("weird"),
		Data:        bytes.NewReader([]byte("data")),
	})
	require.NoError(t, err)
	assert.Equal(t, model.ContentTypeFile, m.ContentType)
	assert.Equal(t, "/files/notes.pdf", m.FileURL)
}

func TestPinLifecycleAndExpiry(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	conv, err := svc.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	m1, err := svc.SendText(ctx, conv.ID, "alice", "anniversary plan")
	require.NoError(t, err)
	m2, err := svc.SendText(ctx, conv.ID, "bob", "old reminder")
	require.NoError(t, err)

	expired := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, svc.PinMessage(ctx, conv.ID, m1.ID, "alice", nil))
	require.NoError(t, svc.PinMessage(ctx, conv.ID, m2.ID, "bob", &expired))

	pins, err := svc.ListPins(ctx, conv.ID, "bob")
	require.NoError(t, err)
	require.Len(t, pins, 1, "expired pins drop out of the active list")
	assert.Equal(t, m1.ID, pins[0].MessageID)

	require.NoError(t, svc.UnpinMessage(ctx, conv.ID, m1.ID, "bob"))
	pins, err = svc.ListPins(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.Empty(t, pins)
}

func TestPinRejectsForeignMessage(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	conv1, err := svc.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	conv2, err := svc.GetOrCreateConversation(ctx, "alice", "carol")
	require.NoError(t, err)
	m, err := svc.SendText(ctx, conv2.ID, "alice", "wrong thread")
	require.NoError(t, err)

	err = svc.PinMessage(ctx, conv1.ID, m.ID, "alice", nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteConversationHidesOnlyForRequester(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	conv, err := svc.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = svc.SendText(ctx, conv.ID, "alice", "hello")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteConversation(ctx, conv.ID, "alice"))

	mine, err := svc.ListConversations(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, mine)

	theirs, err := svc.ListConversations(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, theirs, 1, "the other participant keeps their view")
}

func TestReactPropagatesToBothParticipants(t *testing.T) {
	svc, _, _, rec := newTestService(t)
	ctx := context.Background()
	conv, err := svc.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	m, err := svc.SendText(ctx, conv.ID, "alice", "look at this")
	require.NoError(t, err)

	require.NoError(t, svc.React(ctx, m.ID, "bob", "❤️"))
	require.ErrorIs(t, svc.React(ctx, m.ID, "mallory", "👀"), ErrNotParticipant)

	list, err := svc.ListMessages(ctx, conv.ID, "alice", 50, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].Reactions, 1)
	assert.Equal(t, "❤️", list[0].Reactions[0].Emoji)
	assert.Contains(t, rec.kinds(), realtime.KindReactionChanged)

	require.NoError(t, svc.Unreact(ctx, m.ID, "bob", "❤️"))
	list, err = svc.ListMessages(ctx, conv.ID, "alice", 50, 0)
	require.NoError(t, err)
	assert.Empty(t, list[0].Reactions)
}

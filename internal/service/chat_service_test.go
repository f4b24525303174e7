package service_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/crypto"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/db"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/event"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/hub"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/model"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/repo"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/service"
)

// -----------------------------------------------------------------------------
// In-memory fakes
// -----------------------------------------------------------------------------

type memConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	failSetLast   bool
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{conversations: make(map[string]*model.Conversation)}
}

func (r *memConversationRepo) FindOrCreate(_ context.Context, a, b string) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pair := model.NewParticipantPair(a, b)
	for _, c := range r.conversations {
		if c.Participants == pair {
			clone := *c
			return &clone, nil
		}
	}

	c := &model.Conversation{
		ID:           primitive.NewObjectID(),
		Participants: pair,
		CreatedAt:    time.Now().UTC(),
	}
	r.conversations[c.ID.Hex()] = c
	clone := *c
	return &clone, nil
}

func (r *memConversationRepo) GetByID(_ context.Context, id string) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[id]
	if !ok {
		return nil, repo.ErrConversationNotFound
	}
	clone := *c
	return &clone, nil
}

func (r *memConversationRepo) ListForUser(_ context.Context, userID string) ([]model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Conversation
	for _, c := range r.conversations {
		if c.Participants.Contains(userID) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageTime.After(out[j].LastMessageTime)
	})
	return out, nil
}

func (r *memConversationRepo) SetLastMessage(_ context.Context, id string, preview *model.LastMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failSetLast {
		return errors.New("injected preview failure")
	}
	c, ok := r.conversations[id]
	if !ok {
		return repo.ErrConversationNotFound
	}
	c.LastMessage = preview
	c.LastMessageTime = preview.SentAt
	return nil
}

func (r *memConversationRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[id]; !ok {
		return repo.ErrConversationNotFound
	}
	delete(r.conversations, id)
	return nil
}

type memMessageRepo struct {
	mu         sync.Mutex
	messages   []*model.Message
	seq        int64
	failInsert bool
}

func (r *memMessageRepo) Insert(_ context.Context, msg *model.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failInsert {
		return "", errors.New("store unavailable")
	}

	r.seq++
	msg.Seq = r.seq
	msg.ID = primitive.NewObjectID()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	clone := *msg
	r.messages = append(r.messages, &clone)
	return msg.ID.Hex(), nil
}

func (r *memMessageRepo) FindByClientMessageID(_ context.Context, conversationID, clientMessageID string) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages {
		if m.ConversationID.Hex() == conversationID && m.ClientMessageID == clientMessageID {
			clone := *m
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *memMessageRepo) ListPage(_ context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var filtered []model.Message
	for _, m := range r.messages {
		if m.ConversationID.Hex() == conversationID {
			filtered = append(filtered, *m)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].Seq < filtered[j].Seq
		}
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})

	// pages are addressed newest-first: page 1 is the tail of the
	// ascending slice, page 2 the window before it, and so on
	pageSize := int64(repo.DefaultPageSize)
	end := int64(len(filtered)) - (page-1)*pageSize
	if end < 0 {
		end = 0
	}
	start := end - pageSize
	if start < 0 {
		start = 0
	}

	total := int64(len(filtered))
	totalPages := total / pageSize
	if total%pageSize > 0 {
		totalPages++
	}

	return &db.PaginatedResult[model.Message]{
		Data:       filtered[start:end],
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

func (r *memMessageRepo) MarkRead(_ context.Context, conversationID, receiverID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, m := range r.messages {
		if m.ConversationID.Hex() == conversationID && m.ReceiverID == receiverID && !m.IsRead {
			m.IsRead = true
			count++
		}
	}
	return count, nil
}

func (r *memMessageRepo) CountUnread(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, m := range r.messages {
		if m.ReceiverID == userID && !m.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *memMessageRepo) ListImageRefs(_ context.Context, conversationID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var refs []string
	for _, m := range r.messages {
		if m.ConversationID.Hex() == conversationID && m.MessageType == model.MessageTypeImage && m.ImageRef != "" {
			refs = append(refs, m.ImageRef)
		}
	}
	return refs, nil
}

func (r *memMessageRepo) DeleteByConversation(_ context.Context, conversationID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var kept []*model.Message
	var deleted int64
	for _, m := range r.messages {
		if m.ConversationID.Hex() == conversationID {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	r.messages = kept
	return deleted, nil
}

func (r *memMessageRepo) stored() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Message, 0, len(r.messages))
	for _, m := range r.messages {
		out = append(out, *m)
	}
	return out
}

type stubUserRepo struct {
	users map[string]*model.User
}

func (r *stubUserRepo) GetUser(_ context.Context, userID string) (*model.User, error) {
	if u, ok := r.users[userID]; ok {
		return u, nil
	}
	return nil, repo.ErrUserNotFound
}

type broadcastCall struct {
	target    string // room id or user id
	eventName string
	payload   any
}

type recorderBroadcaster struct {
	mu         sync.Mutex
	broadcasts []broadcastCall
	notifies   []broadcastCall
}

func (b *recorderBroadcaster) Broadcast(roomID, eventName string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcasts = append(b.broadcasts, broadcastCall{roomID, eventName, payload})
}

func (b *recorderBroadcaster) NotifyUser(userID, eventName string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifies = append(b.notifies, broadcastCall{userID, eventName, payload})
}

func (b *recorderBroadcaster) notifyEvents(eventName string) []broadcastCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []broadcastCall
	for _, n := range b.notifies {
		if n.eventName == eventName {
			out = append(out, n)
		}
	}
	return out
}

type memBlobStore struct {
	mu         sync.Mutex
	uploads    map[string][]byte
	deleted    []string
	failDelete bool
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{uploads: make(map[string][]byte)}
}

func (b *memBlobStore) Upload(_ context.Context, data []byte, _ string) (string, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ref := fmt.Sprintf("blob-%d", len(b.uploads)+1)
	b.uploads[ref] = data
	return "http://blobs.local/" + ref, ref, nil
}

func (b *memBlobStore) Delete(_ context.Context, ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failDelete {
		return errors.New("blob store unavailable")
	}
	delete(b.uploads, ref)
	b.deleted = append(b.deleted, ref)
	return nil
}

// -----------------------------------------------------------------------------
// Fixture
// -----------------------------------------------------------------------------

type fixture struct {
	svc           *service.ChatService
	conversations *memConversationRepo
	messages      *memMessageRepo
	broadcaster   *recorderBroadcaster
	blobs         *memBlobStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	codec, err := crypto.NewCodec("service-test-secret")
	require.NoError(t, err)

	conversations := newMemConversationRepo()
	messages := &memMessageRepo{}
	broadcaster := &recorderBroadcaster{}
	blobs := newMemBlobStore()
	users := &stubUserRepo{users: map[string]*model.User{
		"u1": {UserID: "u1", FirstName: "Wanjiru", LastName: "Kamau", Role: "tenant"},
		"u2": {UserID: "u2", Username: "landlord2", Role: "landlord"},
	}}

	svc := service.NewChatService(conversations, messages, users, codec, broadcaster, blobs, zap.NewNop())
	return &fixture{
		svc:           svc,
		conversations: conversations,
		messages:      messages,
		broadcaster:   broadcaster,
		blobs:         blobs,
	}
}

func (f *fixture) conversation(t *testing.T, a, b string) *model.Conversation {
	t.Helper()
	c, err := f.conversations.FindOrCreate(context.Background(), a, b)
	require.NoError(t, err)
	return c
}

// -----------------------------------------------------------------------------
// Send state machine
// -----------------------------------------------------------------------------

func TestSendMessage_PersistsEncryptedAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	c := f.conversation(t, "u1", "u2")

	msg, err := f.svc.SendMessage(context.Background(), service.SendMessageInput{
		ConversationID: c.ID.Hex(),
		SenderID:       "u1",
		Content:        "Hi there",
	})
	require.NoError(t, err)

	// returned message is decrypted for display
	assert.Equal(t, "Hi there", msg.Content)
	assert.Equal(t, "u1", msg.SenderID)
	assert.Equal(t, "u2", msg.ReceiverID, "receiver inferred as the other participant")
	assert.False(t, msg.IsRead)

	// at rest the content is a ciphertext envelope
	stored := f.messages.stored()
	require.Len(t, stored, 1)
	assert.True(t, strings.HasPrefix(stored[0].Content, crypto.EnvelopePrefix))

	// room broadcast plus receiver notification plus both summaries
	require.Len(t, f.broadcaster.broadcasts, 1)
	assert.Equal(t, event.ConversationRoom(c.ID.Hex()), f.broadcaster.broadcasts[0].target)
	assert.Equal(t, event.EventNewMessage, f.broadcaster.broadcasts[0].eventName)

	notifications := f.broadcaster.notifyEvents(event.EventMessageNotification)
	require.Len(t, notifications, 1)
	assert.Equal(t, "u2", notifications[0].target)

	updates := f.broadcaster.notifyEvents(event.EventConversationUpdated)
	assert.Len(t, updates, 2)

	// conversation preview points at the new message
	updated, err := f.conversations.GetByID(context.Background(), c.ID.Hex())
	require.NoError(t, err)
	require.NotNil(t, updated.LastMessage)
	assert.Equal(t, msg.ID.Hex(), updated.LastMessage.MessageID)
	assert.Equal(t, msg.CreatedAt, updated.LastMessageTime)
}

func TestSendMessage_NotificationPreviewKeepsRunesIntact(t *testing.T) {
	f := newFixture(t)
	c := f.conversation(t, "u1", "u2")

	// 120 two-byte runes: a byte-indexed cut at 80 would land mid-rune
	content := strings.Repeat("é", 120)
	_, err := f.svc.SendMessage(context.Background(), service.SendMessageInput{
		ConversationID: c.ID.Hex(),
		SenderID:       "u1",
		Content:        content,
	})
	require.NoError(t, err)

	notifications := f.broadcaster.notifyEvents(event.EventMessageNotification)
	require.Len(t, notifications, 1)

	n, ok := notifications[0].payload.(event.MessageNotification)
	require.True(t, ok)
	assert.True(t, utf8.ValidString(n.Preview))
	assert.Equal(t, 80, utf8.RuneCountInString(n.Preview))
	assert.True(t, strings.HasPrefix(content, n.Preview))
}

func TestSendMessage_AuthorizationRejects(t *testing.T) {
	f := newFixture(t)
	c := f.conversation(t, "u1", "u2")

	t.Run("conversation not found", func(t *testing.T) {
		_, err := f.svc.SendMessage(context.Background(), service.SendMessageInput{
			ConversationID: primitive.NewObjectID().Hex(),
			SenderID:       "u1",
			Content:        "hello",
		})
		assert.ErrorIs(t, err, repo.ErrConversationNotFound)
	})

	t.Run("not a participant", func(t *testing.T) {
		_, err := f.svc.SendMessage(context.Background(), service.SendMessageInput{
			ConversationID: c.ID.Hex(),
			SenderID:       "intruder",
			Content:        "hello",
		})
		assert.ErrorIs(t, err, service.ErrNotParticipant)
	})

	t.Run("explicit receiver outside the pair", func(t *testing.T) {
		_, err := f.svc.SendMessage(context.Background(), service.SendMessageInput{
			ConversationID: c.ID.Hex(),
			SenderID:       "u1",
			ReceiverID:     "stranger",
			Content:        "hello",
		})
		assert.ErrorIs(t, err, service.ErrNotParticipant)
	})

	t.Run("empty content", func(t *testing.T) {
		_, err := f.svc.SendMessage(context.Background(), service.SendMessageInput{
			ConversationID: c.ID.Hex(),
			SenderID:       "u1",
		})
		assert.ErrorIs(t, err, service.ErrEmptyContent)
	})

	t.Run("content too long", func(t *testing.T) {
		_, err := f.svc.SendMessage(context.Background(), service.SendMessageInput{
			ConversationID: c.ID.Hex(),
			SenderID:       "u1",
			Content:        strings.Repeat("x", model.MaxContentLength+1),
		})
		assert.ErrorIs(t, err, service.ErrContentTooLong)
	})

	// no rejected path mutated state or broadcast anything
	assert.Empty(t, f.messages.stored())
	assert.Empty(t, f.broadcaster.broadcasts)
	assert.Empty(t, f.broadcaster.notifies)
}

func TestSendMessage_PersistFailureSkipsBroadcast(t *testing.T) {
	f := newFixture(t)
	c := f.conversation(t, "u1", "u2")
	f.messages.failInsert = true

	_, err := f.svc.SendMessage(context.Background(), service.SendMessageInput{
		ConversationID: c.ID.Hex(),
		SenderID:       "u1",
		Content:        "never announced",
	})
	require.Error(t, err)

	assert.Empty(t, f.broadcaster.broadcasts, "nothing may be announced that was not stored")
	assert.Empty(t, f.broadcaster.notifies)
}

func TestSendMessage_RetryWithClientMessageIDIsDeduplicated(t *testing.T) {
	f := newFixture(t)
	c := f.conversation(t, "u1", "u2")

	in := service.SendMessageInput{
		ConversationID:  c.ID.Hex(),
		SenderID:        "u1",
		Content:         "only once",
		ClientMessageID: "client-msg-42",
	}

	first, err := f.svc.SendMessage(context.Background(), in)
	require.NoError(t, err)
	broadcastsAfterFirst := len(f.broadcaster.broadcasts)

	second, err := f.svc.SendMessage(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "only once", second.Content)
	assert.Len(t, f.messages.stored(), 1)
	assert.Len(t, f.broadcaster.broadcasts, broadcastsAfterFirst, "a suppressed duplicate is not re-broadcast")
}

func TestSendMessage_PathEquivalence(t *testing.T) {
	// The socket and REST entry points both call SendMessage with the same
	// input; two identical sends must persist rows identical in every field
	// except id, timestamp and sequence.
	f := newFixture(t)
	c := f.conversation(t, "u1", "u2")

	for i := 0; i < 2; i++ {
		_, err := f.svc.SendMessage(context.Background(), service.SendMessageInput{
			ConversationID: c.ID.Hex(),
			SenderID:       "u1",
			Content:        "Hello",
		})
		require.NoError(t, err)
	}

	stored := f.messages.stored()
	require.Len(t, stored, 2)

	a, b := stored[0], stored[1]
	assert.Equal(t, a.ConversationID, b.ConversationID)
	assert.Equal(t, a.SenderID, b.SenderID)
	assert.Equal(t, a.ReceiverID, b.ReceiverID)
	assert.Equal(t, a.MessageType, b.MessageType)
	assert.Equal(t, a.IsRead, b.IsRead)
	assert.NotEqual(t, a.ID, b.ID)
	// ciphertext differs because each encrypt draws a fresh IV, but both
	// decrypt to the same plaintext
	codec, err := crypto.NewCodec("service-test-secret")
	require.NoError(t, err)
	assert.Equal(t, "Hello", codec.Decrypt(a.Content).Value)
	assert.Equal(t, "Hello", codec.Decrypt(b.Content).Value)
}

func TestSendImageMessage_StoresReferenceNotBytes(t *testing.T) {
	f := newFixture(t)
	c := f.conversation(t, "u1", "u2")

	msg, err := f.svc.SendImageMessage(context.Background(), service.ImageMessageInput{
		ConversationID: c.ID.Hex(),
		SenderID:       "u2",
		Data:           []byte{0xFF, 0xD8, 0xFF},
		ContentType:    "image/jpeg",
	})
	require.NoError(t, err)

	assert.Equal(t, model.MessageTypeImage, msg.MessageType)
	assert.Equal(t, model.ImagePlaceholder, msg.Content)
	assert.NotEmpty(t, msg.ImageURL)
	assert.NotEmpty(t, msg.ImageRef)
	assert.Equal(t, "u1", msg.ReceiverID)

	stored := f.messages.stored()
	require.Len(t, stored, 1)
	assert.Equal(t, model.ImagePlaceholder, stored[0].Content, "image content is the literal placeholder, never encrypted")
}

// -----------------------------------------------------------------------------
// Reads, receipts, counters
// -----------------------------------------------------------------------------

func TestListMessages_OrderedAndDecrypted(t *testing.T) {
	f := newFixture(t)
	c := f.conversation(t, "u1", "u2")
	ctx := context.Background()

	for _, body := range []string{"first", "second", "third"} {
		_, err := f.svc.SendMessage(ctx, service.SendMessageInput{
			ConversationID: c.ID.Hex(),
			SenderID:       "u1",
			Content:        body,
		})
		require.NoError(t, err)
	}

	page, err := f.svc.ListMessages(ctx, "u2", c.ID.Hex(), 1)
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)

	assert.Equal(t, "first", page.Messages[0].Content)
	assert.Equal(t, "second", page.Messages[1].Content)
	assert.Equal(t, "third", page.Messages[2].Content)

	for i := 1; i < len(page.Messages); i++ {
		prev, cur := page.Messages[i-1], page.Messages[i]
		assert.False(t, cur.CreatedAt.Before(prev.CreatedAt), "created_at must be non-decreasing")
		if cur.CreatedAt.Equal(prev.CreatedAt) {
			assert.Greater(t, cur.Seq, prev.Seq, "insertion sequence breaks timestamp ties")
		}
	}
}

func TestListMessages_PageOneIsMostRecent(t *testing.T) {
	f := newFixture(t)
	c := f.conversation(t, "u1", "u2")
	ctx := context.Background()

	for i := 1; i <= 20; i++ {
		_, err := f.svc.SendMessage(ctx, service.SendMessageInput{
			ConversationID: c.ID.Hex(),
			SenderID:       "u1",
			Content:        fmt.Sprintf("msg-%02d", i),
		})
		require.NoError(t, err)
	}

	// the first fetch lands on the newest window of the conversation
	page, err := f.svc.ListMessages(ctx, "u2", c.ID.Hex(), 1)
	require.NoError(t, err)
	require.Len(t, page.Messages, repo.DefaultPageSize)
	assert.Equal(t, int64(2), page.TotalPages)
	assert.Equal(t, "msg-06", page.Messages[0].Content)
	assert.Equal(t, "msg-20", page.Messages[len(page.Messages)-1].Content)

	// paging backwards reaches the older remainder, still ascending
	page, err = f.svc.ListMessages(ctx, "u2", c.ID.Hex(), 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 5)
	assert.Equal(t, "msg-01", page.Messages[0].Content)
	assert.Equal(t, "msg-05", page.Messages[len(page.Messages)-1].Content)

	// addressing past the history yields an empty page, not an error
	page, err = f.svc.ListMessages(ctx, "u2", c.ID.Hex(), 3)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
}

func TestListMessages_RequiresParticipant(t *testing.T) {
	f := newFixture(t)
	c := f.conversation(t, "u1", "u2")

	_, err := f.svc.ListMessages(context.Background(), "intruder", c.ID.Hex(), 1)
	assert.ErrorIs(t, err, service.ErrNotParticipant)
}

func TestMarkConversationRead_IdempotentWithReceipt(t *testing.T) {
	f := newFixture(t)
	c := f.conversation(t, "u1", "u2")
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, service.SendMessageInput{ConversationID: c.ID.Hex(), SenderID: "u1", Content: "Hi there"})
	require.NoError(t, err)

	count, err := f.svc.MarkConversationRead(ctx, c.ID.Hex(), "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	page, err := f.svc.ListMessages(ctx, "u2", c.ID.Hex(), 1)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.True(t, page.Messages[0].IsRead)

	// second call flips nothing but still notifies; the receipt is
	// informational and idempotent
	count, err = f.svc.MarkConversationRead(ctx, c.ID.Hex(), "u2")
	require.NoError(t, err)
	assert.Zero(t, count)

	receipts := f.broadcaster.notifyEvents(event.EventMessagesRead)
	require.Len(t, receipts, 2)
	assert.Equal(t, "u1", receipts[0].target, "receipt goes to the other participant")
	read, ok := receipts[0].payload.(event.MessagesReadEvent)
	require.True(t, ok)
	assert.Equal(t, "u2", read.ReadBy)
}

func TestUnreadCount(t *testing.T) {
	f := newFixture(t)
	c := f.conversation(t, "u1", "u2")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.SendMessage(ctx, service.SendMessageInput{ConversationID: c.ID.Hex(), SenderID: "u1", Content: "ping"})
		require.NoError(t, err)
	}

	count, err := f.svc.UnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	_, err = f.svc.MarkConversationRead(ctx, c.ID.Hex(), "u2")
	require.NoError(t, err)

	count, err = f.svc.UnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOfflineReceiverSeesMessageOnFallbackFetch(t *testing.T) {
	// u2 never connects: broadcasting through real rooms with an empty
	// registry reaches nobody, yet the fallback read returns the message.
	codec, err := crypto.NewCodec("service-test-secret")
	require.NoError(t, err)

	conversations := newMemConversationRepo()
	messages := &memMessageRepo{}
	rooms := hub.NewRooms(hub.NewRegistry())
	users := &stubUserRepo{users: map[string]*model.User{}}

	svc := service.NewChatService(conversations, messages, users, codec, rooms, newMemBlobStore(), zap.NewNop())

	ctx := context.Background()
	c, err := conversations.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, service.SendMessageInput{ConversationID: c.ID.Hex(), SenderID: "u1", Content: "are you there?"})
	require.NoError(t, err)

	page, err := svc.ListMessages(ctx, "u2", c.ID.Hex(), 1)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "are you there?", page.Messages[0].Content)
}

// -----------------------------------------------------------------------------
// Conversations
// -----------------------------------------------------------------------------

func TestGetOrCreateConversation_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	again, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	swapped, err := f.svc.GetOrCreateConversation(ctx, "u2", "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, swapped.ID)
}

func TestGetOrCreateConversation_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetOrCreateConversation(ctx, "u1", "")
	assert.ErrorIs(t, err, service.ErrRecipientRequired)

	_, err = f.svc.GetOrCreateConversation(ctx, "u1", "u1")
	assert.ErrorIs(t, err, service.ErrSelfConversation)
}

func TestGetOrCreateConversation_IncludesParticipantIdentity(t *testing.T) {
	f := newFixture(t)

	summary, err := f.svc.GetOrCreateConversation(context.Background(), "u1", "u2")
	require.NoError(t, err)
	require.NotNil(t, summary.Participant)
	assert.Equal(t, "u2", summary.Participant.UserID)
	assert.Equal(t, "landlord2", summary.Participant.Name)
	assert.Equal(t, "landlord", summary.Participant.Role)
}

func TestListConversations_DecryptedPreviews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.conversation(t, "u1", "u2")

	_, err := f.svc.SendMessage(ctx, service.SendMessageInput{ConversationID: c.ID.Hex(), SenderID: "u2", Content: "viewing at 2pm?"})
	require.NoError(t, err)

	summaries, err := f.svc.ListConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, "viewing at 2pm?", summaries[0].LastMessage.Content)
	assert.Equal(t, "u2", summaries[0].LastMessage.SenderID)
}

func TestDeleteConversation_CascadeSurvivesBlobFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.conversation(t, "u1", "u2")

	_, err := f.svc.SendMessage(ctx, service.SendMessageInput{ConversationID: c.ID.Hex(), SenderID: "u1", Content: "look at this"})
	require.NoError(t, err)
	_, err = f.svc.SendImageMessage(ctx, service.ImageMessageInput{
		ConversationID: c.ID.Hex(),
		SenderID:       "u1",
		Data:           []byte{0x89, 0x50},
		ContentType:    "image/png",
	})
	require.NoError(t, err)

	f.blobs.failDelete = true

	err = f.svc.DeleteConversation(ctx, "u1", c.ID.Hex())
	require.NoError(t, err, "a blob-store failure is logged, not fatal")

	assert.Empty(t, f.messages.stored())
	_, err = f.conversations.GetByID(ctx, c.ID.Hex())
	assert.ErrorIs(t, err, repo.ErrConversationNotFound)
}

func TestDeleteConversation_RequiresParticipant(t *testing.T) {
	f := newFixture(t)
	c := f.conversation(t, "u1", "u2")

	err := f.svc.DeleteConversation(context.Background(), "intruder", c.ID.Hex())
	assert.ErrorIs(t, err, service.ErrNotParticipant)
	assert.Len(t, f.conversations.conversations, 1)
}

// -----------------------------------------------------------------------------
// Typing relay
// -----------------------------------------------------------------------------

func TestTypingRelay_BroadcastOnlyNoPersistence(t *testing.T) {
	f := newFixture(t)
	c := f.conversation(t, "u1", "u2")

	f.svc.TypingStart(c.ID.Hex(), "u1")
	f.svc.TypingStop(c.ID.Hex(), "u1")

	require.Len(t, f.broadcaster.broadcasts, 2)
	assert.Equal(t, event.EventUserTyping, f.broadcaster.broadcasts[0].eventName)
	assert.Equal(t, event.EventUserStoppedTyping, f.broadcaster.broadcasts[1].eventName)
	assert.Equal(t, event.ConversationRoom(c.ID.Hex()), f.broadcaster.broadcasts[0].target)

	assert.Empty(t, f.messages.stored())
}

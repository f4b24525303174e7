package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/blobstore"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/crypto"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/event"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/model"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/repo"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/pkg/metrics"
)

var (
	ErrNotParticipant    = errors.New("not a participant")
	ErrEmptyContent      = errors.New("message content cannot be empty")
	ErrContentTooLong    = fmt.Errorf("message content exceeds %d characters", model.MaxContentLength)
	ErrRecipientRequired = errors.New("recipient is required")
	ErrSelfConversation  = errors.New("cannot start a conversation with yourself")
	ErrEmptyImage        = errors.New("image data cannot be empty")
)

// Broadcaster is the fan-out capability the coordinator pushes events
// through. Implemented by hub.Rooms; tests substitute a recorder. Delivery
// misses are expected and never reported back.
type Broadcaster interface {
	Broadcast(roomID string, eventName string, payload any)
	NotifyUser(userID string, eventName string, payload any)
}

// ChatService is the delivery coordinator: both the live channel and the
// REST fallback enter here, which is what guarantees the two paths produce
// identical persisted state. Every send authorizes first, persists second
// and broadcasts last; nothing is ever announced that was not stored.
type ChatService struct {
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	users         repo.UserRepository
	codec         *crypto.Codec
	broadcaster   Broadcaster
	blobs         blobstore.Store
	logger        *zap.Logger
}

func NewChatService(
	conversations repo.ConversationRepository,
	messages repo.MessageRepository,
	users repo.UserRepository,
	codec *crypto.Codec,
	broadcaster Broadcaster,
	blobs blobstore.Store,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		codec:         codec,
		broadcaster:   broadcaster,
		blobs:         blobs,
		logger:        logger,
	}
}

// SendMessageInput is one text send, from either transport.
type SendMessageInput struct {
	ConversationID  string
	SenderID        string
	ReceiverID      string // optional; inferred as the other participant
	Content         string
	ClientMessageID string // optional idempotency key for retried sends
}

// ImageMessageInput is one image send.
type ImageMessageInput struct {
	ConversationID string
	SenderID       string
	ReceiverID     string
	Data           []byte
	ContentType    string
}

// ParticipantInfo is the display identity attached to conversation summaries.
type ParticipantInfo struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Role   string `json:"role"`
}

// ConversationSummary is a conversation shaped for one viewer: the other
// participant's identity plus a decrypted last-message preview.
type ConversationSummary struct {
	ID              string           `json:"id"`
	Participant     *ParticipantInfo `json:"participant"`
	LastMessage     *LastMessageView `json:"lastMessage"`
	LastMessageTime time.Time        `json:"lastMessageTime"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// LastMessageView is the decrypted last-message preview.
type LastMessageView struct {
	MessageID   string    `json:"messageId"`
	Content     string    `json:"content"`
	SenderID    string    `json:"senderId"`
	MessageType string    `json:"messageType"`
	SentAt      time.Time `json:"sentAt"`
}

// MessagePage is one page of decrypted messages in ascending order.
type MessagePage struct {
	Messages   []model.Message `json:"messages"`
	Page       int64           `json:"page"`
	TotalPages int64           `json:"totalPages"`
	Total      int64           `json:"total"`
}

// -----------------------------------------------------------------------------
// Authorization
// -----------------------------------------------------------------------------

// AuthorizeParticipant loads the conversation and verifies userID is one of
// its two participants. No state is mutated before this passes.
func (s *ChatService) AuthorizeParticipant(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.Participants.Contains(userID) {
		return nil, ErrNotParticipant
	}
	return conversation, nil
}

// -----------------------------------------------------------------------------
// Send
// -----------------------------------------------------------------------------

// SendMessage runs the send state machine: authorize, persist, broadcast.
// The returned message carries decrypted-for-display content.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (*model.Message, error) {
	if in.Content == "" {
		return nil, ErrEmptyContent
	}
	if len(in.Content) > model.MaxContentLength {
		return nil, ErrContentTooLong
	}

	conversation, err := s.AuthorizeParticipant(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, err
	}

	receiver, err := resolveReceiver(conversation, in.SenderID, in.ReceiverID)
	if err != nil {
		return nil, err
	}

	// a retried send with the same idempotency key returns the original
	// message instead of inserting a duplicate
	if in.ClientMessageID != "" {
		existing, err := s.messages.FindByClientMessageID(ctx, in.ConversationID, in.ClientMessageID)
		if err != nil {
			s.logger.Warn("idempotency lookup failed, proceeding with insert", zap.Error(err))
		} else if existing != nil {
			s.logger.Debug("duplicate send suppressed",
				zap.String("conversation_id", in.ConversationID),
				zap.String("client_message_id", in.ClientMessageID),
			)
			return s.decryptForDisplay(existing), nil
		}
	}

	envelope, err := s.codec.Encrypt(in.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt message: %w", err)
	}

	msg := &model.Message{
		ConversationID:  conversation.ID,
		SenderID:        in.SenderID,
		ReceiverID:      receiver,
		MessageType:     model.MessageTypeText,
		Content:         envelope,
		ClientMessageID: in.ClientMessageID,
	}

	return s.persistAndDistribute(ctx, conversation, msg)
}

// SendImageMessage uploads the image to the blob store, then runs the same
// persist-and-distribute pipeline with the literal content placeholder.
func (s *ChatService) SendImageMessage(ctx context.Context, in ImageMessageInput) (*model.Message, error) {
	if len(in.Data) == 0 {
		return nil, ErrEmptyImage
	}

	conversation, err := s.AuthorizeParticipant(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, err
	}

	receiver, err := resolveReceiver(conversation, in.SenderID, in.ReceiverID)
	if err != nil {
		return nil, err
	}

	url, ref, err := s.blobs.Upload(ctx, in.Data, in.ContentType)
	if err != nil {
		return nil, fmt.Errorf("image upload failed: %w", err)
	}

	msg := &model.Message{
		ConversationID: conversation.ID,
		SenderID:       in.SenderID,
		ReceiverID:     receiver,
		MessageType:    model.MessageTypeImage,
		Content:        model.ImagePlaceholder,
		ImageURL:       url,
		ImageRef:       ref,
	}

	return s.persistAndDistribute(ctx, conversation, msg)
}

// persistAndDistribute is the Persisting and Broadcasting half of the send
// state machine. A persistence failure surfaces to the caller and nothing
// is broadcast; once the insert commits, broadcasts always fire and their
// misses are invisible to the sender.
func (s *ChatService) persistAndDistribute(ctx context.Context, conversation *model.Conversation, msg *model.Message) (*model.Message, error) {
	if _, err := s.messages.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	preview := &model.LastMessage{
		MessageID:   msg.ID.Hex(),
		Content:     msg.Content,
		SenderID:    msg.SenderID,
		MessageType: msg.MessageType,
		SentAt:      msg.CreatedAt,
	}
	// runs strictly after the insert commits; a failure here leaves the
	// message durable, so the send still succeeds
	if err := s.conversations.SetLastMessage(ctx, conversation.ID.Hex(), preview); err != nil {
		s.logger.Error("failed to update conversation preview",
			zap.String("conversation_id", conversation.ID.Hex()),
			zap.Error(err),
		)
	}
	conversation.LastMessage = preview
	conversation.LastMessageTime = msg.CreatedAt

	metrics.MessagesSentTotal.WithLabelValues(msg.MessageType).Inc()

	display := s.decryptForDisplay(msg)
	conversationID := conversation.ID.Hex()

	s.broadcaster.Broadcast(event.ConversationRoom(conversationID), event.EventNewMessage, display)

	s.broadcaster.NotifyUser(msg.ReceiverID, event.EventMessageNotification, event.MessageNotification{
		ConversationID: conversationID,
		SenderID:       msg.SenderID,
		MessageType:    msg.MessageType,
		Preview:        previewText(display.Content),
		SentAt:         msg.CreatedAt.Unix(),
	})

	for _, participant := range conversation.Participants {
		s.broadcaster.NotifyUser(participant, event.EventConversationUpdated, s.buildSummary(ctx, conversation, participant))
	}

	return display, nil
}

// -----------------------------------------------------------------------------
// Conversations
// -----------------------------------------------------------------------------

// GetOrCreateConversation returns the caller's conversation with recipient,
// creating it lazily. Idempotent for both argument orders.
func (s *ChatService) GetOrCreateConversation(ctx context.Context, callerID, recipientID string) (*ConversationSummary, error) {
	if recipientID == "" {
		return nil, ErrRecipientRequired
	}
	if recipientID == callerID {
		return nil, ErrSelfConversation
	}

	conversation, err := s.conversations.FindOrCreate(ctx, callerID, recipientID)
	if err != nil {
		return nil, err
	}

	summary := s.buildSummary(ctx, conversation, callerID)
	return &summary, nil
}

// ListConversations returns the caller's conversations, most recently
// active first, shaped for display.
func (s *ChatService) ListConversations(ctx context.Context, callerID string) ([]ConversationSummary, error) {
	conversations, err := s.conversations.ListForUser(ctx, callerID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(conversations))
	for i := range conversations {
		summaries = append(summaries, s.buildSummary(ctx, &conversations[i], callerID))
	}
	return summaries, nil
}

// ListMessages returns one decrypted page of a conversation's messages.
// This is the fallback read path: a message missed live shows up here.
func (s *ChatService) ListMessages(ctx context.Context, callerID, conversationID string, page int64) (*MessagePage, error) {
	if _, err := s.AuthorizeParticipant(ctx, conversationID, callerID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	result, err := s.messages.ListPage(ctx, conversationID, page)
	if err != nil {
		return nil, err
	}

	messages := make([]model.Message, 0, len(result.Data))
	for i := range result.Data {
		messages = append(messages, *s.decryptForDisplay(&result.Data[i]))
	}

	return &MessagePage{
		Messages:   messages,
		Page:       result.Page,
		TotalPages: result.TotalPages,
		Total:      result.Total,
	}, nil
}

// DeleteConversation removes a conversation and everything it owns:
// messages first, blob-store objects best-effort, then the conversation
// itself. A blob-store failure is logged, never fatal.
func (s *ChatService) DeleteConversation(ctx context.Context, callerID, conversationID string) error {
	if _, err := s.AuthorizeParticipant(ctx, conversationID, callerID); err != nil {
		return err
	}

	refs, err := s.messages.ListImageRefs(ctx, conversationID)
	if err != nil {
		s.logger.Warn("failed to list image refs for cascade",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}

	if _, err := s.messages.DeleteByConversation(ctx, conversationID); err != nil {
		return err
	}

	for _, ref := range refs {
		if err := s.blobs.Delete(ctx, ref); err != nil {
			s.logger.Warn("failed to delete image blob",
				zap.String("ref", ref),
				zap.Error(err),
			)
		}
	}

	return s.conversations.Delete(ctx, conversationID)
}

// UnreadCount returns the caller's unread message count across all
// conversations.
func (s *ChatService) UnreadCount(ctx context.Context, callerID string) (int64, error) {
	return s.messages.CountUnread(ctx, callerID)
}

// -----------------------------------------------------------------------------
// Read receipts and typing
// -----------------------------------------------------------------------------

// MarkConversationRead flips every unread message addressed to readerID and
// notifies the other participant. The notification fires even when zero
// messages were flipped; it is informational and idempotent.
func (s *ChatService) MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	conversation, err := s.AuthorizeParticipant(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}

	count, err := s.messages.MarkRead(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}

	metrics.ReadReceiptsTotal.Inc()

	s.broadcaster.NotifyUser(conversation.Participants.Other(readerID), event.EventMessagesRead, event.MessagesReadEvent{
		ConversationID: conversationID,
		ReadBy:         readerID,
	})

	return count, nil
}

// TypingStart relays a typing indicator to the conversation room. Nothing
// is persisted and no deduplication or rate limiting is applied; debounce
// is a client concern.
func (s *ChatService) TypingStart(conversationID, userID string) {
	s.broadcaster.Broadcast(event.ConversationRoom(conversationID), event.EventUserTyping, event.TypingEvent{
		ConversationID: conversationID,
		UserID:         userID,
	})
}

// TypingStop relays the end of typing activity.
func (s *ChatService) TypingStop(conversationID, userID string) {
	s.broadcaster.Broadcast(event.ConversationRoom(conversationID), event.EventUserStoppedTyping, event.TypingEvent{
		ConversationID: conversationID,
		UserID:         userID,
	})
}

// -----------------------------------------------------------------------------
// Private helpers
// -----------------------------------------------------------------------------

func resolveReceiver(conversation *model.Conversation, senderID, receiverID string) (string, error) {
	other := conversation.Participants.Other(senderID)
	if receiverID == "" {
		return other, nil
	}
	if receiverID != other {
		return "", ErrNotParticipant
	}
	return receiverID, nil
}

// decryptForDisplay returns a copy of msg with text content decrypted. A
// degraded decrypt keeps the stored value and is logged for operators; the
// read never fails because of it.
func (s *ChatService) decryptForDisplay(msg *model.Message) *model.Message {
	display := *msg
	if msg.MessageType != model.MessageTypeText {
		return &display
	}

	res := s.codec.Decrypt(msg.Content)
	if res.Degraded {
		s.logger.Warn("message decrypt degraded, returning stored value",
			zap.String("message_id", msg.ID.Hex()),
			zap.String("conversation_id", msg.ConversationID.Hex()),
		)
	}
	display.Content = res.Value
	return &display
}

func (s *ChatService) buildSummary(ctx context.Context, conversation *model.Conversation, selfID string) ConversationSummary {
	summary := ConversationSummary{
		ID:              conversation.ID.Hex(),
		LastMessageTime: conversation.LastMessageTime,
		CreatedAt:       conversation.CreatedAt,
	}

	if otherID := conversation.Participants.Other(selfID); otherID != "" {
		if user, err := s.users.GetUser(ctx, otherID); err == nil {
			summary.Participant = &ParticipantInfo{
				UserID: user.UserID,
				Name:   user.DisplayName(),
				Avatar: user.Avatar,
				Role:   user.Role,
			}
		} else {
			s.logger.Debug("participant lookup failed",
				zap.String("user_id", otherID),
				zap.Error(err),
			)
			summary.Participant = &ParticipantInfo{UserID: otherID}
		}
	}

	if conversation.LastMessage != nil {
		content := conversation.LastMessage.Content
		if conversation.LastMessage.MessageType == model.MessageTypeText {
			content = s.codec.Decrypt(content).Value
		}
		summary.LastMessage = &LastMessageView{
			MessageID:   conversation.LastMessage.MessageID,
			Content:     content,
			SenderID:    conversation.LastMessage.SenderID,
			MessageType: conversation.LastMessage.MessageType,
			SentAt:      conversation.LastMessage.SentAt,
		}
	}

	return summary
}

// previewText truncates notification previews on a rune boundary so a
// multi-byte character is never split mid-sequence.
func previewText(content string) string {
	const maxPreview = 80
	if utf8.RuneCountInString(content) <= maxPreview {
		return content
	}
	runes := []rune(content)
	return string(runes[:maxPreview])
}

package event

import "encoding/json"

// Client-to-server events on the live channel.
const (
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
	EventSendMessage       = "send-message"
	EventTypingStart       = "typing-start"
	EventTypingStop        = "typing-stop"
	EventMarkRead          = "mark-read"
)

// Server-to-client events.
const (
	EventNewMessage          = "new-message"
	EventMessageNotification = "message-notification"
	EventConversationUpdated = "conversation-updated"
	EventUserTyping          = "user-typing"
	EventUserStoppedTyping   = "user-stopped-typing"
	EventMessagesRead        = "messages-read"
	EventAck                 = "ack"
	EventError               = "error"
)

// WsEvent is the envelope for every frame on the live channel. RequestID is
// set by the client on ack-style requests (send-message, mark-read) and
// echoed back on the matching ack so the caller can correlate the reply.
type WsEvent struct {
	Event     string          `json:"event"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ConversationRoom names the room joined by clients viewing a conversation.
func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}

// UserRoom names the personal notification room every connected user is
// implicitly subscribed to.
func UserRoom(userID string) string {
	return "user:" + userID
}

// JoinConversationPayload is the body of join-conversation / leave-conversation.
type JoinConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

// SendMessagePayload is the body of a send-message request.
type SendMessagePayload struct {
	ConversationID  string `json:"conversationId"`
	ReceiverID      string `json:"receiverId,omitempty"`
	Content         string `json:"content"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

// TypingPayload is the body of typing-start / typing-stop.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
}

// MarkReadPayload is the body of a mark-read request.
type MarkReadPayload struct {
	ConversationID string `json:"conversationId"`
}

// AckPayload is the body of an ack frame.
type AckPayload struct {
	Success bool            `json:"success"`
	Message json.RawMessage `json:"message,omitempty"`
	Count   *int64          `json:"count,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// TypingEvent is pushed to a conversation room on typing activity.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// MessagesReadEvent is pushed to the other participant after a read action.
type MessagesReadEvent struct {
	ConversationID string `json:"conversationId"`
	ReadBy         string `json:"readBy"`
}

// MessageNotification is pushed to a receiver's personal room so unread
// badges update without the conversation room being joined.
type MessageNotification struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	MessageType    string `json:"messageType"`
	Preview        string `json:"preview"`
	SentAt         int64  `json:"sentAt"`
}

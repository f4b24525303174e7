package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message types
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// MaxContentLength bounds the plaintext body of a text message.
const MaxContentLength = 5000

// ImagePlaceholder is stored as the content of image messages; the actual
// image lives in the blob store and is referenced by ImageURL/ImageRef.
const ImagePlaceholder = "[image]"

// Message represents a single chat message in MongoDB. Content holds the
// ciphertext envelope at rest for text messages; read paths that return a
// message to a caller decrypt it first.
type Message struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ConversationID  primitive.ObjectID `json:"conversationId" bson:"conversation_id"`
	SenderID        string             `json:"senderId" bson:"sender_id"`
	ReceiverID      string             `json:"receiverId" bson:"receiver_id"`
	MessageType     string             `json:"messageType" bson:"message_type"`
	Content         string             `json:"content" bson:"content"`
	ImageURL        string             `json:"imageUrl,omitempty" bson:"image_url,omitempty"`
	ImageRef        string             `json:"imageRef,omitempty" bson:"image_ref,omitempty"`
	ClientMessageID string             `json:"clientMessageId,omitempty" bson:"client_message_id,omitempty"`
	IsRead          bool               `json:"isRead" bson:"is_read"`
	Seq             int64              `json:"seq" bson:"seq"`
	CreatedAt       time.Time          `json:"createdAt" bson:"created_at"`
}

// ErrorPayload is an error response pushed to a client over the socket.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

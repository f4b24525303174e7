package model

import (
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ParticipantPair is the two members of a conversation, kept in sorted
// order so that lookups for (a, b) and (b, a) resolve to the same document.
type ParticipantPair [2]string

// NewParticipantPair normalizes two user IDs into sorted order.
func NewParticipantPair(a, b string) ParticipantPair {
	ids := []string{a, b}
	sort.Strings(ids)
	return ParticipantPair{ids[0], ids[1]}
}

// Contains reports whether userID is one of the two participants.
func (p ParticipantPair) Contains(userID string) bool {
	return p[0] == userID || p[1] == userID
}

// Other returns the participant that is not selfID. Returns the empty
// string if selfID is not a member.
func (p ParticipantPair) Other(selfID string) string {
	switch selfID {
	case p[0]:
		return p[1]
	case p[1]:
		return p[0]
	}
	return ""
}

// Conversation represents a two-person chat thread in MongoDB.
type Conversation struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Participants    ParticipantPair    `json:"participants" bson:"participants"`
	LastMessage     *LastMessage       `json:"lastMessage" bson:"last_message"`
	LastMessageTime time.Time          `json:"lastMessageTime" bson:"last_message_time"`
	CreatedAt       time.Time          `json:"createdAt" bson:"created_at"`
}

// LastMessage stores the most recent message preview on the conversation.
// Content carries the at-rest form (ciphertext envelope for text messages).
type LastMessage struct {
	MessageID   string    `json:"messageId" bson:"message_id"`
	Content     string    `json:"content" bson:"content"`
	SenderID    string    `json:"senderId" bson:"sender_id"`
	MessageType string    `json:"messageType" bson:"message_type"`
	SentAt      time.Time `json:"sentAt" bson:"sent_at"`
}

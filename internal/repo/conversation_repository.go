package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/db"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/model"
)

var ErrConversationNotFound = errors.New("conversation not found")

type conversationRepository struct {
	con       *mongo.Database
	mongoRepo *db.Repository[model.Conversation]
	logger    *zap.Logger
}

type ConversationRepository interface {
	FindOrCreate(ctx context.Context, userA, userB string) (*model.Conversation, error)
	GetByID(ctx context.Context, conversationID string) (*model.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]model.Conversation, error)
	SetLastMessage(ctx context.Context, conversationID string, preview *model.LastMessage) error
	Delete(ctx context.Context, conversationID string) error
}

func NewConversationRepository(mongo *mongo.Database, repo *db.Repository[model.Conversation], logger *zap.Logger) ConversationRepository {
	return &conversationRepository{
		con:       mongo,
		mongoRepo: repo,
		logger:    logger,
	}
}

// FindOrCreate returns the conversation for the unordered pair (userA, userB),
// creating it lazily on first use. The pair is stored sorted, so swapped
// argument order resolves to the same document.
func (r *conversationRepository) FindOrCreate(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	pair := model.NewParticipantPair(userA, userB)
	filter := db.NewFilter().Eq("participants", pair).Build()

	existing, err := r.mongoRepo.FindOne(ctx, filter)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		r.logger.Error("conversation lookup failed",
			zap.String("user_a", userA),
			zap.String("user_b", userB),
			zap.Error(err),
		)
		return nil, fmt.Errorf("conversation lookup failed: %w", err)
	}

	conversation := model.Conversation{
		Participants: pair,
		CreatedAt:    time.Now().UTC(),
	}

	result, err := r.mongoRepo.Create(ctx, conversation)
	if err != nil {
		return nil, fmt.Errorf("conversation create failed: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		conversation.ID = oid
	}

	r.logger.Info("conversation created",
		zap.String("conversation_id", conversation.ID.Hex()),
		zap.String("user_a", pair[0]),
		zap.String("user_b", pair[1]),
	)

	return &conversation, nil
}

// GetByID fetches a conversation document by its hex ID.
func (r *conversationRepository) GetByID(ctx context.Context, conversationID string) (*model.Conversation, error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	conversation, err := r.mongoRepo.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConversationNotFound
		}
		r.logger.Error("failed to fetch conversation",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}

	return conversation, nil
}

// ListForUser returns every conversation the user participates in, most
// recently active first.
func (r *conversationRepository) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("participants", userID).Build()
	sort := bson.D{{Key: "last_message_time", Value: -1}}

	conversations, err := r.mongoRepo.FindAll(ctx, filter, sort)
	if err != nil {
		r.logger.Error("failed to list conversations",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	r.logger.Debug("conversations retrieved",
		zap.String("user_id", userID),
		zap.Int("count", len(conversations)),
	)
	return conversations, nil
}

// SetLastMessage points the conversation at its newest message. Callers must
// invoke this only after the message insert has committed, so a reader never
// observes a preview for a message that does not exist yet.
func (r *conversationRepository) SetLastMessage(ctx context.Context, conversationID string, preview *model.LastMessage) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	update := bson.M{
		"last_message":      preview,
		"last_message_time": preview.SentAt,
	}

	result, err := r.mongoRepo.UpdateByID(ctx, conversationID, update)
	if err != nil {
		r.logger.Error("failed to update last message",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to update last message: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrConversationNotFound
	}

	return nil
}

// Delete removes the conversation document only. The message and blob-store
// cascade is orchestrated above this layer so it can run in the right order.
func (r *conversationRepository) Delete(ctx context.Context, conversationID string) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	result, err := r.mongoRepo.DeleteByID(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrConversationNotFound
	}

	r.logger.Info("conversation deleted", zap.String("conversation_id", conversationID))
	return nil
}

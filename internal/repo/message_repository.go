package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/db"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/model"
)

var (
	ErrInvalidMessage        = errors.New("invalid message: message cannot be nil")
	ErrInvalidConversationID = errors.New("invalid conversation ID: cannot be empty")
	ErrOperationTimeout      = errors.New("operation timeout exceeded")
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second

	// DefaultPageSize is the message page size served to callers. The
	// most-recent page is fetched first and reversed client-side for display.
	DefaultPageSize = 15
)

type messageRepository struct {
	con       *mongo.Database
	mongoRepo *db.Repository[model.Message]
	logger    *zap.Logger

	// insertion sequence, seeded from the collection's max on first use;
	// breaks ordering ties between messages sharing a created_at instant
	seqOnce sync.Once
	seqMu   sync.Mutex
	seq     int64
	seqErr  error
}

type MessageRepository interface {
	Insert(ctx context.Context, msg *model.Message) (string, error)
	FindByClientMessageID(ctx context.Context, conversationID, clientMessageID string) (*model.Message, error)
	ListPage(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error)
	MarkRead(ctx context.Context, conversationID, receiverID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	ListImageRefs(ctx context.Context, conversationID string) ([]string, error)
	DeleteByConversation(ctx context.Context, conversationID string) (int64, error)
}

func NewMessageRepository(mongo *mongo.Database, repo *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		con:       mongo,
		mongoRepo: repo,
		logger:    logger,
	}
}

// -----------------------------------------------------------------------------
// Insert
// -----------------------------------------------------------------------------

// Insert writes one message, assigning its insertion sequence and created_at.
// Content must already be in its at-rest form; this layer never encrypts.
func (m *messageRepository) Insert(ctx context.Context, msg *model.Message) (string, error) {
	if err := m.validateMessage(msg); err != nil {
		return "", err
	}

	seq, err := m.nextSeq(ctx)
	if err != nil {
		return "", err
	}
	msg.Seq = seq
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return "", err
			}
		}

		result, err := m.mongoRepo.Create(ctx, *msg)
		if err == nil {
			insertedID := ""
			if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
				insertedID = oid.Hex()
				msg.ID = oid
			}

			m.logger.Info("message inserted",
				zap.String("inserted_id", insertedID),
				zap.String("conversation_id", msg.ConversationID.Hex()),
				zap.String("message_type", msg.MessageType),
				zap.Int("attempt", attempt+1),
			)
			return insertedID, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}

		m.logger.Warn("insert attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}

	m.logger.Error("failed to insert message after all retries",
		zap.Error(lastErr),
		zap.String("conversation_id", msg.ConversationID.Hex()),
	)

	return "", fmt.Errorf("insert message failed: %w", lastErr)
}

// FindByClientMessageID looks up a previously persisted message by the
// caller-supplied idempotency key, for retried sends.
func (m *messageRepository) FindByClientMessageID(ctx context.Context, conversationID, clientMessageID string) (*model.Message, error) {
	if clientMessageID == "" {
		return nil, nil
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		ObjectID("conversation_id", conversationID).
		Eq("client_message_id", clientMessageID).
		Build()

	existing, err := m.mongoRepo.FindOne(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}

	return existing, nil
}

// -----------------------------------------------------------------------------
// ListPage
// -----------------------------------------------------------------------------

// ListPage returns one page of a conversation's messages. Pages are
// addressed newest-first, so page 1 holds the most recent messages; within
// a page the order is ascending created_at, with the insertion sequence
// breaking timestamp ties. A client rendering a conversation fetches page 1
// and pages backwards through history from there.
func (m *messageRepository) ListPage(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().ObjectID("conversation_id", conversationID).Build()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return nil, err
			}
			m.logger.Warn("retrying message page fetch",
				zap.String("conversation_id", conversationID),
				zap.Int("attempt", attempt+1),
			)
		}

		result, err := m.mongoRepo.FindWithPagination(ctx, filter, db.PaginationParams{
			Page:     page,
			PageSize: DefaultPageSize,
			SortBy:   "created_at",
			ThenBy:   "seq",
			SortDesc: true,
		})

		if err == nil {
			// the descending query addresses pages newest-first; flip the
			// slice so the page itself reads oldest to newest
			for i, j := 0, len(result.Data)-1; i < j; i, j = i+1, j-1 {
				result.Data[i], result.Data[j] = result.Data[j], result.Data[i]
			}
			m.logger.Debug("messages page fetched",
				zap.String("conversation_id", conversationID),
				zap.Int("count", len(result.Data)),
				zap.Int64("page", result.Page),
				zap.Int64("total", result.Total),
			)
			return result, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	return nil, m.handleReadError(lastErr, conversationID)
}

// -----------------------------------------------------------------------------
// Read state
// -----------------------------------------------------------------------------

// MarkRead flips is_read on every unread message addressed to receiverID in
// the conversation and returns how many were flipped. Idempotent: a second
// call returns 0.
func (m *messageRepository) MarkRead(ctx context.Context, conversationID, receiverID string) (int64, error) {
	if conversationID == "" {
		return 0, ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().
		ObjectID("conversation_id", conversationID).
		Eq("receiver_id", receiverID).
		Eq("is_read", false).
		Build()

	result, err := m.mongoRepo.UpdateMany(ctx, filter, bson.M{"is_read": true})
	if err != nil {
		m.logger.Error("mark read failed",
			zap.String("conversation_id", conversationID),
			zap.String("receiver_id", receiverID),
			zap.Error(err),
		)
		return 0, fmt.Errorf("mark read failed: %w", err)
	}

	m.logger.Debug("messages marked read",
		zap.String("conversation_id", conversationID),
		zap.String("receiver_id", receiverID),
		zap.Int64("count", result.ModifiedCount),
	)
	return result.ModifiedCount, nil
}

// CountUnread returns the number of unread messages addressed to userID
// across all conversations.
func (m *messageRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("receiver_id", userID).
		Eq("is_read", false).
		Build()

	return m.mongoRepo.Count(ctx, filter)
}

// -----------------------------------------------------------------------------
// Deletion cascade support
// -----------------------------------------------------------------------------

// ListImageRefs returns the blob-store references of every image message in
// the conversation, for the deletion cascade.
func (m *messageRepository) ListImageRefs(ctx context.Context, conversationID string) ([]string, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		ObjectID("conversation_id", conversationID).
		Eq("message_type", model.MessageTypeImage).
		Build()

	messages, err := m.mongoRepo.FindAll(ctx, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list image refs: %w", err)
	}

	refs := make([]string, 0, len(messages))
	for _, msg := range messages {
		if msg.ImageRef != "" {
			refs = append(refs, msg.ImageRef)
		}
	}
	return refs, nil
}

// DeleteByConversation removes every message in the conversation.
func (m *messageRepository) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	if conversationID == "" {
		return 0, ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().ObjectID("conversation_id", conversationID).Build()
	result, err := m.mongoRepo.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}

	m.logger.Info("conversation messages deleted",
		zap.String("conversation_id", conversationID),
		zap.Int64("count", result.DeletedCount),
	)
	return result.DeletedCount, nil
}

// -----------------------------------------------------------------------------
// Private helpers
// -----------------------------------------------------------------------------

func (m *messageRepository) nextSeq(ctx context.Context) (int64, error) {
	m.seqOnce.Do(func() {
		seedCtx, cancel := ensureTimeout(ctx, defaultReadTimeout)
		defer cancel()

		opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})
		var last model.Message
		err := m.mongoRepo.Collection().FindOne(seedCtx, bson.M{}, opts).Decode(&last)
		if err != nil {
			if !errors.Is(err, mongo.ErrNoDocuments) {
				m.seqErr = fmt.Errorf("failed to seed message sequence: %w", err)
				return
			}
			return // empty collection, start from 0
		}
		m.seq = last.Seq
	})
	if m.seqErr != nil {
		return 0, m.seqErr
	}

	m.seqMu.Lock()
	defer m.seqMu.Unlock()
	m.seq++
	return m.seq, nil
}

func (m *messageRepository) validateMessage(msg *model.Message) error {
	if msg == nil {
		return ErrInvalidMessage
	}
	if msg.ConversationID.IsZero() {
		return ErrInvalidConversationID
	}
	return nil
}

func (m *messageRepository) handleReadError(err error, conversationID string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Error("read timeout", zap.String("conversation_id", conversationID))
		return ErrOperationTimeout
	}

	if errors.Is(err, context.Canceled) {
		m.logger.Debug("read cancelled", zap.String("conversation_id", conversationID))
		return err
	}

	m.logger.Error("read failed", zap.Error(err), zap.String("conversation_id", conversationID))
	return fmt.Errorf("list messages failed: %w", err)
}

func ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}

	return false
}

package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/middleware"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/repo"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/service"
)

// maxImageUpload bounds the accepted image size (5MB).
const maxImageUpload = 5 << 20

// ChatHandler exposes the synchronous fallback surface. Every route maps
// 1:1 onto a chat service operation, the same operations the socket events
// invoke.
type ChatHandler interface {
	ListConversations(c *gin.Context)
	GetOrCreateConversation(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	SendImageMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	DeleteConversation(c *gin.Context)
	UnreadCount(c *gin.Context)
}

type chatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) ChatHandler {
	return &chatHandler{chat: chat}
}

func (h *chatHandler) ListConversations(c *gin.Context) {
	callerID := middleware.GetUserID(c)

	conversations, err := h.chat.ListConversations(c.Request.Context(), callerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

type createConversationRequest struct {
	RecipientID string `json:"recipientId" binding:"required"`
}

func (h *chatHandler) GetOrCreateConversation(c *gin.Context) {
	callerID := middleware.GetUserID(c)

	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipientId is required"})
		return
	}

	conversation, err := h.chat.GetOrCreateConversation(c.Request.Context(), callerID, req.RecipientID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conversation})
}

func (h *chatHandler) ListMessages(c *gin.Context) {
	callerID := middleware.GetUserID(c)
	conversationID := c.Param("conversationId")

	page, err := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page number"})
		return
	}

	result, err := h.chat.ListMessages(c.Request.Context(), callerID, conversationID, page)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type sendMessageRequest struct {
	Content         string `json:"content" binding:"required"`
	ReceiverID      string `json:"receiverId"`
	ClientMessageID string `json:"clientMessageId"`
}

func (h *chatHandler) SendMessage(c *gin.Context) {
	callerID := middleware.GetUserID(c)
	conversationID := c.Param("conversationId")

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), service.SendMessageInput{
		ConversationID:  conversationID,
		SenderID:        callerID,
		ReceiverID:      req.ReceiverID,
		Content:         req.Content,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *chatHandler) SendImageMessage(c *gin.Context) {
	callerID := middleware.GetUserID(c)
	conversationID := c.Param("conversationId")

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	defer file.Close()

	if header.Size > maxImageUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxImageUpload))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read image"})
		return
	}

	msg, err := h.chat.SendImageMessage(c.Request.Context(), service.ImageMessageInput{
		ConversationID: conversationID,
		SenderID:       callerID,
		ReceiverID:     c.PostForm("receiverId"),
		Data:           data,
		ContentType:    header.Header.Get("Content-Type"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *chatHandler) MarkRead(c *gin.Context) {
	callerID := middleware.GetUserID(c)
	conversationID := c.Param("conversationId")

	count, err := h.chat.MarkConversationRead(c.Request.Context(), conversationID, callerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"markedRead": count})
}

func (h *chatHandler) DeleteConversation(c *gin.Context) {
	callerID := middleware.GetUserID(c)
	conversationID := c.Param("conversationId")

	if err := h.chat.DeleteConversation(c.Request.Context(), callerID, conversationID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *chatHandler) UnreadCount(c *gin.Context) {
	callerID := middleware.GetUserID(c)

	count, err := h.chat.UnreadCount(c.Request.Context(), callerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unreadCount": count})
}

// respondError maps service errors onto the fallback surface's status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repo.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	case errors.Is(err, service.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
	case errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrContentTooLong),
		errors.Is(err, service.ErrRecipientRequired),
		errors.Is(err, service.ErrSelfConversation),
		errors.Is(err, service.ErrEmptyImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

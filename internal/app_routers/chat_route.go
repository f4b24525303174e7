package approuters

import (
	"github.com/gin-gonic/gin"

	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/configuration"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/middleware"
)

// ChatRouters sets up the synchronous fallback chat API. Every route runs
// the same service operations the socket events do.
func ChatRouters(router *gin.Engine, container *configuration.Container) {
	chatRoute := router.Group("/km/api/chat")
	chatRoute.Use(middleware.Auth(container.Config.JWTSecret))
	{
		chatRoute.GET("/conversations", container.ChatHandler.ListConversations)
		chatRoute.POST("/conversations", container.ChatHandler.GetOrCreateConversation)
		chatRoute.GET("/conversations/:conversationId/messages", container.ChatHandler.ListMessages)
		chatRoute.POST("/conversations/:conversationId/messages", container.ChatHandler.SendMessage)
		chatRoute.POST("/conversations/:conversationId/images", container.ChatHandler.SendImageMessage)
		chatRoute.POST("/conversations/:conversationId/read", container.ChatHandler.MarkRead)
		chatRoute.DELETE("/conversations/:conversationId", container.ChatHandler.DeleteConversation)
		chatRoute.GET("/unread-count", container.ChatHandler.UnreadCount)
	}
}

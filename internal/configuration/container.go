package configuration

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/blobstore"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/crypto"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/db"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/handler"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/hub"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/model"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/repo"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/service"
)

type Container struct {
	ChatHandler handler.ChatHandler
	Hub         *hub.Hub
	Config      Config
	Logger      *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
}

func BuildContainer() (*Container, error) {
	config, err := LoadConfig(ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, err
	}

	messageMongo := db.NewRepository[model.Message](con, config.ChatDatabase.MessagesCollection)
	conversationMongo := db.NewRepository[model.Conversation](con, config.ChatDatabase.ConversationsCollection)
	userMongo := db.NewRepository[model.User](con, config.ChatDatabase.UsersCollection)

	messageRepo := repo.NewMessageRepository(con, messageMongo, logger)
	conversationRepo := repo.NewConversationRepository(con, conversationMongo, logger)
	userRepo := repo.NewUserRepository(con, userMongo)

	codec, err := crypto.NewCodec(config.MessageSecret)
	if err != nil {
		return nil, err
	}

	blobs, err := blobstore.NewFileStore(config.Uploads.Dir, config.Uploads.BaseURL, logger)
	if err != nil {
		return nil, err
	}

	registry := hub.NewRegistry()
	rooms := hub.NewRooms(registry)

	chatService := service.NewChatService(conversationRepo, messageRepo, userRepo, codec, rooms, blobs, logger)
	chatHandler := handler.NewChatHandler(chatService)

	h := hub.NewHub(registry, rooms, chatService, config.JWTSecret, config.Server.AllowedOrigins)

	return &Container{
		ChatHandler: chatHandler,
		Hub:         h,
		Config:      *config,
		Logger:      logger,
		mongoClient: con,
	}, nil
}

// Close gracefully shuts down all connections.
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}

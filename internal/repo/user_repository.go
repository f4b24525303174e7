package repo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/db"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/model"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository is the user-lookup collaborator boundary: read-only display
// identity for populating message and conversation responses.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
}

type userRepository struct {
	con       *mongo.Database
	mongoRepo *db.Repository[model.User]
}

func NewUserRepository(con *mongo.Database, repo *db.Repository[model.User]) UserRepository {
	return &userRepository{
		con:       con,
		mongoRepo: repo,
	}
}

func (r *userRepository) GetUser(ctx context.Context, userID string) (*model.User, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("user_id", userID).Build()
	user, err := r.mongoRepo.FindOne(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}

	return user, nil
}

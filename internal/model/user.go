package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the display identity returned by the user-lookup collaborator.
// This service only reads users; account management lives elsewhere.
type User struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID    string             `json:"userId" bson:"user_id"`
	Username  string             `json:"username" bson:"username"`
	FirstName string             `json:"firstName" bson:"first_name"`
	LastName  string             `json:"lastName" bson:"last_name"`
	Avatar    string             `json:"avatar" bson:"avatar"`
	Role      string             `json:"role" bson:"role"`
	CreatedAt time.Time          `json:"createdAt" bson:"created_at"`
}

// DisplayName returns the best human-readable name for the user.
func (u *User) DisplayName() string {
	if u.FirstName != "" || u.LastName != "" {
		name := u.FirstName
		if u.LastName != "" {
			if name != "" {
				name += " "
			}
			name += u.LastName
		}
		return name
	}
	return u.Username
}

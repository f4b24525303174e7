// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// userIDKey is the gin context key the authenticated user id is stored under.
const userIDKey = "user_id"

// Claims represents JWT claims issued by the identity service. The user id
// travels in the registered Subject claim.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// UserIDFromToken validates an HMAC-signed token and returns its subject.
// Used by both the REST middleware and the socket handshake.
func UserIDFromToken(tokenString, jwtSecret string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", jwt.ErrTokenInvalidSubject
	}
	return claims.Subject, nil
}

// Auth creates JWT bearer authentication middleware for gin routes.
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		userID, err := UserIDFromToken(parts[1], jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// GetUserID returns the authenticated user id set by Auth.
func GetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

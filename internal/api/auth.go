package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ln-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

const userIDKey = "userid"

// Authenticate validates the Authorization: Bearer token issued by the auth
// service and stores the user id in the request context. Any failure yields
// 400 {"detail":"Invalid token"}; the cause stays in the logs.
func Authenticate(secret, algorithm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := userFromHeader(c.GetHeader("Authorization"), secret, algorithm)
		if err != nil {
			logger.Warn("Rejected bearer token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "Invalid token"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func userFromHeader(header, secret, algorithm string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("missing bearer token")
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, prefix))

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != algorithm {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("token parse failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("token missing subject")
	}
	return sub, nil
}

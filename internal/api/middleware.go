package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carechat/infrastructure"
	"carechat/pkg/jwt"
)

const callerKey = "userID"

func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		t := time.Now()

		// Process request
		c.Next()

		// Log the request
		logger.Info("request",
			zap.Duration("latency", time.Since(t)),
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
	}
}

// AuthMiddleware establishes the caller identity. With tokens configured it
// requires a Bearer JWT; otherwise it trusts the X-User-ID header set by the
// upstream session layer.
func AuthMiddleware(tokens *jwt.JWT) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := caller(c, tokens)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(callerKey, userID)
		c.Next()
	}
}

func caller(c *gin.Context, tokens *jwt.JWT) (int64, error) {
	if tokens != nil {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return 0, infrastructure.ErrUnauthorized
		}
		claims, err := tokens.ValidateToken(token)
		if err != nil {
			return 0, infrastructure.ErrUnauthorized
		}
		return claims.UserID, nil
	}
	id, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, infrastructure.ErrUnauthorized
	}
	return id, nil
}

// CallerID returns the identity set by AuthMiddleware.
func CallerID(c *gin.Context) int64 {
	return c.GetInt64(callerKey)
}

package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/gtd_wechat/internal/utils"
)

// JWTMiddleware authenticates callers of the /v1 API with HS256 bearer tokens.
type JWTMiddleware struct {
	rateLimiter *InvalidAuthRateLimiter
}

// NewJWTMiddleware constructs a JWTMiddleware.
func NewJWTMiddleware(rateLimiter *InvalidAuthRateLimiter) *JWTMiddleware {
	if rateLimiter == nil {
		rateLimiter = NewInvalidAuthRateLimiter()
	}
	return &JWTMiddleware{rateLimiter: rateLimiter}
}

// Handle returns a Gin middleware function that enforces authentication.
func (m *JWTMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			m.handleAuthError(c, "UNAUTHORIZED", "Missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.handleAuthError(c, "UNAUTHORIZED", "Invalid authorization header")
			return
		}

		claims, err := utils.ValidateJWT(parts[1])
		if err != nil {
			m.handleAuthError(c, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Next()
	}
}

func (m *JWTMiddleware) handleAuthError(c *gin.Context, code, message string) {
	if !m.rateLimiter.Allow(c.ClientIP()) {
		utils.Error(c, 429, "TOO_MANY_REQUESTS", "Too many invalid authentication attempts")
		c.Abort()
		return
	}

	utils.Error(c, 401, code, message)
	c.Abort()
}

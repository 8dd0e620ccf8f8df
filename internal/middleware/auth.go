package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/harentsoaR/doctors-portal/internal/utils"
)

// EmailKey is the gin context key holding the verified token email.
const EmailKey = "email"

// TokenValidator checks a bearer token and returns its claims.
type TokenValidator interface {
	Validate(token string) (*utils.Claims, error)
}

// AdminChecker answers whether an email belongs to an admin.
type AdminChecker interface {
	IsAdmin(ctx context.Context, email string) (bool, error)
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized access"})
}

func forbidden(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "forbidden access"})
}

// VerifyJWT requires a valid bearer token and stores its email under EmailKey.
func VerifyJWT(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c)
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := tokens.Validate(tokenString)
		if err != nil {
			forbidden(c)
			return
		}

		c.Set(EmailKey, claims.Email)
		c.Next()
	}
}

// VerifyAdmin must run after VerifyJWT. Unknown users are treated as
// non-admins.
func VerifyAdmin(admins AdminChecker, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := Email(c)
		ok, err := admins.IsAdmin(c.Request.Context(), email)
		if err != nil {
			logger.Error().Err(err).Str("email", email).Msg("admin check failed")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"message": "could not verify role", "retryable": true})
			return
		}
		if !ok {
			forbidden(c)
			return
		}
		c.Next()
	}
}

// Email returns the verified token email, or "" outside VerifyJWT.
func Email(c *gin.Context) string {
	return c.GetString(EmailKey)
}

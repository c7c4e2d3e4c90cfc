package middleware

import (
	"strings"

	"sharemint-core/pkg/errutil"
	"sharemint-core/pkg/session"

	"github.com/gin-gonic/gin"
)

const (
	subjectKey = "auth.subject_id"
	addressKey = "auth.address"
)

// RequireAuth rejects requests without a valid session token.
func RequireAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := parseBearer(c, secret)
		if !ok {
			c.AbortWithStatusJSON(401, errutil.BaseError{
				Code:    errutil.StatusUnauthorized,
				Message: "missing or invalid session token",
			})
			return
		}
		c.Set(subjectKey, claims.SubjectID)
		c.Set(addressKey, claims.Address)
		c.Next()
	}
}

// OptionalAuth resolves the subject when a token is present but lets anonymous
// requests through. Access decisions downstream treat the empty subject as
// anonymous.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := parseBearer(c, secret); ok {
			c.Set(subjectKey, claims.SubjectID)
			c.Set(addressKey, claims.Address)
		}
		c.Next()
	}
}

func parseBearer(c *gin.Context, secret string) (*session.Claims, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return nil, false
	}
	claims, err := session.Parse(secret, token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// Subject returns the authenticated subject id, empty for anonymous callers.
func Subject(c *gin.Context) string {
	return c.GetString(subjectKey)
}

// Address returns the wallet address bound to the session, if any.
func Address(c *gin.Context) string {
	return c.GetString(addressKey)
}

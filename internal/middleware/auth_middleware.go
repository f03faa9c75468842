package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/clinprep/exam-booking-backend/pkg/jwt"
)

// SessionContextKey is the key used to store session information in Gin context
const SessionContextKey = "session"

// SessionContext represents the authenticated portal session. ContactID is
// the remote contact identity in canonical string form, carried from the
// verification step.
type SessionContext struct {
	ContactID string `json:"contact_id"`
	StudentID string `json:"student_id"`
	Email     string `json:"email"`
}

// SessionMiddleware creates a middleware that validates portal session tokens
func SessionMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.WithFields(logrus.Fields{
				"path": c.Request.URL.Path,
				"ip":   c.ClientIP(),
			}).Warn("AUTH FAILED: Missing authorization header")
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "MISSING_AUTH_HEADER",
					"message": "Authorization header is required",
				},
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			logger.WithFields(logrus.Fields{
				"path": c.Request.URL.Path,
				"ip":   c.ClientIP(),
			}).Warn("AUTH FAILED: Invalid auth format")
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_AUTH_FORMAT",
					"message": "Invalid authorization header format. Expected: Bearer <token>",
				},
			})
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateSessionToken(strings.TrimSpace(parts[1]))
		if err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"path": c.Request.URL.Path,
				"ip":   c.ClientIP(),
			}).Warn("AUTH FAILED: Invalid session token")
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_TOKEN",
					"message": "Invalid or expired session token. Please verify your eligibility again.",
				},
			})
			c.Abort()
			return
		}

		c.Set(SessionContextKey, SessionContext{
			ContactID: claims.ContactID,
			StudentID: claims.StudentID,
			Email:     claims.Email,
		})

		c.Next()
	}
}

// GetSessionContext retrieves the session context from Gin context
func GetSessionContext(c *gin.Context) (SessionContext, bool) {
	value, exists := c.Get(SessionContextKey)
	if !exists {
		return SessionContext{}, false
	}

	sessionCtx, ok := value.(SessionContext)
	if !ok {
		return SessionContext{}, false
	}

	return sessionCtx, true
}

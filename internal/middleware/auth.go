package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/eduflow-lms/quiz-service/internal/models"
	"github.com/eduflow-lms/quiz-service/internal/repositories"
)

const (
	ContextUserID   = "user_id"
	ContextUserRole = "user_role"
)

// Auth validates the Casdoor-issued bearer token, syncs the identity into the
// local users table, and stores user_id and user_role in the request context.
func Auth(repo repositories.Repository, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			c.Abort()
			return
		}

		claims, err := casdoorsdk.ParseJwtToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		user := &models.User{
			ID:       claims.User.Id,
			FullName: claims.User.DisplayName,
			Email:    claims.User.Email,
			Role:     roleFromClaims(claims),
			IsActive: !claims.User.IsForbidden,
		}
		if err := repo.User().Upsert(c.Request.Context(), user); err != nil {
			logger.Error("Failed to sync user from token", "user_id", user.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
			c.Abort()
			return
		}
		if !user.IsActive {
			c.JSON(http.StatusForbidden, gin.H{"error": "account is suspended"})
			c.Abort()
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextUserRole, string(user.Role))
		c.Next()
	}
}

// RequireRoles allows the request through only when the authenticated role is
// in the allowed set. Must run after Auth.
func RequireRoles(allowed ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleValue, exists := c.Get(ContextUserRole)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user role"})
			c.Abort()
			return
		}
		role, _ := roleValue.(string)
		for _, want := range allowed {
			if role == string(want) {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
		c.Abort()
	}
}

// roleFromClaims maps the identity provider's user tag onto the service's role
// set. Unknown tags default to student, the least privileged role.
func roleFromClaims(claims *casdoorsdk.Claims) models.UserRole {
	if claims.User.IsAdmin {
		return models.RoleAdmin
	}
	switch claims.User.Tag {
	case "instructor":
		return models.RoleInstructor
	case "admin":
		return models.RoleAdmin
	default:
		return models.RoleStudent
	}
}

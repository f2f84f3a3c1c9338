package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/library-lending-api/internal/models"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
	"github.com/noah-isme/library-lending-api/pkg/response"
)

// Markers admitting a student account acting on its own record.
const (
	// SelfStudent matches the :id path parameter.
	SelfStudent = "SELF"
	// SelfStudentQuery matches the studentId query parameter.
	SelfStudentQuery = "SELF_QUERY"
)

// RBAC enforces role-based access control for routes.
func RBAC(allowed ...string) gin.HandlerFunc {
	var selfParam, selfQuery bool
	allowedRoles := make(map[models.UserRole]struct{}, len(allowed))
	for _, a := range allowed {
		switch a {
		case SelfStudent:
			selfParam = true
		case SelfStudentQuery:
			selfQuery = true
		default:
			allowedRoles[models.UserRole(a)] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		if claims.Role == models.RoleStudent && claims.StudentID != "" {
			if (selfParam && c.Param("id") == claims.StudentID) || (selfQuery && c.Query("studentId") == claims.StudentID) {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}

// Staff admits librarians and admins.
func Staff() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin, models.RoleLibrarian)
}

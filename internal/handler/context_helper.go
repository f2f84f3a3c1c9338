package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/library-lending-api/internal/middleware"
	"github.com/noah-isme/library-lending-api/internal/models"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, size
}

// studentScope returns the student id a student account is confined to, or "" for staff.
func studentScope(claims *models.JWTClaims) string {
	if claims != nil && claims.Role == models.RoleStudent {
		if claims.StudentID == "" {
			return "-"
		}
		return claims.StudentID
	}
	return ""
}

// ensureOwner rejects a student account reading another student's record.
func ensureOwner(claims *models.JWTClaims, studentID string) error {
	scope := studentScope(claims)
	if scope != "" && scope != studentID {
		return appErrors.ErrForbidden
	}
	return nil
}

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/library-lending-api/internal/models"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type observerStub struct {
	paths []string
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.paths = append(o.paths, path)
}

func newRouter(claims *models.JWTClaims, handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append([]gin.HandlerFunc{JWT(validatorStub{claims: claims})}, handlers...)
	chain = append(chain, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/students/:id/limit-status", chain...)
	r.GET("/books/:id/policy", chain...)
	r.POST("/borrowings/:id/return", chain...)
	return r
}

func serve(r *gin.Engine, method, path, token string) int {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestJWTRejectsMissingAndInvalidTokens(t *testing.T) {
	r := newRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleLibrarian})

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/students/s1/limit-status", ""))
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/students/s1/limit-status", "bad"))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/students/s1/limit-status", "good"))
}

func TestRBACAllowsStaffAndOwnStudent(t *testing.T) {
	rbac := RBAC(string(models.RoleAdmin), string(models.RoleLibrarian), SelfStudent)

	librarian := newRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleLibrarian}, rbac)
	assert.Equal(t, http.StatusOK, serve(librarian, http.MethodGet, "/students/s9/limit-status", "good"))

	student := newRouter(&models.JWTClaims{UserID: "u2", Role: models.RoleStudent, StudentID: "s1"}, rbac)
	assert.Equal(t, http.StatusOK, serve(student, http.MethodGet, "/students/s1/limit-status", "good"))
	assert.Equal(t, http.StatusForbidden, serve(student, http.MethodGet, "/students/s2/limit-status", "good"))
	assert.Equal(t, http.StatusForbidden, serve(student, http.MethodGet, "/students/s2/limit-status?studentId=s1", "good"))
}

func TestRBACQueryScopedStudent(t *testing.T) {
	rbac := RBAC(string(models.RoleLibrarian), SelfStudentQuery)
	student := newRouter(&models.JWTClaims{UserID: "u2", Role: models.RoleStudent, StudentID: "s1"}, rbac)

	assert.Equal(t, http.StatusOK, serve(student, http.MethodGet, "/books/b1/policy?studentId=s1", "good"))
	assert.Equal(t, http.StatusForbidden, serve(student, http.MethodGet, "/books/b1/policy?studentId=s2", "good"))
	assert.Equal(t, http.StatusForbidden, serve(student, http.MethodGet, "/books/s1/policy", "good"))
}

func TestStaffRejectsStudents(t *testing.T) {
	r := newRouter(&models.JWTClaims{UserID: "u2", Role: models.RoleStudent, StudentID: "s1"}, Staff())
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodPost, "/borrowings/br1/return", "good"))
}

func TestAuditRecordsSuccessfulMutations(t *testing.T) {
	audit := &auditStub{}
	r := newRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleLibrarian}, Audit(audit, nil, models.AuditActionBorrowingReturn, "borrowings"))

	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/borrowings/br1/return", "good"))
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionBorrowingReturn, audit.logs[0].Action)
	assert.Equal(t, "br1", *audit.logs[0].ResourceID)
	assert.Equal(t, "u1", *audit.logs[0].UserID)

	serve(r, http.MethodPost, "/borrowings/br1/return", "bad")
	assert.Len(t, audit.logs, 1)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	observer := &observerStub{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(observer))
	r.GET("/books/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodGet, "/books/b1", "")
	serve(r, http.MethodGet, "/nowhere", "")
	assert.Equal(t, []string{"/books/:id", "unmatched"}, observer.paths)
}

package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/library-lending-api/internal/models"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
)

type mockAccounts struct {
	userByEmail    *models.User
	findByEmailErr error
	loginRecorded  bool
}

func (m *mockAccounts) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	return m.userByEmail, nil
}

func (m *mockAccounts) RecordLogin(ctx context.Context, id string, at time.Time) error {
	m.loginRecorded = true
	return nil
}

type mockAudit struct {
	logs []*models.AuditLog
}

func (m *mockAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

var testAuthConfig = AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "library-lending-api"}

func newTestAuthService(accounts *mockAccounts, audit *mockAudit) *AuthService {
	var writer auditWriter
	if audit != nil {
		writer = audit
	}
	return NewAuthService(accounts, writer, validator.New(), zap.NewNop(), testAuthConfig)
}

func passwordHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	studentID := "stu-1"
	accounts := &mockAccounts{userByEmail: &models.User{ID: "u1", Email: "ada@example.com", PasswordHash: passwordHash(t), Role: models.RoleStudent, StudentID: &studentID, Active: true}}
	audit := &mockAudit{}
	svc := newTestAuthService(accounts, audit)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "password", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.True(t, accounts.loginRecorded)
	require.Len(t, audit.logs, 1)
	assert.JSONEq(t, `{"outcome":"success"}`, string(audit.logs[0].NewValues))
	assert.Equal(t, "10.0.0.1", audit.logs[0].IPAddress)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "stu-1", claims.StudentID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceLoginRejects(t *testing.T) {
	hash := passwordHash(t)
	ctx := context.Background()
	req := models.LoginRequest{Email: "a@example.com", Password: "password"}

	audit := &mockAudit{}
	inactive := newTestAuthService(&mockAccounts{userByEmail: &models.User{ID: "u1", PasswordHash: hash, Role: models.RoleLibrarian}}, audit)
	_, err := inactive.Login(ctx, req)
	assert.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount.Code))
	require.Len(t, audit.logs, 1)
	assert.JSONEq(t, `{"outcome":"inactive"}`, string(audit.logs[0].NewValues))

	wrong := newTestAuthService(&mockAccounts{userByEmail: &models.User{ID: "u1", PasswordHash: hash, Active: true}}, nil)
	_, err = wrong.Login(ctx, models.LoginRequest{Email: "a@example.com", Password: "nope"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials.Code))

	unlinked := newTestAuthService(&mockAccounts{userByEmail: &models.User{ID: "u2", PasswordHash: hash, Role: models.RoleStudent, Active: true}}, nil)
	_, err = unlinked.Login(ctx, req)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden.Code))

	missing := newTestAuthService(&mockAccounts{findByEmailErr: sql.ErrNoRows}, nil)
	_, err = missing.Login(ctx, req)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials.Code))

	_, err = missing.Login(ctx, models.LoginRequest{Email: "not-an-email", Password: "x"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation.Code))
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	user := &models.User{ID: "u1", Email: "librarian@example.com", Role: models.RoleLibrarian}
	other := NewAuthService(&mockAccounts{}, nil, nil, nil, AuthConfig{AccessTokenSecret: "other", AccessTokenExpiry: time.Hour, Issuer: "library-lending-api"})
	token, err := other.sign(user, time.Now().UTC())
	require.NoError(t, err)

	_, err = newTestAuthService(&mockAccounts{}, nil).ValidateToken(token)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized.Code))
}

func TestValidateTokenRejectsExpiredAndUnsignedTokens(t *testing.T) {
	svc := newTestAuthService(&mockAccounts{}, nil)
	user := &models.User{ID: "u1", Role: models.RoleLibrarian}

	expired, err := svc.sign(user, time.Now().UTC().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized.Code))

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{
		UserID:           "u1",
		Role:             models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: testAuthConfig.Issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized.Code))
}

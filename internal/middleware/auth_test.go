package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtrack/server/internal/model"
	apperrors "github.com/medtrack/server/pkg/errors"
)

const testSecret = "test-jwt-secret"

type fakeResolver struct {
	user *model.User
	err  error
}

func (f *fakeResolver) ResolveTenant(context.Context, string) (*model.User, error) {
	return f.user, f.err
}

func bearerToken(t *testing.T, subject, secret string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + value
}

func authTestRouter(resolver TenantResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	mw := NewAuthMiddleware(testSecret, resolver)
	r.GET("/protected", mw.Authenticate(), func(c *gin.Context) {
		tenantID, _ := TenantID(c)
		c.JSON(http.StatusOK, gin.H{
			"tenant_id": tenantID.String(),
			"role":      c.GetString(ContextUserRole),
		})
	})
	r.GET("/admin", mw.Authenticate(), mw.RequireRole(model.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestAuthenticateBindsTenant(t *testing.T) {
	user := &model.User{Base: model.Base{ID: uuid.New()}, Role: model.RolePatient}
	r := authTestRouter(&fakeResolver{user: user})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", bearerToken(t, "ident_1", testSecret))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), user.ID.String())
	assert.Contains(t, w.Body.String(), model.RolePatient)
}

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	r := authTestRouter(&fakeResolver{})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticateRejectsWrongSignature(t *testing.T) {
	user := &model.User{Base: model.Base{ID: uuid.New()}, Role: model.RolePatient}
	r := authTestRouter(&fakeResolver{user: user})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", bearerToken(t, "ident_1", "other-secret"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	user := &model.User{Base: model.Base{ID: uuid.New()}, Role: model.RolePatient}
	r := authTestRouter(&fakeResolver{user: user})

	claims := jwt.MapClaims{"sub": "ident_1", "exp": time.Now().Add(-time.Hour).Unix()}
	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+value)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticateUnknownIdentity(t *testing.T) {
	r := authTestRouter(&fakeResolver{err: apperrors.NotFound("user", nil)})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", bearerToken(t, "ident_unknown", testSecret))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticateResolverOutage(t *testing.T) {
	r := authTestRouter(&fakeResolver{err: apperrors.ContextUnavailable(nil)})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", bearerToken(t, "ident_1", testSecret))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequireRole(t *testing.T) {
	patient := &model.User{Base: model.Base{ID: uuid.New()}, Role: model.RolePatient}
	r := authTestRouter(&fakeResolver{user: patient})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", bearerToken(t, "ident_1", testSecret))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := &model.User{Base: model.Base{ID: uuid.New()}, Role: model.RoleAdmin}
	r = authTestRouter(&fakeResolver{user: admin})

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", bearerToken(t, "ident_1", testSecret))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

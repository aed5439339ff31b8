package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/medtrack/server/internal/model"
	apperrors "github.com/medtrack/server/pkg/errors"
)

const (
	ContextIdentityID = "identity_id"
	ContextTenantID   = "tenant_id"
	ContextUserRole   = "user_role"
)

// TenantResolver maps an identity-provider subject to the backend user row.
type TenantResolver interface {
	ResolveTenant(ctx context.Context, identityID string) (*model.User, error)
}

type AuthMiddleware struct {
	secret   []byte
	resolver TenantResolver
}

func NewAuthMiddleware(jwtSecret string, resolver TenantResolver) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(jwtSecret), resolver: resolver}
}

// Authenticate verifies the bearer token and binds the caller's tenant to
// the request context. A token for an identity with no backend row is
// rejected; the sign-in flow creates the row before any scoped route is hit.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID, err := m.subjectFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Code:    apperrors.ErrAuthExpired.String(),
				Message: err.Error(),
			})
			return
		}

		user, err := m.resolver.ResolveTenant(c.Request.Context(), identityID)
		if err != nil {
			if apperrors.IsCode(err, apperrors.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
					Code:    apperrors.ErrAuthExpired.String(),
					Message: "unknown identity",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{
				Code:    apperrors.ErrContextUnavailable.String(),
				Message: "could not resolve tenant",
			})
			return
		}

		c.Set(ContextIdentityID, identityID)
		c.Set(ContextTenantID, user.ID)
		c.Set(ContextUserRole, user.Role)
		c.Next()
	}
}

// RequireRole gates a route group to the given roles.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextUserRole)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
			Code:    apperrors.ErrForbidden.String(),
			Message: "insufficient role",
		})
	}
}

func (m *AuthMiddleware) subjectFromHeader(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization format")
	}

	token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// TenantID extracts the bound tenant id from the request context.
func TenantID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextTenantID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medtrack/server/internal/handler"
	"github.com/medtrack/server/internal/identity"
	"github.com/medtrack/server/internal/model"
	"github.com/medtrack/server/internal/service/role"
	"github.com/medtrack/server/internal/service/user"
	"github.com/medtrack/server/pkg/logger"
)

type Handler struct {
	client   identity.Client
	bridge   *identity.Bridge
	recovery *identity.Recovery
	users    *user.Service
	roles    *role.Service
	logger   *logger.Logger
}

func NewHandler(client identity.Client, bridge *identity.Bridge, recovery *identity.Recovery, users *user.Service, roles *role.Service, log *logger.Logger) *Handler {
	return &Handler{
		client:   client,
		bridge:   bridge,
		recovery: recovery,
		users:    users,
		roles:    roles,
		logger:   log,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/signup", h.SignUp)
		auth.POST("/signin", h.SignIn)
		auth.POST("/signout", h.SignOut)
	}
}

func (h *Handler) SignUp(c *gin.Context) {
	var req model.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	result, err := h.client.SignUp(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}
	if result.Status == model.SessionStatusNeedsVerification {
		c.JSON(http.StatusAccepted, handler.NewSuccessResponse(gin.H{"status": result.Status}))
		return
	}

	h.completeSession(c, result)
}

// SignIn establishes a session with the identity provider. A stale-session
// conflict is recovered once: local session state is purged and the sign-in
// retried. A second conflict is surfaced to the caller.
func (h *Handler) SignIn(c *gin.Context) {
	var req model.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	ctx := c.Request.Context()
	result, err := h.client.CreateSession(ctx, req.Identifier, req.Secret)
	if identity.DetectConflict(err) {
		h.logger.Warn("session conflict on sign-in, purging local state and retrying")
		if rerr := h.recovery.ClearAndRetry(ctx); rerr != nil {
			c.Error(rerr)
			return
		}
		result, err = h.client.CreateSession(ctx, req.Identifier, req.Secret)
	}
	if err != nil {
		c.Error(err)
		return
	}
	if result.Status == model.SessionStatusNeedsVerification {
		c.JSON(http.StatusAccepted, handler.NewSuccessResponse(gin.H{"status": result.Status}))
		return
	}

	h.completeSession(c, result)
}

func (h *Handler) SignOut(c *gin.Context) {
	ctx := c.Request.Context()

	if token, err := h.bridge.GetToken(ctx); err == nil && token != nil {
		if err := h.client.EndSession(ctx, token.Value); err != nil {
			h.logger.Warn("failed to end provider session", "error", err.Error())
		}
	}
	if err := h.bridge.Invalidate(ctx); err != nil {
		c.Error(err)
		return
	}
	h.roles.Refresh()

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"signed_out": true}))
}

// completeSession hands a complete provider session to the rest of the
// stack: persist the token, upsert the backend user, run role resolution,
// and lazily create the role profile.
func (h *Handler) completeSession(c *gin.Context, result *model.SessionResult) {
	ctx := c.Request.Context()

	if result.Identity == nil {
		c.JSON(http.StatusBadGateway, handler.NewErrorResponse("provider returned no identity"))
		return
	}
	if err := h.bridge.SetToken(ctx, result.Token, result.RefreshToken); err != nil {
		c.Error(err)
		return
	}

	synced, err := h.users.SyncIdentity(ctx, &model.SyncIdentityRequest{
		IdentityID:  result.Identity.ID,
		Email:       result.Identity.Email,
		DisplayName: result.Identity.DisplayName,
		FirstName:   result.Identity.FirstName,
		LastName:    result.Identity.LastName,
	})
	if err != nil {
		c.Error(err)
		return
	}

	h.roles.Refresh()
	resolution, err := h.roles.Resolve(ctx)
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.ensureProfile(ctx, synced); err != nil {
		h.logger.Error(err, "failed to ensure role profile", "user_id", synced.ID.String())
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"user":          synced,
		"role":          resolution.Role,
		"role_fallback": resolution.Fallback,
		"token": gin.H{
			"value":      result.Token.Value,
			"expires_at": result.Token.ExpiresAt,
		},
	}))
}

func (h *Handler) ensureProfile(ctx context.Context, u *model.User) error {
	return h.users.EnsureProfile(ctx, u)
}

package user

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medtrack/server/internal/handler"
	"github.com/medtrack/server/internal/middleware"
	"github.com/medtrack/server/internal/model"
	"github.com/medtrack/server/internal/service/user"
)

type Handler struct {
	service *user.Service
}

func NewHandler(service *user.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("/me", h.GetCurrent)
		users.PUT("/me/profile", h.UpdateProfile)
	}
}

func (h *Handler) GetCurrent(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("no tenant bound"))
		return
	}

	u, err := h.service.Get(c.Request.Context(), tenantID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(u))
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("no tenant bound"))
		return
	}

	var profile model.PatientProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.service.UpdatePatientProfile(c.Request.Context(), tenantID, &profile); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(profile))
}

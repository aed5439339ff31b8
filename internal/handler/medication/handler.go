package medication

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medtrack/server/internal/handler"
	"github.com/medtrack/server/internal/middleware"
	"github.com/medtrack/server/internal/model"
	"github.com/medtrack/server/internal/service/medication"
)

type Handler struct {
	service *medication.Service
}

func NewHandler(service *medication.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	meds := r.Group("/medications")
	{
		meds.POST("", h.Create)
		meds.GET("", h.List)
		meds.GET("/:id", h.Get)
		meds.PATCH("/:id", h.Update)
		meds.DELETE("/:id", h.Delete)

		meds.POST("/:id/doses/generate", h.GenerateDoses)
		meds.GET("/:id/doses", h.ListDoses)
	}
	doses := r.Group("/doses")
	{
		doses.POST("/:id/status", h.MarkDose)
	}
}

func (h *Handler) Create(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("no tenant bound"))
		return
	}

	var req model.CreateMedicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	med, err := h.service.Create(c.Request.Context(), tenantID, &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(med))
}

func (h *Handler) List(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("no tenant bound"))
		return
	}

	meds, err := h.service.List(c.Request.Context(), tenantID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(meds))
}

func (h *Handler) Get(c *gin.Context) {
	tenantID, id, ok := h.scopedID(c)
	if !ok {
		return
	}

	med, err := h.service.Get(c.Request.Context(), tenantID, id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(med))
}

func (h *Handler) Update(c *gin.Context) {
	tenantID, id, ok := h.scopedID(c)
	if !ok {
		return
	}

	var req model.UpdateMedicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	med, err := h.service.Update(c.Request.Context(), tenantID, id, &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(med))
}

func (h *Handler) Delete(c *gin.Context) {
	tenantID, id, ok := h.scopedID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), tenantID, id); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"deleted": true}))
}

func (h *Handler) GenerateDoses(c *gin.Context) {
	tenantID, id, ok := h.scopedID(c)
	if !ok {
		return
	}

	var req struct {
		HorizonDays int `json:"horizon_days"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
			return
		}
	}

	inserted, err := h.service.GenerateDoses(c.Request.Context(), tenantID, id, req.HorizonDays)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"generated": inserted}))
}

func (h *Handler) ListDoses(c *gin.Context) {
	tenantID, id, ok := h.scopedID(c)
	if !ok {
		return
	}

	from, to, err := dateRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	doses, err := h.service.ListDoses(c.Request.Context(), tenantID, id, from, to)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(doses))
}

func (h *Handler) MarkDose(c *gin.Context) {
	tenantID, id, ok := h.scopedID(c)
	if !ok {
		return
	}

	var req model.UpdateDoseStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	dose, err := h.service.MarkDose(c.Request.Context(), tenantID, id, req.Status)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(dose))
}

func (h *Handler) scopedID(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("no tenant bound"))
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid id"))
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, id, true
}

func dateRange(c *gin.Context) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			return from, to, err
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}

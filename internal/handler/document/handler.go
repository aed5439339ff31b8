package document

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medtrack/server/internal/handler"
	"github.com/medtrack/server/internal/middleware"
	"github.com/medtrack/server/internal/model"
	"github.com/medtrack/server/internal/service/document"
)

type Handler struct {
	service *document.Service
}

func NewHandler(service *document.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	docs := r.Group("/documents")
	{
		docs.POST("", h.Upload)
		docs.GET("", h.List)
		docs.GET("/:id", h.Get)
		docs.DELETE("/:id", h.Delete)
	}
}

// Upload expects a multipart form: a "file" part with the body and a "name"
// and "type" field for the metadata.
func (h *Handler) Upload(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("no tenant bound"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("missing file part"))
		return
	}
	if fileHeader.Size > document.MaxDocumentSize {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("document exceeds maximum size"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.Error(err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, document.MaxDocumentSize+1))
	if err != nil {
		c.Error(err)
		return
	}

	name := c.PostForm("name")
	if name == "" {
		name = fileHeader.Filename
	}
	docType := c.PostForm("type")
	if docType == "" {
		docType = model.DocumentTypeOther
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	doc, err := h.service.Upload(c.Request.Context(), tenantID, &model.UploadDocumentRequest{
		Name:        name,
		Type:        docType,
		ContentType: contentType,
	}, data)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(doc))
}

func (h *Handler) List(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("no tenant bound"))
		return
	}

	docs, err := h.service.List(c.Request.Context(), tenantID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(docs))
}

func (h *Handler) Get(c *gin.Context) {
	tenantID, id, ok := h.scopedID(c)
	if !ok {
		return
	}

	doc, err := h.service.Get(c.Request.Context(), tenantID, id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(doc))
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

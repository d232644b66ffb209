package catalog

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomledger/backend/internal/middleware"
	"github.com/roomledger/backend/pkg/idx"
	"github.com/roomledger/backend/pkg/response"
)

// Handler handles service HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a catalog handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// CreateServiceRequest is the body for POST /rooms/:id/dashboard/.
type CreateServiceRequest struct {
	ServiceName string `json:"service_name" form:"service_name"`
	Description string `json:"description" form:"description"`
}

// Board handles GET /rooms/:id/dashboard/.
func (h *Handler) Board(c *gin.Context) {
	roomID, err := idx.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	board, err := h.svc.Board(c.Request.Context(), middleware.CurrentUser(c), roomID)
	if err != nil {
		h.fail(c, err, "failed to load room dashboard")
		return
	}
	response.OK(c, board)
}

// Create handles POST /rooms/:id/dashboard/.
func (h *Handler) Create(c *gin.Context) {
	roomID, err := idx.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	var body CreateServiceRequest
	if err := c.ShouldBind(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	svc, err := h.svc.CreateService(c.Request.Context(), middleware.CurrentUser(c), roomID, body.ServiceName, body.Description)
	if err != nil {
		h.fail(c, err, "failed to create service")
		return
	}
	response.Created(c, svc)
}

// Delete handles POST /services/:id/delete/. Room owner only.
func (h *Handler) Delete(c *gin.Context) {
	id, err := idx.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid service id")
		return
	}
	if err := h.svc.DeleteService(c.Request.Context(), middleware.CurrentUser(c), id); err != nil {
		h.fail(c, err, "failed to delete service")
		return
	}
	response.NoContent(c)
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	if response.StatusFor(err) >= 500 {
		h.logger.Error(msg, zap.Error(err), zap.String("path", c.Request.URL.Path))
	}
	response.Error(c, err, msg)
}

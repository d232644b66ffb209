package ledger

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomledger/backend/internal/middleware"
	"github.com/roomledger/backend/pkg/idx"
	"github.com/roomledger/backend/pkg/response"
)

// Handler handles record HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a ledger handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// RecordRequest is the body for adding or editing a record. Cost is a
// decimal string such as "45.50".
type RecordRequest struct {
	Description string `json:"description" form:"description"`
	Cost        string `json:"cost" form:"cost"`
}

// Manage handles GET /services/:id/manage/.
func (h *Handler) Manage(c *gin.Context) {
	id, ok := parseID(c, "invalid service id")
	if !ok {
		return
	}
	page, err := h.svc.Page(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		h.fail(c, err, "failed to load service")
		return
	}
	response.OK(c, page)
}

// Add handles POST /services/:id/manage/.
func (h *Handler) Add(c *gin.Context) {
	id, ok := parseID(c, "invalid service id")
	if !ok {
		return
	}
	body, ok := bind(c)
	if !ok {
		return
	}
	rec, err := h.svc.AddRecord(c.Request.Context(), middleware.CurrentUser(c), id, body.Description, body.Cost)
	if err != nil {
		h.fail(c, err, "failed to add record")
		return
	}
	response.Created(c, rec)
}

// EditForm handles GET /records/:id/edit/.
func (h *Handler) EditForm(c *gin.Context) {
	id, ok := parseID(c, "invalid record id")
	if !ok {
		return
	}
	detail, err := h.svc.GetRecord(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		h.fail(c, err, "failed to load record")
		return
	}
	response.OK(c, detail)
}

// Edit handles POST /records/:id/edit/.
func (h *Handler) Edit(c *gin.Context) {
	id, ok := parseID(c, "invalid record id")
	if !ok {
		return
	}
	body, ok := bind(c)
	if !ok {
		return
	}
	rec, err := h.svc.EditRecord(c.Request.Context(), middleware.CurrentUser(c), id, body.Description, body.Cost)
	if err != nil {
		h.fail(c, err, "failed to update record")
		return
	}
	response.OK(c, rec)
}

// Delete handles POST /records/:id/delete/.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c, "invalid record id")
	if !ok {
		return
	}
	if err := h.svc.DeleteRecord(c.Request.Context(), middleware.CurrentUser(c), id); err != nil {
		h.fail(c, err, "failed to delete record")
		return
	}
	response.NoContent(c)
}

// bind reads the form. Cost is left as text for the service to parse after
// the authorization check.
func bind(c *gin.Context) (RecordRequest, bool) {
	var body RecordRequest
	if err := c.ShouldBind(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return body, false
	}
	return body, true
}

func parseID(c *gin.Context, msg string) (idx.ID, bool) {
	id, err := idx.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, msg)
		return idx.Zero, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	if response.StatusFor(err) >= 500 {
		h.logger.Error(msg, zap.Error(err), zap.String("path", c.Request.URL.Path))
	}
	response.Error(c, err, msg)
}

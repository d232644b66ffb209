package emaillogs

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/response"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Lister reads recent email logs.
type Lister interface {
	ListRecentEmailLogs(ctx context.Context, limit int) ([]*models.EmailLog, error)
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	repo Lister
}

// NewHandler creates an email logs handler.
func NewHandler(repo Lister) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /admindashboard/emails/?limit=. Call after RequireStaff.
func (h *Handler) List(c *gin.Context) {
	limit := defaultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.BadRequest(c, "limit must be a positive number")
			return
		}
		limit = min(n, maxLimit)
	}
	logs, err := h.repo.ListRecentEmailLogs(c.Request.Context(), limit)
	if err != nil {
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}

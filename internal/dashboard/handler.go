package dashboard

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomledger/backend/internal/apperr"
	"github.com/roomledger/backend/internal/middleware"
	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/idx"
	"github.com/roomledger/backend/pkg/response"
)

// DateLayout is the format of the admin dashboard date filter.
const DateLayout = "2006-01-02"

// Handler handles dashboard HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a dashboard handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Home handles GET /dashboard/. Redirects to the first room's dashboard, or
// returns the (empty) room picker.
func (h *Handler) Home(c *gin.Context) {
	view, err := h.svc.Home(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		h.fail(c, err, "failed to load dashboard")
		return
	}
	if view.Room != nil {
		c.Redirect(http.StatusFound, "/rooms/"+view.Room.ID.String()+"/dashboard/")
		return
	}
	response.OK(c, view)
}

// Owner handles GET /rooms/:id/owner/?year=&month=.
func (h *Handler) Owner(c *gin.Context) {
	roomID, err := idx.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	year, err := queryInt(c, "year")
	if err != nil {
		response.BadRequest(c, "year must be a number")
		return
	}
	month, err := queryInt(c, "month")
	if err != nil {
		response.BadRequest(c, "month must be a number")
		return
	}
	view, err := h.svc.OwnerDashboard(c.Request.Context(), middleware.CurrentUser(c), roomID, year, month)
	if err != nil {
		h.fail(c, err, "failed to load owner dashboard")
		return
	}
	response.OK(c, view)
}

// Admin handles GET /admindashboard/?q=&service=&date=. Staff only.
func (h *Handler) Admin(c *gin.Context) {
	filter, err := ParseFilter(c.Query("q"), c.Query("service"), c.Query("date"))
	if err != nil {
		response.Error(c, err, "invalid filter")
		return
	}
	view, err := h.svc.AdminDashboard(c.Request.Context(), middleware.CurrentUser(c), filter)
	if err != nil {
		h.fail(c, err, "failed to load admin dashboard")
		return
	}
	response.OK(c, view)
}

// ParseFilter builds a record filter from raw query values. date must be
// YYYY-MM-DD when present.
func ParseFilter(search, service, date string) (models.RecordFilter, error) {
	f := models.RecordFilter{
		Search:      strings.TrimSpace(search),
		ServiceName: strings.TrimSpace(service),
	}
	if date = strings.TrimSpace(date); date != "" {
		d, err := time.ParseInLocation(DateLayout, date, time.UTC)
		if err != nil {
			return f, apperr.Validation("date must be in YYYY-MM-DD format")
		}
		f.Date = &d
	}
	return f, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	if response.StatusFor(err) >= 500 {
		h.logger.Error(msg, zap.Error(err), zap.String("path", c.Request.URL.Path))
	}
	response.Error(c, err, msg)
}

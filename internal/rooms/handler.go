package rooms

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomledger/backend/internal/middleware"
	"github.com/roomledger/backend/pkg/idx"
	"github.com/roomledger/backend/pkg/response"
)

// Handler handles room HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a rooms handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// CreateRoomRequest is the body for POST /rooms/create/.
type CreateRoomRequest struct {
	Name        string `json:"name" form:"name"`
	Description string `json:"description" form:"description"`
}

// JoinRoomRequest is the body for POST /rooms/join/.
type JoinRoomRequest struct {
	InviteCode string `json:"invite_code" form:"invite_code"`
}

// List handles GET /rooms/. Returns rooms the current user is a member of.
func (h *Handler) List(c *gin.Context) {
	user := middleware.CurrentUser(c)
	rooms, err := h.svc.ListRoomsFor(c.Request.Context(), user)
	if err != nil {
		h.fail(c, err, "failed to load rooms")
		return
	}
	response.OK(c, gin.H{"rooms": rooms})
}

// CreateForm handles GET /rooms/create/.
func (h *Handler) CreateForm(c *gin.Context) {
	response.Form(c, "name", "description")
}

// Create handles POST /rooms/create/. The current user becomes owner and member.
func (h *Handler) Create(c *gin.Context) {
	var body CreateRoomRequest
	if err := c.ShouldBind(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	room, err := h.svc.CreateRoom(c.Request.Context(), middleware.CurrentUser(c), body.Name, body.Description)
	if err != nil {
		h.fail(c, err, "failed to create room")
		return
	}
	response.Created(c, room)
}

// JoinForm handles GET /rooms/join/.
func (h *Handler) JoinForm(c *gin.Context) {
	response.Form(c, "invite_code")
}

// Join handles POST /rooms/join/.
func (h *Handler) Join(c *gin.Context) {
	var body JoinRoomRequest
	if err := c.ShouldBind(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	room, err := h.svc.JoinRoom(c.Request.Context(), middleware.CurrentUser(c), body.InviteCode)
	if err != nil {
		h.fail(c, err, "failed to join room")
		return
	}
	response.OK(c, gin.H{"room": room, "message": "You have successfully joined the room: " + room.Name})
}

// Detail handles GET /rooms/:id/. Members only.
func (h *Handler) Detail(c *gin.Context) {
	id, err := idx.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	detail, err := h.svc.GetRoom(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		h.fail(c, err, "failed to load room")
		return
	}
	response.OK(c, detail)
}

// Delete handles POST /rooms/:id/delete/. Owner only.
func (h *Handler) Delete(c *gin.Context) {
	id, err := idx.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	if err := h.svc.DeleteRoom(c.Request.Context(), middleware.CurrentUser(c), id); err != nil {
		h.fail(c, err, "failed to delete room")
		return
	}
	response.NoContent(c)
}

// RemoveMember handles POST /rooms/:id/remove_member/:user_id/. Owner only.
func (h *Handler) RemoveMember(c *gin.Context) {
	roomID, err := idx.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	userID, err := idx.Parse(c.Param("user_id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	if err := h.svc.RemoveMember(c.Request.Context(), middleware.CurrentUser(c), roomID, userID); err != nil {
		h.fail(c, err, "failed to remove member")
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

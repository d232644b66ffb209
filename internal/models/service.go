package models

import (
	"time"

	"github.com/roomledger/backend/pkg/idx"
)

// Service is a named cost-tracking category inside one room.
type Service struct {
	ID          idx.ID    `json:"id"`
	RoomID      idx.ID    `json:"room_id"`
	CreatedBy   idx.ID    `json:"created_by"`
	ServiceName string    `json:"service_name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

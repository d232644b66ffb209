package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/roomledger/backend/pkg/idx"
)

// Record is a single dated cost entry under a service.
type Record struct {
	ID          idx.ID          `json:"id"`
	ServiceID   idx.ID          `json:"service_id"`
	Description string          `json:"description"`
	Cost        decimal.Decimal `json:"cost"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RecordView is a Record joined with its service, room and service creator,
// as listed on the owner and admin dashboards.
type RecordView struct {
	Record
	ServiceName       string `json:"service_name"`
	RoomID            idx.ID `json:"room_id"`
	RoomName          string `json:"room_name"`
	CreatedByID       idx.ID `json:"created_by_id"`
	CreatedByUsername string `json:"created_by_username"`
}

// RecordFilter narrows the admin record listing. Empty fields do not filter.
type RecordFilter struct {
	Search      string     `json:"q"`
	ServiceName string     `json:"service"`
	Date        *time.Time `json:"date,omitempty"`
}

package models

import (
	"time"

	"github.com/roomledger/backend/pkg/idx"
)

// Room is a tenant grouping members, services and records.
type Room struct {
	ID          idx.ID    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	InviteCode  string    `json:"invite_code"`
	OwnerID     idx.ID    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Member is a room member with user details.
type Member struct {
	UserID   idx.ID    `json:"user_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	IsOwner  bool      `json:"is_owner"`
	JoinedAt time.Time `json:"joined_at"`
}

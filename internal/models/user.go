package models

import (
	"time"

	"github.com/roomledger/backend/pkg/idx"
)

// User is an account. New accounts start inactive until activated by email.
type User struct {
	ID           idx.ID     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	IsStaff      bool       `json:"is_staff"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// UserPublic is User without credentials or flags, for member lists.
type UserPublic struct {
	ID       idx.ID `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{ID: u.ID, Username: u.Username, Email: u.Email}
}

// Session identifies a login session carried by a signed token.
type Session struct {
	UserID    idx.ID    `json:"user_id"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

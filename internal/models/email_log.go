package models

import (
	"time"

	"github.com/roomledger/backend/pkg/idx"
)

// EmailType values.
const (
	EmailTypeAccountActivation = "account_activation"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusPending = "pending"
	EmailLogStatusSent    = "sent"
	EmailLogStatusFailed  = "failed"
)

// EmailLog records an outgoing email and its delivery state.
type EmailLog struct {
	ID             idx.ID     `json:"id"`
	UserID         *idx.ID    `json:"user_id,omitempty"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

package rooms

import (
	"strings"

	"github.com/google/uuid"
)

// InviteCodeLength is the length of a room invite code.
const InviteCodeLength = 8

// maxInviteAttempts bounds invite code generation before CreateRoom gives up.
const maxInviteAttempts = 5

// NewInviteCode returns the first 8 hex digits of a random UUID, upper-cased.
func NewInviteCode() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(hex[:InviteCodeLength])
}

// NormalizeInviteCode trims and upper-cases user input.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Package policy holds the authorization predicates evaluated before every
// room, service and record operation.
package policy

import (
	"context"
	"fmt"

	"github.com/roomledger/backend/internal/apperr"
	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/idx"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the allowed decision.
var Allow = Decision{Allowed: true}

// Deny returns a denied decision with reason.
func Deny(reason string) Decision { return Decision{Reason: reason} }

// Err returns nil when allowed and a forbidden error carrying the reason otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperr.Forbidden("%s", d.Reason)
}

// Membership answers whether a user belongs to a room.
type Membership interface {
	IsMember(ctx context.Context, roomID, userID idx.ID) (bool, error)
}

// Policy evaluates membership-based rules.
type Policy struct {
	members Membership
}

// New creates a Policy.
func New(members Membership) *Policy {
	return &Policy{members: members}
}

// IsOwner allows only the room's owner.
func IsOwner(user *models.User, room *models.Room) Decision {
	if user != nil && room != nil && user.ID == room.OwnerID {
		return Allow
	}
	return Deny("only the room owner can perform this action")
}

// IsStaff allows only staff users.
func IsStaff(user *models.User) Decision {
	if user != nil && user.IsStaff {
		return Allow
	}
	return Deny("staff access required")
}

// IsMember allows members of room.
func (p *Policy) IsMember(ctx context.Context, user *models.User, room *models.Room) (Decision, error) {
	if user == nil || room == nil {
		return Deny("you are not a member of this room"), nil
	}
	ok, err := p.members.IsMember(ctx, room.ID, user.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return Deny("you are not a member of this room"), nil
	}
	return Allow, nil
}

// MemberOrStaff allows staff users anywhere and members within their room.
func (p *Policy) MemberOrStaff(ctx context.Context, user *models.User, room *models.Room) (Decision, error) {
	if IsStaff(user).Allowed {
		return Allow, nil
	}
	return p.IsMember(ctx, user, room)
}

// RequireMember is IsMember folded into a single error.
func (p *Policy) RequireMember(ctx context.Context, user *models.User, room *models.Room) error {
	d, err := p.IsMember(ctx, user, room)
	if err != nil {
		return err
	}
	return d.Err()
}

// RequireMemberOrStaff is MemberOrStaff folded into a single error.
func (p *Policy) RequireMemberOrStaff(ctx context.Context, user *models.User, room *models.Room) error {
	d, err := p.MemberOrStaff(ctx, user, room)
	if err != nil {
		return err
	}
	return d.Err()
}

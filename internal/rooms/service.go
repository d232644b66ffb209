// Package rooms is the room registry: rooms, invite codes and membership.
package rooms

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/roomledger/backend/internal/apperr"
	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/internal/policy"
	"github.com/roomledger/backend/pkg/idx"
)

// Store persists rooms and memberships. Repository is the Postgres implementation.
type Store interface {
	// CreateRoom inserts the room and the owner's membership atomically.
	// It returns false, nil when the invite code is already taken.
	CreateRoom(ctx context.Context, room *models.Room) (bool, error)
	GetRoom(ctx context.Context, id idx.ID) (*models.Room, error)
	GetRoomByInviteCode(ctx context.Context, code string) (*models.Room, error)
	AddMember(ctx context.Context, roomID, userID idx.ID) error
	RemoveMember(ctx context.Context, roomID, userID idx.ID) error
	IsMember(ctx context.Context, roomID, userID idx.ID) (bool, error)
	ListRoomsForUser(ctx context.Context, userID idx.ID) ([]*models.Room, error)
	ListMembers(ctx context.Context, roomID idx.ID) ([]models.Member, error)
	// DeleteRoom removes the room and everything under it.
	DeleteRoom(ctx context.Context, id idx.ID) error
}

// UserReader looks up users.
type UserReader interface {
	GetUserByID(ctx context.Context, id idx.ID) (*models.User, error)
}

// Service implements the room operations.
type Service struct {
	store  Store
	users  UserReader
	policy *policy.Policy
	logger *zap.Logger

	// newCode generates invite codes; replaced in tests.
	newCode func() string
}

// NewService creates a room service.
func NewService(store Store, users UserReader, p *policy.Policy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, users: users, policy: p, logger: logger, newCode: NewInviteCode}
}

// Detail is a room as seen by one of its members.
type Detail struct {
	Room    *models.Room    `json:"room"`
	Members []models.Member `json:"members"`
	IsOwner bool            `json:"is_owner"`
}

// CreateRoom creates a room owned by owner, who becomes its first member.
func (s *Service) CreateRoom(ctx context.Context, owner *models.User, name, description string) (*models.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("room name is required")
	}
	if utf8.RuneCountInString(name) > 100 {
		return nil, apperr.Validation("room name must be at most 100 characters")
	}

	for attempt := 1; attempt <= maxInviteAttempts; attempt++ {
		room := &models.Room{
			ID:          idx.New(),
			Name:        name,
			Description: strings.TrimSpace(description),
			InviteCode:  s.newCode(),
			OwnerID:     owner.ID,
		}
		ok, err := s.store.CreateRoom(ctx, room)
		if err != nil {
			return nil, err
		}
		if ok {
			s.logger.Info("room created",
				zap.String("room_id", room.ID.String()),
				zap.String("owner_id", owner.ID.String()),
			)
			return room, nil
		}
		s.logger.Warn("invite code collision, retrying",
			zap.String("invite_code", room.InviteCode),
			zap.Int("attempt", attempt),
		)
	}
	return nil, apperr.Conflict("could not allocate a unique invite code, please try again")
}

// JoinRoom adds user to the room with the given invite code. Joining a room
// twice is a no-op.
func (s *Service) JoinRoom(ctx context.Context, user *models.User, code string) (*models.Room, error) {
	code = NormalizeInviteCode(code)
	if code == "" {
		return nil, apperr.Validation("invite code is required")
	}
	room, err := s.store.GetRoomByInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddMember(ctx, room.ID, user.ID); err != nil {
		return nil, err
	}
	s.logger.Info("user joined room",
		zap.String("room_id", room.ID.String()),
		zap.String("user_id", user.ID.String()),
	)
	return room, nil
}

// RemoveMember removes target from the room. Only the owner may do it, and
// never to themselves.
func (s *Service) RemoveMember(ctx context.Context, actor *models.User, roomID, targetID idx.ID) error {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if _, err := s.users.GetUserByID(ctx, targetID); err != nil {
		return err
	}
	if err := policy.IsOwner(actor, room).Err(); err != nil {
		s.logger.Warn("remove member denied",
			zap.String("room_id", room.ID.String()),
			zap.String("actor_id", actor.ID.String()),
		)
		return err
	}
	if targetID == room.OwnerID {
		return apperr.Forbidden("the room owner cannot be removed")
	}
	return s.store.RemoveMember(ctx, room.ID, targetID)
}

// ListRoomsFor returns the rooms user is a member of, oldest first.
func (s *Service) ListRoomsFor(ctx context.Context, user *models.User) ([]*models.Room, error) {
	return s.store.ListRoomsForUser(ctx, user.ID)
}

// GetRoom returns the room with its member list. Members only.
func (s *Service) GetRoom(ctx context.Context, actor *models.User, id idx.ID) (*Detail, error) {
	room, err := s.store.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.RequireMember(ctx, actor, room); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	return &Detail{Room: room, Members: members, IsOwner: policy.IsOwner(actor, room).Allowed}, nil
}

// DeleteRoom deletes the room with its services and records. Owner only.
func (s *Service) DeleteRoom(ctx context.Context, actor *models.User, id idx.ID) error {
	room, err := s.store.GetRoom(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.IsOwner(actor, room).Err(); err != nil {
		return err
	}
	if err := s.store.DeleteRoom(ctx, room.ID); err != nil {
		return err
	}
	s.logger.Info("room deleted", zap.String("room_id", room.ID.String()))
	return nil
}

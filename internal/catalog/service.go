// Package catalog manages the services tracked inside a room.
package catalog

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

const maxFieldLength = 255

// Store persists services.
type Store interface {
	CreateService(ctx context.Context, s *models.Service) error
	GetService(ctx context.Context, id idx.ID) (*models.Service, error)
	ListServices(ctx context.Context, roomID idx.ID) ([]*models.Service, error)
	// DeleteService removes the service and its records atomically.
	DeleteService(ctx context.Context, id idx.ID) error
}

// RoomReader looks up rooms.
type RoomReader interface {
	GetRoom(ctx context.Context, id idx.ID) (*models.Room, error)
}

// Service implements the catalog operations.
type Service struct {
	store  Store
	rooms  RoomReader
	policy *policy.Policy
	logger *zap.Logger
}

// NewService creates a catalog service.
func NewService(store Store, rooms RoomReader, p *policy.Policy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, rooms: rooms, policy: p, logger: logger}
}

// Board is the room dashboard: the room and its services.
type Board struct {
	Room     *models.Room      `json:"room"`
	Services []*models.Service `json:"services"`
	IsOwner  bool              `json:"is_owner"`
}

// CreateService adds a service to a room the actor belongs to.
func (s *Service) CreateService(ctx context.Context, actor *models.User, roomID idx.ID, name, description string) (*models.Service, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.RequireMember(ctx, actor, room); err != nil {
		s.logger.Warn("create service denied", zap.String("room_id", roomID.String()), zap.String("user_id", actor.ID.String()))
		return nil, err
	}
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if err := validateField("service name", name); err != nil {
		return nil, err
	}
	if err := validateField("description", description); err != nil {
		return nil, err
	}

	svc := &models.Service{
		ID:          idx.New(),
		RoomID:      room.ID,
		CreatedBy:   actor.ID,
		ServiceName: name,
		Description: description,
	}
	if err := s.store.CreateService(ctx, svc); err != nil {
		return nil, err
	}
	return svc, nil
}

// DeleteService removes a service and all of its records. Owner of the room only.
func (s *Service) DeleteService(ctx context.Context, actor *models.User, serviceID idx.ID) error {
	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return err
	}
	room, err := s.rooms.GetRoom(ctx, svc.RoomID)
	if err != nil {
		return err
	}
	if err := policy.IsOwner(actor, room).Err(); err != nil {
		s.logger.Warn("delete service denied", zap.String("service_id", serviceID.String()), zap.String("user_id", actor.ID.String()))
		return err
	}
	return s.store.DeleteService(ctx, serviceID)
}

// ListServices returns a room's services, newest first.
func (s *Service) ListServices(ctx context.Context, actor *models.User, roomID idx.ID) ([]*models.Service, error) {
	board, err := s.Board(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}
	return board.Services, nil
}

// Board returns the room dashboard for a member.
func (s *Service) Board(ctx context.Context, actor *models.User, roomID idx.ID) (*Board, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.RequireMember(ctx, actor, room); err != nil {
		return nil, err
	}
	services, err := s.store.ListServices(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &Board{Room: room, Services: services, IsOwner: policy.IsOwner(actor, room).Allowed}, nil
}

// GetService returns a service and the room it belongs to. Members only.
func (s *Service) GetService(ctx context.Context, actor *models.User, id idx.ID) (*models.Service, *models.Room, error) {
	svc, err := s.store.GetService(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	room, err := s.rooms.GetRoom(ctx, svc.RoomID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.policy.RequireMember(ctx, actor, room); err != nil {
		return nil, nil, err
	}
	return svc, room, nil
}

func validateField(what, v string) error {
	if v == "" {
		return apperr.Validation("%s is required", what)
	}
	if utf8.RuneCountInString(v) > maxFieldLength {
		return apperr.Validation("%s must be at most %d characters", what, maxFieldLength)
	}
	return nil
}

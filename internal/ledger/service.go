// Package ledger records dated costs under a service.
package ledger

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/roomledger/backend/internal/apperr"
	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/internal/policy"
	"github.com/roomledger/backend/pkg/idx"
)

// Store persists records.
type Store interface {
	CreateRecord(ctx context.Context, r *models.Record) error
	GetRecord(ctx context.Context, id idx.ID) (*models.Record, error)
	// UpdateRecord writes description and cost and refreshes updated_at.
	UpdateRecord(ctx context.Context, r *models.Record) error
	DeleteRecord(ctx context.Context, id idx.ID) error
	// ListRecords returns a service's records by created_at DESC, id DESC.
	ListRecords(ctx context.Context, serviceID idx.ID) ([]*models.Record, error)
}

// Lookup resolves the service and room a record hangs off.
type Lookup interface {
	GetService(ctx context.Context, id idx.ID) (*models.Service, error)
	GetRoom(ctx context.Context, id idx.ID) (*models.Room, error)
}

// Service implements the record operations.
type Service struct {
	store  Store
	lookup Lookup
	policy *policy.Policy
	logger *zap.Logger
}

// NewService creates a ledger service.
func NewService(store Store, lookup Lookup, p *policy.Policy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, lookup: lookup, policy: p, logger: logger}
}

// Page is the service management view.
type Page struct {
	Service *models.Service  `json:"service"`
	Room    *models.Room     `json:"room"`
	Records []*models.Record `json:"records"`
	IsOwner bool             `json:"is_owner"`
}

// RecordDetail is a record with its service, as shown on the edit form.
type RecordDetail struct {
	Record  *models.Record  `json:"record"`
	Service *models.Service `json:"service"`
}

// AddRecord adds a cost record to a service in a room the actor belongs to.
// cost is the decimal text as submitted; it is parsed only once the actor is
// authorized.
func (s *Service) AddRecord(ctx context.Context, actor *models.User, serviceID idx.ID, description, cost string) (*models.Record, error) {
	svc, room, err := s.resolve(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.RequireMember(ctx, actor, room); err != nil {
		s.logger.Warn("add record denied", zap.String("service_id", svc.ID.String()), zap.String("user_id", actor.ID.String()))
		return nil, err
	}
	description, amount, err := validate(description, cost)
	if err != nil {
		return nil, err
	}
	rec := &models.Record{
		ID:          idx.New(),
		ServiceID:   svc.ID,
		Description: description,
		Cost:        amount,
	}
	if err := s.store.CreateRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// EditRecord changes a record's description and cost. Staff or members of the record's room.
func (s *Service) EditRecord(ctx context.Context, actor *models.User, recordID idx.ID, description, cost string) (*models.Record, error) {
	rec, err := s.authorizeRecord(ctx, actor, recordID)
	if err != nil {
		return nil, err
	}
	description, amount, err := validate(description, cost)
	if err != nil {
		return nil, err
	}
	rec.Description = description
	rec.Cost = amount
	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteRecord hard-deletes a record. Staff or members of the record's room.
func (s *Service) DeleteRecord(ctx context.Context, actor *models.User, recordID idx.ID) error {
	if _, err := s.authorizeRecord(ctx, actor, recordID); err != nil {
		return err
	}
	return s.store.DeleteRecord(ctx, recordID)
}

// GetRecord returns a record for the edit form.
func (s *Service) GetRecord(ctx context.Context, actor *models.User, recordID idx.ID) (*RecordDetail, error) {
	rec, err := s.authorizeRecord(ctx, actor, recordID)
	if err != nil {
		return nil, err
	}
	svc, err := s.lookup.GetService(ctx, rec.ServiceID)
	if err != nil {
		return nil, err
	}
	return &RecordDetail{Record: rec, Service: svc}, nil
}

// ListRecords returns a service's records newest first. Members only.
func (s *Service) ListRecords(ctx context.Context, actor *models.User, serviceID idx.ID) ([]*models.Record, error) {
	page, err := s.Page(ctx, actor, serviceID)
	if err != nil {
		return nil, err
	}
	return page.Records, nil
}

// Page returns the management view of a service.
func (s *Service) Page(ctx context.Context, actor *models.User, serviceID idx.ID) (*Page, error) {
	svc, room, err := s.resolve(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.RequireMember(ctx, actor, room); err != nil {
		return nil, err
	}
	records, err := s.store.ListRecords(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return &Page{Service: svc, Room: room, Records: records, IsOwner: policy.IsOwner(actor, room).Allowed}, nil
}

func (s *Service) resolve(ctx context.Context, serviceID idx.ID) (*models.Service, *models.Room, error) {
	svc, err := s.lookup.GetService(ctx, serviceID)
	if err != nil {
		return nil, nil, err
	}
	room, err := s.lookup.GetRoom(ctx, svc.RoomID)
	if err != nil {
		return nil, nil, err
	}
	return svc, room, nil
}

func (s *Service) authorizeRecord(ctx context.Context, actor *models.User, recordID idx.ID) (*models.Record, error) {
	rec, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	_, room, err := s.resolve(ctx, rec.ServiceID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.RequireMemberOrStaff(ctx, actor, room); err != nil {
		s.logger.Warn("record access denied", zap.String("record_id", recordID.String()), zap.String("user_id", actor.ID.String()))
		return nil, err
	}
	return rec, nil
}

func validate(description, cost string) (string, decimal.Decimal, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", decimal.Zero, apperr.Validation("description is required")
	}
	amount, err := ParseCost(cost)
	if err != nil {
		return "", decimal.Zero, err
	}
	return description, amount, nil
}

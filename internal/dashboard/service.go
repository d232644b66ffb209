// Package dashboard aggregates records across rooms and services for the
// owner and staff dashboards.
package dashboard

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/roomledger/backend/internal/apperr"
	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/internal/policy"
	"github.com/roomledger/backend/pkg/idx"
)

// NoService is reported as most used service when there are no records.
const NoService = "N/A"

// Store runs the aggregation queries.
type Store interface {
	// SumRoomCosts sums costs of the room's records created in [from, to).
	SumRoomCosts(ctx context.Context, roomID idx.ID, from, to time.Time) (decimal.Decimal, error)
	ListRoomRecords(ctx context.Context, roomID idx.ID) ([]models.RecordView, error)
	SearchRecords(ctx context.Context, f models.RecordFilter) ([]models.RecordView, error)
	DistinctServiceNames(ctx context.Context) ([]string, error)
	CountUsers(ctx context.Context) (int, error)
}

// RoomReader looks up rooms.
type RoomReader interface {
	GetRoom(ctx context.Context, id idx.ID) (*models.Room, error)
	ListRoomsForUser(ctx context.Context, userID idx.ID) ([]*models.Room, error)
}

// Service implements the dashboards.
type Service struct {
	store  Store
	rooms  RoomReader
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a dashboard service.
func NewService(store Store, rooms RoomReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, rooms: rooms, logger: logger, now: time.Now}
}

// OwnerView is the owner dashboard of one room.
type OwnerView struct {
	Room         *models.Room        `json:"room"`
	Year         int                 `json:"year"`
	Month        int                 `json:"month"`
	MonthLabel   string              `json:"month_label"`
	MonthlyTotal decimal.Decimal     `json:"monthly_total"`
	Records      []models.RecordView `json:"records"`
}

// Summary is the headline figures of the admin dashboard.
type Summary struct {
	TotalUsers      int             `json:"total_users"`
	TotalRecords    int             `json:"total_records"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	MostUsedService string          `json:"most_used_service"`
}

// AdminView is the staff dashboard.
type AdminView struct {
	Summary
	Records      []models.RecordView `json:"records"`
	ServiceNames []string            `json:"service_names"`
	Filter       models.RecordFilter `json:"filter"`
}

// HomeView is the /dashboard/ landing: the room to open, or a room picker.
type HomeView struct {
	Room  *models.Room   `json:"room,omitempty"`
	Rooms []*models.Room `json:"rooms"`
}

// monthRange returns [first of month, first of next month) in UTC.
func monthRange(year, month int) (time.Time, time.Time, error) {
	if month < 1 || month > 12 {
		return time.Time{}, time.Time{}, apperr.Validation("month must be between 1 and 12")
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0), nil
}

// MonthlyTotal sums the costs of the room's records created in the given month.
func (s *Service) MonthlyTotal(ctx context.Context, roomID idx.ID, year, month int) (decimal.Decimal, error) {
	from, to, err := monthRange(year, month)
	if err != nil {
		return decimal.Zero, err
	}
	return s.store.SumRoomCosts(ctx, roomID, from, to)
}

// OwnerDashboard returns the monthly total and all records of a room. Owner only.
// Zero year or month default to the current month.
func (s *Service) OwnerDashboard(ctx context.Context, actor *models.User, roomID idx.ID, year, month int) (*OwnerView, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := policy.IsOwner(actor, room).Err(); err != nil {
		s.logger.Warn("owner dashboard denied", zap.String("room_id", roomID.String()), zap.String("user_id", actor.ID.String()))
		return nil, err
	}
	now := s.now().UTC()
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	total, err := s.MonthlyTotal(ctx, roomID, year, month)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListRoomRecords(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &OwnerView{
		Room:         room,
		Year:         year,
		Month:        month,
		MonthLabel:   time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("January 2006"),
		MonthlyTotal: total,
		Records:      records,
	}, nil
}

// AdminQuery returns records matching every non-empty filter field, newest first.
func (s *Service) AdminQuery(ctx context.Context, f models.RecordFilter) ([]models.RecordView, error) {
	return s.store.SearchRecords(ctx, f)
}

// AdminSummary computes the dashboard figures over a filtered record set.
func AdminSummary(records []models.RecordView, totalUsers int) Summary {
	sum := Summary{
		TotalUsers:      totalUsers,
		TotalRecords:    len(records),
		TotalCost:       decimal.Zero,
		MostUsedService: NoService,
	}
	counts := map[string]int{}
	var order []string
	for _, r := range records {
		sum.TotalCost = sum.TotalCost.Add(r.Cost)
		if counts[r.ServiceName] == 0 {
			order = append(order, r.ServiceName)
		}
		counts[r.ServiceName]++
	}
	// Ties go to the name seen first.
	best := 0
	for _, name := range order {
		if counts[name] > best {
			best = counts[name]
			sum.MostUsedService = name
		}
	}
	return sum
}

// AdminDashboard returns the staff dashboard. Staff only.
func (s *Service) AdminDashboard(ctx context.Context, actor *models.User, f models.RecordFilter) (*AdminView, error) {
	if err := policy.IsStaff(actor).Err(); err != nil {
		return nil, err
	}
	records, err := s.AdminQuery(ctx, f)
	if err != nil {
		return nil, err
	}
	users, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	names, err := s.store.DistinctServiceNames(ctx)
	if err != nil {
		return nil, err
	}
	return &AdminView{
		Summary:      AdminSummary(records, users),
		Records:      records,
		ServiceNames: names,
		Filter:       f,
	}, nil
}

// Home picks the room the dashboard landing opens: the user's first room in
// creation order, or none.
func (s *Service) Home(ctx context.Context, actor *models.User) (*HomeView, error) {
	rooms, err := s.rooms.ListRoomsForUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	view := &HomeView{Rooms: rooms}
	if len(rooms) > 0 {
		view.Room = rooms[0]
	}
	return view, nil
}

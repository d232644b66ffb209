// Package storetest provides an in-memory implementation of every repository
// interface in the application, for service-level tests. It mirrors the
// Postgres repositories' ordering, uniqueness and cascade rules.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roomledger/backend/internal/apperr"
	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/idx"
)

// Memory is a goroutine-safe in-memory store.
type Memory struct {
	mu sync.Mutex

	// Now stamps created_at/updated_at. Tests may replace it.
	Now func() time.Time

	users     map[idx.ID]*models.User
	rooms     map[idx.ID]*models.Room
	members   map[idx.ID]map[idx.ID]time.Time
	services  map[idx.ID]*models.Service
	records   map[idx.ID]*models.Record
	emailLogs map[idx.ID]*models.EmailLog
}

// New returns an empty store.
func New() *Memory {
	return &Memory{
		Now:       func() time.Time { return time.Now().UTC() },
		users:     map[idx.ID]*models.User{},
		rooms:     map[idx.ID]*models.Room{},
		members:   map[idx.ID]map[idx.ID]time.Time{},
		services:  map[idx.ID]*models.Service{},
		records:   map[idx.ID]*models.Record{},
		emailLogs: map[idx.ID]*models.EmailLog{},
	}
}

// SeedUser inserts an active user and returns it.
func (m *Memory) SeedUser(username string, staff bool) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	u := &models.User{
		ID:           idx.New(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		IsActive:     true,
		IsStaff:      staff,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[u.ID] = u
	cp := *u
	return &cp
}

// Users

func (m *Memory) GetUserByID(_ context.Context, id idx.ID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (m *Memory) UsernameExists(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

// CreateUser stores u only if then returns nil, like the transactional repository.
func (m *Memory) CreateUser(_ context.Context, u *models.User, then func(*models.User) error) error {
	m.mu.Lock()
	for _, existing := range m.users {
		if existing.Username == u.Username || strings.EqualFold(existing.Email, u.Email) {
			m.mu.Unlock()
			return apperr.Conflict("username or email already registered")
		}
	}
	now := m.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	m.mu.Unlock()

	if then != nil {
		if err := then(u); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *Memory) ActivateUser(_ context.Context, id idx.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.IsActive {
		return false, nil
	}
	u.IsActive = true
	u.UpdatedAt = m.Now()
	return true, nil
}

func (m *Memory) DeletePendingUser(_ context.Context, id idx.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok && !u.IsActive {
		delete(m.users, id)
	}
	return nil
}

func (m *Memory) TouchLastLogin(_ context.Context, id idx.ID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperr.NotFound("user")
	}
	u.LastLogin = &at
	return nil
}

func (m *Memory) SetStaff(_ context.Context, username string, staff bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			u.IsStaff = staff
			return nil
		}
	}
	return apperr.NotFound("user")
}

func (m *Memory) CountUsers(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

// Rooms

// CreateRoom inserts the room and its owner's membership. It returns false when
// the invite code is already taken.
func (m *Memory) CreateRoom(_ context.Context, room *models.Room) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.InviteCode == room.InviteCode {
			return false, nil
		}
	}
	room.CreatedAt = m.Now()
	cp := *room
	m.rooms[room.ID] = &cp
	m.members[room.ID] = map[idx.ID]time.Time{room.OwnerID: room.CreatedAt}
	return true, nil
}

func (m *Memory) GetRoom(_ context.Context, id idx.ID) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, apperr.NotFound("room")
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) GetRoomByInviteCode(_ context.Context, code string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.InviteCode == code {
			cp := *r
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("room")
}

func (m *Memory) AddMember(_ context.Context, roomID, userID idx.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.members[roomID]
	if !ok {
		return apperr.NotFound("room")
	}
	if _, exists := set[userID]; !exists {
		set[userID] = m.Now()
	}
	return nil
}

func (m *Memory) RemoveMember(_ context.Context, roomID, userID idx.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members[roomID], userID)
	return nil
}

func (m *Memory) IsMember(_ context.Context, roomID, userID idx.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.members[roomID][userID]
	return ok, nil
}

func (m *Memory) ListRoomsForUser(_ context.Context, userID idx.ID) ([]*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*models.Room
	for roomID, set := range m.members {
		if _, ok := set[userID]; ok {
			cp := *m.rooms[roomID]
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (m *Memory) ListMembers(_ context.Context, roomID idx.ID) ([]models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, apperr.NotFound("room")
	}
	var list []models.Member
	for userID, joined := range m.members[roomID] {
		u := m.users[userID]
		mem := models.Member{UserID: userID, IsOwner: userID == room.OwnerID, JoinedAt: joined}
		if u != nil {
			mem.Username, mem.Email = u.Username, u.Email
		}
		list = append(list, mem)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].JoinedAt.Before(list[j].JoinedAt)
		}
		return list[i].UserID < list[j].UserID
	})
	return list, nil
}

// DeleteRoom removes records, services, memberships and the room.
func (m *Memory) DeleteRoom(_ context.Context, id idx.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; !ok {
		return apperr.NotFound("room")
	}
	for sid, s := range m.services {
		if s.RoomID == id {
			m.deleteServiceLocked(sid)
		}
	}
	delete(m.members, id)
	delete(m.rooms, id)
	return nil
}

// Services

func (m *Memory) CreateService(_ context.Context, s *models.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[s.RoomID]; !ok {
		return apperr.NotFound("room")
	}
	s.CreatedAt = m.Now()
	cp := *s
	m.services[s.ID] = &cp
	return nil
}

func (m *Memory) GetService(_ context.Context, id idx.ID) (*models.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, apperr.NotFound("service")
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) ListServices(_ context.Context, roomID idx.ID) ([]*models.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*models.Service
	for _, s := range m.services {
		if s.RoomID == roomID {
			cp := *s
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

// DeleteService removes the service's records, then the service.
func (m *Memory) DeleteService(_ context.Context, id idx.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[id]; !ok {
		return apperr.NotFound("service")
	}
	m.deleteServiceLocked(id)
	return nil
}

func (m *Memory) deleteServiceLocked(id idx.ID) {
	for rid, r := range m.records {
		if r.ServiceID == id {
			delete(m.records, rid)
		}
	}
	delete(m.services, id)
}

// Records

func (m *Memory) CreateRecord(_ context.Context, r *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[r.ServiceID]; !ok {
		return apperr.NotFound("service")
	}
	now := m.Now()
	r.CreatedAt, r.UpdatedAt = now, now
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *Memory) GetRecord(_ context.Context, id idx.ID) (*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, apperr.NotFound("record")
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) UpdateRecord(_ context.Context, r *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.records[r.ID]
	if !ok {
		return apperr.NotFound("record")
	}
	existing.Description = r.Description
	existing.Cost = r.Cost
	existing.UpdatedAt = m.Now()
	r.CreatedAt, r.UpdatedAt = existing.CreatedAt, existing.UpdatedAt
	return nil
}

func (m *Memory) DeleteRecord(_ context.Context, id idx.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return apperr.NotFound("record")
	}
	delete(m.records, id)
	return nil
}

func (m *Memory) ListRecords(_ context.Context, serviceID idx.ID) ([]*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*models.Record
	for _, r := range m.records {
		if r.ServiceID == serviceID {
			cp := *r
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return newer(*list[i], *list[j]) })
	return list, nil
}

// Aggregation

func (m *Memory) SumRoomCosts(_ context.Context, roomID idx.ID, from, to time.Time) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, r := range m.records {
		s := m.services[r.ServiceID]
		if s == nil || s.RoomID != roomID {
			continue
		}
		if !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			total = total.Add(r.Cost)
		}
	}
	return total, nil
}

func (m *Memory) ListRoomRecords(_ context.Context, roomID idx.ID) ([]models.RecordView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.RecordView
	for _, r := range m.records {
		if v, ok := m.viewLocked(r); ok && v.RoomID == roomID {
			list = append(list, v)
		}
	}
	sortViews(list)
	return list, nil
}

func (m *Memory) SearchRecords(_ context.Context, f models.RecordFilter) ([]models.RecordView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(f.Search)
	var list []models.RecordView
	for _, r := range m.records {
		v, ok := m.viewLocked(r)
		if !ok {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(v.ServiceName), q) &&
			!strings.Contains(strings.ToLower(v.CreatedByUsername), q) &&
			!strings.Contains(strings.ToLower(v.Description), q) {
			continue
		}
		if f.ServiceName != "" && v.ServiceName != f.ServiceName {
			continue
		}
		if f.Date != nil {
			y, mo, d := v.CreatedAt.UTC().Date()
			fy, fm, fd := f.Date.Date()
			if y != fy || mo != fm || d != fd {
				continue
			}
		}
		list = append(list, v)
	}
	sortViews(list)
	return list, nil
}

func (m *Memory) DistinctServiceNames(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var names []string
	for _, s := range m.services {
		if !seen[s.ServiceName] {
			seen[s.ServiceName] = true
			names = append(names, s.ServiceName)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) viewLocked(r *models.Record) (models.RecordView, bool) {
	s := m.services[r.ServiceID]
	if s == nil {
		return models.RecordView{}, false
	}
	room := m.rooms[s.RoomID]
	v := models.RecordView{
		Record:      *r,
		ServiceName: s.ServiceName,
		RoomID:      s.RoomID,
		CreatedByID: s.CreatedBy,
	}
	if room != nil {
		v.RoomName = room.Name
	}
	if u := m.users[s.CreatedBy]; u != nil {
		v.CreatedByUsername = u.Username
	}
	return v, true
}

// Email logs

func (m *Memory) CreateEmailLog(_ context.Context, l *models.EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.CreatedAt = m.Now()
	cp := *l
	m.emailLogs[l.ID] = &cp
	return nil
}

func (m *Memory) MarkEmailSent(_ context.Context, id idx.ID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.emailLogs[id]
	if !ok {
		return apperr.NotFound("email log")
	}
	l.Status, l.SentAt, l.ErrorMessage = models.EmailLogStatusSent, &at, ""
	return nil
}

func (m *Memory) MarkEmailFailed(_ context.Context, id idx.ID, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.emailLogs[id]
	if !ok {
		return apperr.NotFound("email log")
	}
	l.Status, l.ErrorMessage = models.EmailLogStatusFailed, msg
	return nil
}

func (m *Memory) ListRecentEmailLogs(_ context.Context, limit int) ([]*models.EmailLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]*models.EmailLog, 0, len(m.emailLogs))
	for _, l := range m.emailLogs {
		cp := *l
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// newer orders records by created_at DESC, id DESC.
func newer(a, b models.Record) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func sortViews(list []models.RecordView) {
	sort.Slice(list, func(i, j int) bool { return newer(list[i].Record, list[j].Record) })
}

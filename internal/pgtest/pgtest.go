// Package pgtest gives repository tests a migrated Postgres database.
//
// TEST_DATABASE_URL points the tests at an existing server. Without it a
// postgres container is started once per test binary. Tests are skipped under
// -short and when no container provider is available.
package pgtest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/database"
	"github.com/roomledger/backend/pkg/idx"
)

const (
	image    = "postgres:16-alpine"
	user     = "rooms"
	password = "rooms"
	dbName   = "rooms_test"
)

// tables are truncated between tests, children first.
var tables = []string{"service_records", "services", "room_members", "rooms", "email_logs", "users"}

var (
	once    sync.Once
	pool    *pgxpool.Pool
	initErr error
)

// Pool returns a pool on a freshly truncated schema. Callers must not run
// in parallel with other tests using the pool.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres tests skipped in short mode")
	}
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		testcontainers.SkipIfProviderIsNotHealthy(t)
	}

	once.Do(func() { pool, initErr = start(dsn) })
	require.NoError(t, initErr)

	ctx := context.Background()
	for _, table := range tables {
		_, err := pool.Exec(ctx, "TRUNCATE "+table+" CASCADE")
		require.NoError(t, err, "truncate %s", table)
	}
	return pool
}

func start(dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if dsn == "" {
		var err error
		if dsn, err = startContainer(ctx); err != nil {
			return nil, err
		}
	}
	p, err := database.NewPostgresPool(ctx, dsn, database.PoolOptions{MaxConns: 4}, zap.NewNop())
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, p, zap.NewNop()); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// startContainer runs postgres and returns its DSN. The container is reaped
// when the test binary exits.
func startContainer(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        image,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     user,
			"POSTGRES_PASSWORD": password,
			"POSTGRES_DB":       dbName,
		},
		// The server logs readiness twice: once for the init pass, once for real.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start postgres container: %w", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return "", fmt.Errorf("container port: %w", err)
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port.Port(), dbName), nil
}

// SeedUser inserts an active user.
func SeedUser(t *testing.T, pool *pgxpool.Pool, username string, staff bool) *models.User {
	t.Helper()
	u := &models.User{
		ID:           idx.New(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		IsActive:     true,
		IsStaff:      staff,
	}
	const q = `INSERT INTO users (id, username, email, password_hash, is_active, is_staff)
		VALUES ($1, $2, $3, $4, TRUE, $5) RETURNING created_at, updated_at`
	err := pool.QueryRow(context.Background(), q, u.ID, u.Username, u.Email, u.PasswordHash, u.IsStaff).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	require.NoError(t, err)
	return u
}

// SeedRoom inserts a room owned by owner, with the owner as its only member.
func SeedRoom(t *testing.T, pool *pgxpool.Pool, owner *models.User, name, inviteCode string) *models.Room {
	t.Helper()
	ctx := context.Background()
	room := &models.Room{ID: idx.New(), Name: name, InviteCode: inviteCode, OwnerID: owner.ID}
	err := pool.QueryRow(ctx, `INSERT INTO rooms (id, name, invite_code, owner_id) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		room.ID, room.Name, room.InviteCode, room.OwnerID).Scan(&room.CreatedAt)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)`, room.ID, owner.ID)
	require.NoError(t, err)
	return room
}

// SeedService inserts a service created by creator.
func SeedService(t *testing.T, pool *pgxpool.Pool, room *models.Room, creator *models.User, name string) *models.Service {
	t.Helper()
	s := &models.Service{ID: idx.New(), RoomID: room.ID, CreatedBy: creator.ID, ServiceName: name, Description: name}
	err := pool.QueryRow(context.Background(),
		`INSERT INTO services (id, room_id, created_by, service_name, description) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		s.ID, s.RoomID, s.CreatedBy, s.ServiceName, s.Description).Scan(&s.CreatedAt)
	require.NoError(t, err)
	return s
}

// SeedRecord inserts a record with an explicit created_at.
func SeedRecord(t *testing.T, pool *pgxpool.Pool, service *models.Service, description, cost string, at time.Time) idx.ID {
	t.Helper()
	id := idx.NewAt(at)
	_, err := pool.Exec(context.Background(),
		`INSERT INTO service_records (id, service_id, description, cost, created_at, updated_at) VALUES ($1, $2, $3, $4::numeric, $5, $5)`,
		id, service.ID, description, cost, at)
	require.NoError(t, err)
	return id
}

// Count returns the number of rows in table matching where.
func Count(t *testing.T, pool *pgxpool.Pool, table, where string, args ...any) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM `+table+` WHERE `+where, args...).Scan(&n)
	require.NoError(t, err)
	return n
}

package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomledger/backend/internal/accounts"
	"github.com/roomledger/backend/internal/catalog"
	"github.com/roomledger/backend/internal/dashboard"
	"github.com/roomledger/backend/internal/emaillogs"
	"github.com/roomledger/backend/internal/ledger"
	"github.com/roomledger/backend/internal/middleware"
	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/internal/policy"
	"github.com/roomledger/backend/internal/rooms"
	"github.com/roomledger/backend/pkg/idx"
)

// serviceReader is the part of the service catalog the ledger reads.
type serviceReader interface {
	GetService(ctx context.Context, id idx.ID) (*models.Service, error)
}

// lookup serves ledger its service and room reads from two stores.
type lookup struct {
	services serviceReader
	rooms    catalog.RoomReader
}

var _ ledger.Lookup = lookup{}

func (l lookup) GetService(ctx context.Context, id idx.ID) (*models.Service, error) {
	return l.services.GetService(ctx, id)
}

func (l lookup) GetRoom(ctx context.Context, id idx.ID) (*models.Room, error) {
	return l.rooms.GetRoom(ctx, id)
}

// backends are the stores and collaborators the handlers are built on.
type backends struct {
	users     accounts.Store
	rooms     rooms.Store
	services  catalog.Store
	records   ledger.Store
	dashboard dashboard.Store
	emailLogs emaillogs.Lister

	mail          accounts.Dispatcher
	activation    *accounts.ActivationTokens
	sessions      *accounts.Sessions
	accountOpts   accounts.Options
	secureCookies bool
	logger        *zap.Logger
}

type handlers struct {
	accounts  *accounts.Handler
	rooms     *rooms.Handler
	catalog   *catalog.Handler
	ledger    *ledger.Handler
	dashboard *dashboard.Handler
	emailLogs *emaillogs.Handler
}

func newHandlers(b backends) handlers {
	authz := policy.New(b.rooms)
	accountSvc := accounts.NewService(b.users, b.mail, b.activation, b.sessions, b.accountOpts, b.logger)
	return handlers{
		accounts:  accounts.NewHandler(accountSvc, b.sessions.TTL(), b.secureCookies, b.logger),
		rooms:     rooms.NewHandler(rooms.NewService(b.rooms, b.users, authz, b.logger), b.logger),
		catalog:   catalog.NewHandler(catalog.NewService(b.services, b.rooms, authz, b.logger), b.logger),
		ledger:    ledger.NewHandler(ledger.NewService(b.records, lookup{services: b.services, rooms: b.rooms}, authz, b.logger), b.logger),
		dashboard: dashboard.NewHandler(dashboard.NewService(b.dashboard, b.rooms, b.logger), b.logger),
		emailLogs: emaillogs.NewHandler(b.emailLogs),
	}
}

// routing holds the middleware and health check the routes are mounted with.
type routing struct {
	auth        gin.HandlerFunc
	authLimit   gin.HandlerFunc
	health      gin.HandlerFunc
	corsOrigins string
	logger      *zap.Logger
}

func newRouter(h handlers, r routing) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(r.corsOrigins))
	router.Use(middleware.Logger(r.logger))

	router.GET("/health", r.health)

	// Accounts (public)
	router.GET("/", h.accounts.LoginForm)
	router.POST("/", r.authLimit, h.accounts.Login)
	router.GET("/register/", h.accounts.RegisterForm)
	router.POST("/register/", r.authLimit, h.accounts.Register)
	router.GET("/activate/:uid/:token/", h.accounts.Activate)
	router.GET("/forgot/", h.accounts.Forgot)

	// Protected (session required)
	api := router.Group("")
	api.Use(r.auth)
	{
		api.GET("/logout/", h.accounts.Logout)
		api.GET("/dashboard/", h.dashboard.Home)

		// Rooms
		api.GET("/rooms/", h.rooms.List)
		api.GET("/rooms/create/", h.rooms.CreateForm)
		api.POST("/rooms/create/", h.rooms.Create)
		api.GET("/rooms/join/", h.rooms.JoinForm)
		api.POST("/rooms/join/", h.rooms.Join)
		api.GET("/rooms/:id/", h.rooms.Detail)
		api.POST("/rooms/:id/delete/", h.rooms.Delete)
		api.POST("/rooms/:id/remove_member/:user_id/", h.rooms.RemoveMember)
		api.GET("/rooms/:id/owner/", h.dashboard.Owner)

		// Services
		api.GET("/rooms/:id/dashboard/", h.catalog.Board)
		api.POST("/rooms/:id/dashboard/", h.catalog.Create)
		api.POST("/services/:id/delete/", h.catalog.Delete)

		// Records
		api.GET("/services/:id/manage/", h.ledger.Manage)
		api.POST("/services/:id/manage/", h.ledger.Add)
		api.GET("/records/:id/edit/", h.ledger.EditForm)
		api.POST("/records/:id/edit/", h.ledger.Edit)
		api.POST("/records/:id/delete/", h.ledger.Delete)
	}

	// Staff
	staff := api.Group("/admindashboard")
	staff.Use(middleware.RequireStaff())
	{
		staff.GET("/", h.dashboard.Admin)
		staff.GET("/emails/", h.emailLogs.List)
	}
	return router
}

// Package main runs the room ledger HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roomledger/backend/config"
	"github.com/roomledger/backend/internal/accounts"
	"github.com/roomledger/backend/internal/catalog"
	"github.com/roomledger/backend/internal/dashboard"
	"github.com/roomledger/backend/internal/emaillogs"
	"github.com/roomledger/backend/internal/ledger"
	"github.com/roomledger/backend/internal/mailer"
	"github.com/roomledger/backend/internal/middleware"
	"github.com/roomledger/backend/internal/rooms"
	"github.com/roomledger/backend/internal/worker"
	"github.com/roomledger/backend/pkg/database"
	"github.com/roomledger/backend/pkg/queue"
	"github.com/roomledger/backend/pkg/redis"
	"github.com/roomledger/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	userRepo := accounts.NewRepository(pool)
	roomRepo := rooms.NewRepository(pool)
	serviceRepo := catalog.NewRepository(pool)
	recordRepo := ledger.NewRepository(pool)
	dashboardRepo := dashboard.NewRepository(pool)
	emailLogRepo := emaillogs.NewRepository(pool)

	// Mail: inline delivery, or enqueue for the email worker
	jobQueue := queue.NewQueue(rdb.Client, logger)
	transport := mailer.New(mailer.SMTPConfig{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		User:     cfg.Email.SMTPUser,
		Password: cfg.Email.SMTPPass,
		From:     cfg.Email.FromAddress,
		FromName: cfg.Email.FromName,
	}, logger)
	dispatcher := mailer.NewDispatcher(emailLogRepo, transport, logger)
	if cfg.Email.Async {
		dispatcher = mailer.NewAsyncDispatcher(emailLogRepo, jobQueue, logger)
	}

	sessions := accounts.NewSessions(cfg.JWT.Secret, cfg.JWT.ExpireHours, accounts.NewRedisRevocations(rdb.Client))
	h := newHandlers(backends{
		users:      userRepo,
		rooms:      roomRepo,
		services:   serviceRepo,
		records:    recordRepo,
		dashboard:  dashboardRepo,
		emailLogs:  emailLogRepo,
		mail:       dispatcher,
		activation: accounts.NewActivationTokens(cfg.Activation.Secret, cfg.Activation.TTLHours),
		sessions:   sessions,
		accountOpts: accounts.Options{
			BaseURL:      cfg.Server.BaseURL,
			FailSilently: cfg.Email.FailSilently,
		},
		secureCookies: cfg.Server.SecureCookies,
		logger:        logger,
	})

	authLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.Requests,
		Window:            time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
	}, logger)

	router := newRouter(h, routing{
		auth:      middleware.Auth(sessions, userRepo),
		authLimit: authLimiter.Middleware(),
		health: func(c *gin.Context) {
			if err := pool.Ping(c.Request.Context()); err != nil || !rdb.Healthy(c.Request.Context()) {
				response.ServiceUnavailable(c, "dependencies unavailable")
				return
			}
			response.OK(c, gin.H{"status": "ok"})
		},
		corsOrigins: cfg.Server.CORSAllowedOrigins,
		logger:      logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background email worker when mail is asynchronous
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Email.Async {
		go worker.NewEmailProcessor(jobQueue, transport, emailLogRepo, logger).Run(workerCtx)
		logger.Info("email worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

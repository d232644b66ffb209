package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/roomledger/backend/pkg/response"
)

// RateLimitConfig defines a token bucket per client IP.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in Window.
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter tracks one limiter per client IP. Idle entries are dropped
// lazily after ten windows.
type RateLimiter struct {
	mu       sync.Mutex
	cfg      RateLimitConfig
	visitors map[string]*visitor
	now      func() time.Time
	logger   *zap.Logger
}

// NewRateLimiter creates a per-IP rate limiter.
func NewRateLimiter(cfg RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{cfg: cfg, visitors: map[string]*visitor{}, now: time.Now, logger: logger}
}

// Allow reports whether key may make another request now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for k, v := range rl.visitors {
		if now.Sub(v.lastSeen) > 10*rl.cfg.Window {
			delete(rl.visitors, k)
		}
	}
	v, ok := rl.visitors[key]
	if !ok {
		every := rl.cfg.Window / time.Duration(max(rl.cfg.RequestsPerWindow, 1))
		v = &visitor{limiter: rate.NewLimiter(rate.Every(every), rl.cfg.Burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware answers 429 once a client IP exceeds the limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			rl.logger.Warn("rate limit exceeded",
				zap.String("client_ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
			)
			response.TooManyRequests(c, "too many requests, slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}

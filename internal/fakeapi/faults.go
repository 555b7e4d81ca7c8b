package fakeapi

import (
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/itsneelabh/cartshare/client"
	"github.com/itsneelabh/cartshare/core"
)

// Fault injection modes
const (
	ModeNormal         = "normal"
	ModeRateLimit      = "rate_limit"
	ModeServerError    = "server_error"
	ModeSessionExpired = "session_expired"
)

var validModes = map[string]bool{
	ModeNormal:         true,
	ModeRateLimit:      true,
	ModeServerError:    true,
	ModeSessionExpired: true,
}

// InjectRequest configures fault injection.
type InjectRequest struct {
	Mode            string  `json:"mode"`
	RateLimitAfter  int     `json:"rate_limit_after,omitempty"`
	ServerErrorRate float64 `json:"server_error_rate,omitempty"`
	RetryAfterSecs  int     `json:"retry_after_secs,omitempty"`
}

// FaultStatus is the current injection state.
type FaultStatus struct {
	Mode            string  `json:"mode"`
	RateLimitAfter  int     `json:"rate_limit_after"`
	ServerErrorRate float64 `json:"server_error_rate"`
	RetryAfterSecs  int     `json:"retry_after_secs"`
	RequestCount    int64   `json:"request_count"`
}

// Faults makes the backend misbehave on demand so client resilience can be
// exercised.
type Faults struct {
	mu              sync.RWMutex
	mode            string
	rateLimitAfter  int
	serverErrorRate float64
	retryAfterSecs  int
	requestCount    int64
	logger          core.Logger
}

func NewFaults(logger core.Logger) *Faults {
	return &Faults{
		mode:           ModeNormal,
		rateLimitAfter: 5,
		retryAfterSecs: 5,
		logger:         logger,
	}
}

// Status returns the current configuration.
func (f *Faults) Status() FaultStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return FaultStatus{
		Mode:            f.mode,
		RateLimitAfter:  f.rateLimitAfter,
		ServerErrorRate: f.serverErrorRate,
		RetryAfterSecs:  f.retryAfterSecs,
		RequestCount:    atomic.LoadInt64(&f.requestCount),
	}
}

// Set switches mode. Unknown modes are rejected.
func (f *Faults) Set(req InjectRequest) bool {
	if !validModes[req.Mode] {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.mode = req.Mode
	if req.RateLimitAfter > 0 {
		f.rateLimitAfter = req.RateLimitAfter
	}
	if req.ServerErrorRate >= 0 && req.ServerErrorRate <= 1 {
		f.serverErrorRate = req.ServerErrorRate
	}
	if req.RetryAfterSecs > 0 {
		f.retryAfterSecs = req.RetryAfterSecs
	}
	atomic.StoreInt64(&f.requestCount, 0)

	f.logger.Info("Fault injection updated", map[string]interface{}{
		"mode":              f.mode,
		"rate_limit_after":  f.rateLimitAfter,
		"server_error_rate": f.serverErrorRate,
	})
	return true
}

// Reset returns to normal mode.
func (f *Faults) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = ModeNormal
	f.serverErrorRate = 0
	atomic.StoreInt64(&f.requestCount, 0)
	f.logger.Info("Fault injection reset", nil)
}

// Middleware applies the configured fault. Admin and health routes pass through.
func (f *Faults) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/admin") || path == "/health" {
			c.Next()
			return
		}

		cfg := f.Status()
		switch cfg.Mode {
		case ModeRateLimit:
			count := atomic.AddInt64(&f.requestCount, 1)
			if int(count) > cfg.RateLimitAfter {
				c.Header("Retry-After", strconv.Itoa(cfg.RetryAfterSecs))
				abortWith(c, fault(http.StatusTooManyRequests, http.StatusTooManyRequests, "Rate limit exceeded"))
				return
			}

		case ModeServerError:
			if rand.Float64() < cfg.ServerErrorRate {
				abortWith(c, fault(http.StatusBadGateway, http.StatusBadGateway, "Upstream unavailable (simulated)"))
				return
			}

		case ModeSessionExpired:
			if c.GetHeader(client.HeaderSessionID) != "" {
				abortWith(c, fault(http.StatusUnauthorized, CodeSessionExpired, "Session expired"))
				return
			}
		}
		c.Next()
	}
}

// ==================== Admin ====================

func (f *Faults) injectHandler(c *gin.Context) {
	var req InjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body"})
		return
	}
	if !f.Set(req) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid mode. Use: normal, rate_limit, server_error or session_expired",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "config": f.Status()})
}

func (f *Faults) statusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, f.Status())
}

func (f *Faults) resetHandler(c *gin.Context) {
	f.Reset()
	c.JSON(http.StatusOK, gin.H{"success": true, "config": f.Status()})
}

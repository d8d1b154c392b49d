package middleware

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"realty/site/internal/config"
)

// Limits are the token buckets applied to one route. Rates are tokens per second.
// Clients over the soft limit must pass a captcha; clients over the hard limit are refused.
type Limits struct {
	SoftRate  int
	SoftBurst int
	HardRate  int
	HardBurst int
}

// DefaultLimits reads the configured defaults.
func DefaultLimits(cfg *config.Config) Limits {
	return Limits{
		SoftRate:  cfg.RateLimitSoftRefillRate,
		SoftBurst: cfg.RateLimitSoftBucketSize,
		HardRate:  cfg.RateLimitHardRefillRate,
		HardBurst: cfg.RateLimitHardBucketSize,
	}
}

// clientLimiter stores rate limiters for a specific client.
type clientLimiter struct {
	softLimiter *rate.Limiter
	hardLimiter *rate.Limiter
	lastSeen    time.Time
}

// RateLimiterMiddleware manages rate limiting for API endpoints.
type RateLimiterMiddleware struct {
	clients map[string]*clientLimiter
	mu      sync.Mutex
	cfg     *config.Config
	stop    chan struct{}
	once    sync.Once
}

// NewRateLimiterMiddleware creates a new RateLimiterMiddleware. Close stops its cleanup loop.
func NewRateLimiterMiddleware(cfg *config.Config) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		clients: make(map[string]*clientLimiter),
		cfg:     cfg,
		stop:    make(chan struct{}),
	}
	go rm.cleanupClients()
	return rm
}

// Close stops the background cleanup.
func (rm *RateLimiterMiddleware) Close() {
	rm.once.Do(func() { close(rm.stop) })
}

// getClientLimiter retrieves or creates the rate limiters for a given client identifier.
func (rm *RateLimiterMiddleware) getClientLimiter(identifier string, l Limits) *clientLimiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	limiter, exists := rm.clients[identifier]
	if !exists {
		limiter = &clientLimiter{
			softLimiter: rate.NewLimiter(rate.Limit(l.SoftRate), l.SoftBurst),
			hardLimiter: rate.NewLimiter(rate.Limit(l.HardRate), l.HardBurst),
		}
		rm.clients[identifier] = limiter
	}
	limiter.lastSeen = time.Now()
	return limiter
}

// cleanupClients periodically removes client entries not seen for 30 minutes.
func (rm *RateLimiterMiddleware) cleanupClients() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stop:
			return
		case <-ticker.C:
		}
		rm.mu.Lock()
		count := 0
		for id, client := range rm.clients {
			if time.Since(client.lastSeen) > 30*time.Minute {
				delete(rm.clients, id)
				count++
			}
		}
		rm.mu.Unlock()
		if count > 0 {
			log.Printf("Rate limiter cleanup removed %d old client entries.", count)
		}
	}
}

// Limit applies the configured default limits.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return rm.LimitWith(DefaultLimits(rm.cfg))
}

// LimitWith applies l. Buckets are kept per client and route.
func (rm *RateLimiterMiddleware) LimitWith(l Limits) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := visitorFrom(c).String()
		endpoint := c.Request.Method + " " + c.FullPath()

		limiter := rm.getClientLimiter(endpoint+"#"+clientKey, l)

		if !limiter.hardLimiter.Allow() {
			log.Printf("Hard rate limit exceeded for client: %s on %s", clientKey, endpoint)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		// Set by CaptchaMiddleware.
		isHuman := c.GetBool(ContextKeyIsHumanVerified)

		if !isHuman && !limiter.softLimiter.Allow() {
			log.Printf("Soft rate limit exceeded for client: %s on %s (captcha required)", clientKey, endpoint)
			c.AbortWithStatusJSON(http.StatusTeapot, gin.H{"error": "Captcha validation required"})
			return
		}

		c.Next()
	}
}

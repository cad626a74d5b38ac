package middleware

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const RequestIDHeader = "X-Request-ID"

// RateLimiter stores rate limiters per route and client IP
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	mutex    sync.RWMutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
	}
}

// GetLimiterWithConfig returns a limiter for a composite key with dynamic limits
func (rl *RateLimiter) GetLimiterWithConfig(key string, limit rate.Limit, burst int) *rate.Limiter {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(limit, burst)
		rl.limiters[key] = limiter
	}
	rl.lastSeen[key] = time.Now()
	return limiter
}

// Cleanup removes limiters idle for longer than maxIdle and returns how many were dropped
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	removed := 0
	for key, t := range rl.lastSeen {
		if now.Sub(t) > maxIdle {
			delete(rl.limiters, key)
			delete(rl.lastSeen, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked keys
func (rl *RateLimiter) Size() int {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()
	return len(rl.limiters)
}

// isAuthPath matches the credential endpoints that get the stricter limit
func isAuthPath(path string) bool {
	switch path {
	case "/login", "/register", "/reset-pass":
		return true
	default:
		return false
	}
}

// RateLimitMiddleware limits each client per route. Credential endpoints allow 5 requests per minute.
func RateLimitMiddleware(rl *RateLimiter, perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		perMinute = 60
	}
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		clientIP := c.ClientIP()
		key := path + "|" + clientIP

		var lim rate.Limit
		var burst int
		retryAfter := 60
		switch {
		case isAuthPath(path):
			lim = rate.Every(time.Minute / 5)
			burst = 5
			retryAfter = 300
		case path == "/ws":
			lim = rate.Every(time.Second)
			burst = 5
		default:
			lim = rate.Every(time.Minute / time.Duration(perMinute))
			burst = perMinute
		}

		limiter := rl.GetLimiterWithConfig(key, lim, burst)
		if !limiter.Allow() {
			log.Printf("🚫 Rate limit exceeded for %s %s from %s", c.Request.Method, path, clientIP)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests, please try again later",
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// SecurityHeadersMiddleware adds security headers
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Server", "")

		c.Next()
	}
}

// CORSMiddleware allows credentialed requests from the configured front-end origins
func CORSMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "If-Match", "X-Requested-With", RequestIDHeader}
	cfg.ExposeHeaders = []string{"Content-Length", "Content-Disposition", "ETag", "X-Total-Count", "X-Page", "X-Per-Page", RequestIDHeader}
	cfg.MaxAge = 24 * time.Hour
	return cors.New(cfg)
}

// InputValidationMiddleware caps the request size and checks the content type of request bodies
func InputValidationMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.ContentLength > maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body exceeds maximum size limit"})
			c.Abort()
			return
		}
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		// Bodiless POSTs such as /logout carry no content type.
		if (c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut) && c.Request.ContentLength != 0 {
			contentType := c.GetHeader("Content-Type")
			if !strings.Contains(contentType, "application/json") &&
				!strings.Contains(contentType, "multipart/form-data") &&
				!strings.Contains(contentType, "application/x-www-form-urlencoded") {
				c.JSON(http.StatusUnsupportedMediaType, gin.H{
					"error": "Content-Type must be application/json, multipart/form-data, or application/x-www-form-urlencoded",
				})
				c.Abort()
				return
			}
		}

		c.Next()
	}
}

// RequestIDMiddleware propagates or assigns an X-Request-ID
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// AuditLogMiddleware logs every request with its outcome
func AuditLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		requestID := c.GetString("request_id")
		userID, _ := c.Get(userIDKey)

		if status >= 400 {
			log.Printf("⚠️ AUDIT [%s]: %s %s from %s user=%v returned %d in %v", requestID, c.Request.Method, c.Request.URL.Path, c.ClientIP(), userID, status, duration)
		} else {
			log.Printf("✅ AUDIT [%s]: %s %s from %s user=%v returned %d in %v", requestID, c.Request.Method, c.Request.URL.Path, c.ClientIP(), userID, status, duration)
		}
	}
}

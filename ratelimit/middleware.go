package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vaasu2002/order-matching-system/logging"
)

// KeyExtractor derives the rate limit key from an incoming request.
type KeyExtractor func(r *http.Request) string

// ErrorHandler writes the response when a request exceeds its limit.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, result *Result)

// MiddlewareConfig configures the HTTP rate limiting middleware.
type MiddlewareConfig struct {
	Limiter      *TokenBucketLimiter
	KeyExtractor KeyExtractor
	ErrorHandler ErrorHandler

	// Paths exempt from rate limiting, such as health and metrics
	// endpoints probed by infrastructure.
	SkipPaths []string
}

// Middleware applies a TokenBucketLimiter to HTTP traffic.
type Middleware struct {
	limiter      *TokenBucketLimiter
	keyExtractor KeyExtractor
	errorHandler ErrorHandler
	skipPaths    map[string]bool
}

// NewMiddleware creates rate limiting middleware with sensible defaults
// for the key extractor and error handler.
func NewMiddleware(config MiddlewareConfig) *Middleware {
	if config.KeyExtractor == nil {
		config.KeyExtractor = ClientIDAndIPKeyExtractor
	}
	if config.ErrorHandler == nil {
		config.ErrorHandler = DefaultErrorHandler
	}

	skipPaths := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return &Middleware{
		limiter:      config.Limiter,
		keyExtractor: config.KeyExtractor,
		errorHandler: config.ErrorHandler,
		skipPaths:    skipPaths,
	}
}

// Handler wraps next with the rate limit check. Limiter errors fail open:
// a broken limiter must not take order flow down with it.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		clientKey := m.keyExtractor(r)

		result, err := m.limiter.Allow(r.Context(), clientKey)
		if err != nil {
			logging.GetLogger().WithField("error", err.Error()).Warn("Rate limiter error, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", m.limiter.maxTokens))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))

		if !result.Allowed {
			m.errorHandler(w, r, result)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIDAndIPKeyExtractor keys on the client id when the request carries
// one, falling back to the caller's IP address.
func ClientIDAndIPKeyExtractor(r *http.Request) string {
	if clientID := r.URL.Query().Get("client_id"); clientID != "" {
		return "client:" + clientID
	}
	if clientID := r.Header.Get("X-Client-ID"); clientID != "" {
		return "client:" + clientID
	}
	return "ip:" + GetClientIP(r)
}

// IPKeyExtractor keys on the caller's IP address only.
func IPKeyExtractor(r *http.Request) string {
	return "ip:" + GetClientIP(r)
}

// GetClientIP extracts the client's IP address, honoring proxy headers.
func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// First entry is the originating client.
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// DefaultErrorHandler responds 429 with Retry-After and a JSON body.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, result *Result) {
	retryAfterSeconds := int(result.RetryAfter.Seconds()) + 1

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSeconds))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetAt.Unix()))
	w.WriteHeader(http.StatusTooManyRequests)

	logging.GetLogger().WithField("path", r.URL.Path).
		WithField("retry_after", retryAfterSeconds).Warn("Rate limit exceeded")

	fmt.Fprintf(w, `{"error":"rate limit exceeded","retry_after_seconds":%d,"reset_at":%q}`,
		retryAfterSeconds, result.ResetAt.Format(time.RFC3339))
}

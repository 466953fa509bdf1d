package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DefaultMaxTrackedClients bounds the number of per-client limiters kept
const DefaultMaxTrackedClients = 10000

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter manages per-IP rate limiters using token bucket algorithm
type IPRateLimiter struct {
	limiters   map[string]*clientLimiter
	mu         sync.Mutex
	rate       rate.Limit
	burst      int
	maxClients int
	trustProxy bool
}

// NewIPRateLimiter creates a new IP-based rate limiter
func NewIPRateLimiter(requestsPerMinute int) *IPRateLimiter {
	r := rate.Limit(float64(requestsPerMinute) / 60.0)
	return &IPRateLimiter{
		limiters:   make(map[string]*clientLimiter),
		rate:       r,
		burst:      requestsPerMinute,
		maxClients: DefaultMaxTrackedClients,
	}
}

// TrustProxyHeaders makes the limiter key clients by X-Forwarded-For and
// X-Real-IP. Only enable it behind a proxy that overwrites those headers.
func (ipl *IPRateLimiter) TrustProxyHeaders(trust bool) *IPRateLimiter {
	ipl.trustProxy = trust
	return ipl
}

// WithMaxClients bounds the number of tracked clients
func (ipl *IPRateLimiter) WithMaxClients(n int) *IPRateLimiter {
	if n > 0 {
		ipl.maxClients = n
	}
	return ipl
}

// GetLimiter returns the rate limiter for a given IP. When the table is full
// the least recently seen client is dropped.
func (ipl *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	now := time.Now()
	entry, exists := ipl.limiters[ip]
	if !exists {
		if len(ipl.limiters) >= ipl.maxClients {
			ipl.evictOldestLocked()
		}
		entry = &clientLimiter{limiter: rate.NewLimiter(ipl.rate, ipl.burst)}
		ipl.limiters[ip] = entry
	}
	entry.lastSeen = now

	return entry.limiter
}

func (ipl *IPRateLimiter) evictOldestLocked() {
	var oldest string
	var oldestSeen time.Time
	for ip, entry := range ipl.limiters {
		if oldest == "" || entry.lastSeen.Before(oldestSeen) {
			oldest, oldestSeen = ip, entry.lastSeen
		}
	}
	delete(ipl.limiters, oldest)
}

// Tracked returns the number of clients with a limiter
func (ipl *IPRateLimiter) Tracked() int {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()
	return len(ipl.limiters)
}

// clientKey identifies the client a request is charged to
func (ipl *IPRateLimiter) clientKey(r *http.Request) string {
	if ipl.trustProxy {
		return getClientIP(r)
	}
	return remoteIP(r)
}

// RateLimitMiddleware creates rate limiting middleware
func RateLimitMiddleware(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := limiter.GetLimiter(limiter.clientKey(r))

			remaining := int(l.Tokens())
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

			if !l.Allow() {
				WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too Many Requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP from proxy headers, falling back to the
// connection address
func getClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return xri
	}

	return remoteIP(r)
}

// remoteIP returns the host part of the connection address
func remoteIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// BodySizeLimitMiddleware limits the request body size for POST/PUT/PATCH requests
func BodySizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == "POST" || r.Method == "PUT" || r.Method == "PATCH" {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DecodeJSONBody decodes JSON body and handles max bytes errors appropriately
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Payload Too Large")
			return err
		}
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return err
	}
	return nil
}

// RequestIDKey is the context key for request IDs
type contextKey string

const RequestIDContextKey contextKey = "requestID"

// RequestIDMiddleware generates a UUID for each request and adds it to context and response header
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDContextKey).(string); ok {
		return id
	}
	return ""
}

// MetricsMiddleware records HTTP request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := r.URL.Path
		method := r.Method
		status := strconv.Itoa(wrapped.statusCode)

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
	})
}

// statusResponseWriter wraps http.ResponseWriter to capture status code
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Validation helpers

var accountIDRegex = regexp.MustCompile(`^[a-f0-9]{16}$`)

// IsValidAccountID checks if an account ID has valid format (16 lowercase hex characters)
func IsValidAccountID(id string) bool {
	return accountIDRegex.MatchString(id)
}

// Field length limits
const (
	MaxEventKindLength   = 64
	MaxChallengeIDLength = 64
)

// ValidateStringField checks for max length and control characters
func ValidateStringField(s string, maxLength int) bool {
	if len(s) > maxLength {
		return false
	}

	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return false
		}
	}

	return true
}

package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/internal/telemetry/logger"
	"github.com/yndnr/shellkeep-go/internal/telemetry/metric"
	"github.com/yndnr/shellkeep-go/pkg/cmap"
)

type contextKey string

// ContextKeyStartTime is the context key for request start time.
const ContextKeyStartTime contextKey = "start_time"

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestID adds a unique request ID to each request. The id rides on the
// context, so handlers logging with a *Context method pick it up.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = domain.MustGenerateID("req-")
			}

			w.Header().Set("X-Request-ID", requestID)

			ctx := logger.WithRequestID(r.Context(), requestID)
			ctx = context.WithValue(ctx, ContextKeyStartTime, time.Now())

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit applies a token bucket per client IP.
func RateLimit(requestsPerSecond float64, burst int) Middleware {
	if burst <= 0 {
		burst = int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	limiters := cmap.New[*rate.Limiter]()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)
			l := limiters.GetOrCreate(ip, func() *rate.Limiter {
				return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
			})

			if !l.Allow() {
				w.Header().Set("Retry-After", "1")
				writeMiddlewareError(w, http.StatusTooManyRequests, domain.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Audit logs every request and records route metrics. The route label is
// the matched mux pattern so cardinality stays bounded.
func Audit(log *slog.Logger, metrics *metric.Registry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			startTime, ok := r.Context().Value(ContextKeyStartTime).(time.Time)
			if !ok {
				startTime = time.Now()
			}
			duration := time.Since(startTime)

			if metrics != nil {
				route := routeLabel(r)
				metrics.RecordRequest(route, r.Method, strconv.Itoa(wrapped.statusCode))
				metrics.ObserveRequestDuration(route, r.Method, duration.Seconds())
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", duration.Milliseconds(),
				"client_ip", getClientIP(r),
			}

			if wrapped.statusCode >= 500 {
				log.ErrorContext(r.Context(), "request completed with error", attrs...)
			} else if wrapped.statusCode >= 400 {
				log.WarnContext(r.Context(), "request completed with client error", attrs...)
			} else {
				log.DebugContext(r.Context(), "request completed", attrs...)
			}
		})
	}
}

func routeLabel(r *http.Request) string {
	switch r.Pattern {
	case "":
		return "unmatched"
	case "/":
		return "proxy"
	}
	// Patterns carry a method prefix ("GET /health").
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}

// Recover recovers from panics and returns 500 error.
func Recover(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					log.ErrorContext(r.Context(), "panic recovered",
						"error", err,
						"path", r.URL.Path,
					)
					writeMiddlewareError(w, http.StatusInternalServerError, domain.ErrInternal)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// NetworkACLConfig holds configuration for network ACL middleware.
type NetworkACLConfig struct {
	// AllowList is the list of allowed IP/CIDR entries.
	// Empty list means no restriction.
	AllowList []string

	// Logger for logging denied requests.
	Logger *slog.Logger
}

// NetworkACL creates a middleware that checks client IP against an allowlist.
func NetworkACL(cfg *NetworkACLConfig) Middleware {
	var networks []*net.IPNet
	var singleIPs []net.IP

	for _, entry := range cfg.AllowList {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				if cfg.Logger != nil {
					cfg.Logger.Warn("invalid CIDR in allowlist", "entry", entry, "error", err)
				}
				continue
			}
			networks = append(networks, ipNet)
		} else {
			ip := net.ParseIP(entry)
			if ip == nil {
				if cfg.Logger != nil {
					cfg.Logger.Warn("invalid IP in allowlist", "entry", entry)
				}
				continue
			}
			singleIPs = append(singleIPs, ip)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(networks) == 0 && len(singleIPs) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := getClientIP(r)
			ip := net.ParseIP(clientIP)
			if ip == nil {
				writeMiddlewareError(w, http.StatusForbidden, errForbidden.WithDetails("invalid client IP"))
				return
			}

			for _, allowedIP := range singleIPs {
				if allowedIP.Equal(ip) {
					next.ServeHTTP(w, r)
					return
				}
			}
			for _, network := range networks {
				if network.Contains(ip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			if cfg.Logger != nil {
				cfg.Logger.Warn("request denied by network ACL",
					"client_ip", clientIP,
					"path", r.URL.Path,
				)
			}
			writeMiddlewareError(w, http.StatusForbidden, errForbidden)
		})
	}
}

var errForbidden = domain.NewDomainError("SK-SYS-4030", "client not in allowlist")

// CORS adds Cross-Origin Resource Sharing headers.
func CORS(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := len(allowedOrigins) == 0 // Empty means allow all
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			// Only answer real preflights; a bare OPTIONS may be meant for upstream.
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code. It
// forwards Flush so event streams keep working behind the middleware chain.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) Flush() {
	w.wroteHeader = true
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func writeMiddlewareError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", domain.GetErrorCode(err))
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(domain.Fail(err))
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// SplitHostPort handles bracketed IPv6 addresses.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

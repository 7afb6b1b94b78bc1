package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/shellkeep-go/internal/agent"
	"github.com/yndnr/shellkeep-go/internal/server/httpserver/handler"
	"github.com/yndnr/shellkeep-go/internal/statestore"
	"github.com/yndnr/shellkeep-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Agent serves every page-facing and operator route. Required.
	Agent *agent.Agent

	// Metrics backs GET /metrics and the request metrics recorded by
	// Audit. Nil disables both.
	Metrics *metric.Registry

	// Logger for request logging.
	Logger *slog.Logger

	// OperatorAllowList is the IP/CIDR allowlist for /agent/v1 operator
	// routes and /metrics (empty = no restriction).
	OperatorAllowList []string

	// CORSAllowedOrigins is the list of allowed CORS origins (empty = allow all).
	CORSAllowedOrigins []string

	// RateLimit is the per-IP rate for page traffic (requests/second).
	// Zero disables limiting.
	RateLimit float64
	RateBurst int

	// EnableAudit enables request logging and request metrics.
	EnableAudit bool
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var metricsHandler http.Handler
	if cfg.Metrics != nil {
		metricsHandler = cfg.Metrics.Handler()
	}
	h := handler.New(cfg.Agent, metricsHandler, cfg.Logger)

	base := []Middleware{RequestID(), Recover(cfg.Logger)}
	if cfg.EnableAudit {
		base = append(base, Audit(cfg.Logger, cfg.Metrics))
	}

	mux := http.NewServeMux()

	// Health endpoints
	healthHandler := Chain(h, base...)
	mux.Handle("GET /health", healthHandler)
	mux.Handle("GET /ready", healthHandler)

	// Operator endpoints share the network ACL.
	operator := append([]Middleware{}, base...)
	if len(cfg.OperatorAllowList) > 0 {
		operator = append(operator, NetworkACL(&NetworkACLConfig{
			AllowList: cfg.OperatorAllowList,
			Logger:    cfg.Logger,
		}))
	}
	operatorHandler := Chain(h, operator...)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", operatorHandler)
	}
	mux.Handle("GET /agent/v1/status", operatorHandler)
	mux.Handle("POST /agent/v1/sync", operatorHandler)
	mux.Handle("GET /agent/v1/queue", operatorHandler)
	mux.Handle("DELETE /agent/v1/queue/{id}", operatorHandler)
	mux.Handle("POST /agent/v1/activate", operatorHandler)
	mux.Handle("POST /agent/v1/push", operatorHandler)

	// Page traffic: the agent's own endpoints plus the proxied origin.
	page := append([]Middleware{}, base...)
	page = append(page, CORS(cfg.CORSAllowedOrigins))
	if cfg.RateLimit > 0 {
		page = append(page, RateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	pageHandler := Chain(h, page...)
	mux.Handle("POST "+statestore.StatePath, pageHandler)
	mux.Handle("GET "+statestore.StatePath, pageHandler)
	mux.Handle("POST "+agent.MessagesPath, pageHandler)
	mux.Handle("GET "+agent.EventsPath, pageHandler)
	mux.Handle("/", pageHandler)

	return mux
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		RateLimit:   50,
		RateBurst:   100,
		EnableAudit: true,
	}
}
